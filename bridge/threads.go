package bridge

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
)

// BindingState is the attachment state of one OS thread.
type BindingState uint8

const (
	BindingDetached BindingState = iota
	BindingAttached
	BindingDaemon
)

func (s BindingState) String() string {
	switch s {
	case BindingDetached:
		return "detached"
	case BindingAttached:
		return "attached"
	case BindingDaemon:
		return "attached as daemon"
	default:
		return "unknown"
	}
}

// ThreadBinding records one OS thread's attachment.
type ThreadBinding struct {
	AttachedAt time.Time
	ThreadID   uint64
	State      BindingState
	// Auto is set when a boundary crossing attached the thread implicitly.
	Auto bool
}

// threadTable owns every binding. A binding exists exactly while its
// goroutine is pinned to the OS thread; teardown marks bindings detached but
// keeps them so DetachCurrentThread can still release the pin.
type threadTable struct {
	bindings map[uint64]*ThreadBinding
	metrics  *Metrics
	mu       sync.Mutex
}

func newThreadTable(m *Metrics) *threadTable {
	return &threadTable{
		bindings: make(map[uint64]*ThreadBinding),
		metrics:  m,
	}
}

func (t *threadTable) attach(native Native, daemon, auto bool) error {
	// Pin first so the id read below stays ours.
	runtime.LockOSThread()
	tid := currentThreadID()

	t.mu.Lock()
	defer t.mu.Unlock()

	b, pinned := t.bindings[tid]
	if pinned && b.State != BindingDetached {
		runtime.UnlockOSThread()
		return nil
	}

	if err := native.AttachThread(tid, daemon); err != nil {
		runtime.UnlockOSThread()
		return errors.Attach(errors.PhaseAttach, fmt.Sprintf("attach thread %d", tid), err)
	}
	if pinned {
		runtime.UnlockOSThread()
	}

	state := BindingAttached
	if daemon {
		state = BindingDaemon
	}
	t.bindings[tid] = &ThreadBinding{
		ThreadID:   tid,
		State:      state,
		Auto:       auto,
		AttachedAt: time.Now(),
	}
	t.updateGauge()
	Logger().Debug("thread attached",
		zap.Uint64("thread", tid),
		zap.Stringer("state", state),
		zap.Bool("auto", auto))
	return nil
}

// detach drops the calling thread's binding and unpins it. native may be nil
// once the runtime is gone.
func (t *threadTable) detach(native Native) {
	tid := currentThreadID()

	t.mu.Lock()
	b, ok := t.bindings[tid]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.bindings, tid)
	if b.State != BindingDetached && native != nil {
		native.DetachThread(tid)
	}
	t.updateGauge()
	t.mu.Unlock()

	runtime.UnlockOSThread()
	Logger().Debug("thread detached", zap.Uint64("thread", tid))
}

func (t *threadTable) current() (ThreadBinding, bool) {
	tid := currentThreadID()

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.bindings[tid]
	if !ok {
		return ThreadBinding{ThreadID: tid}, false
	}
	return *b, b.State != BindingDetached
}

func (t *threadTable) snapshot() []ThreadBinding {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ThreadBinding, 0, len(t.bindings))
	for _, b := range t.bindings {
		if b.State != BindingDetached {
			out = append(out, *b)
		}
	}
	return out
}

// reset marks every binding detached. When the runtime outlives this bridge
// the threads are detached from it as well.
func (t *threadTable) reset(native Native, detachNative bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for tid, b := range t.bindings {
		if b.State == BindingDetached {
			continue
		}
		if detachNative && native != nil {
			native.DetachThread(tid)
		}
		b.State = BindingDetached
	}
	t.updateGauge()
}

func (t *threadTable) updateGauge() {
	if t.metrics == nil {
		return
	}
	n := 0
	for _, b := range t.bindings {
		if b.State != BindingDetached {
			n++
		}
	}
	t.metrics.AttachedThreads.Set(float64(n))
}

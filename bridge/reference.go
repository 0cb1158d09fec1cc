package bridge

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/wippyai/hostbridge/resource"
)

const (
	refLive uint32 = iota
	refPending
	refReleased
)

// NativeReference is a handle into the runtime heap. It has exactly one
// owner and moves live -> pending -> released, each step at most once.
type NativeReference struct {
	queue  *releaseQueue
	handle resource.Handle
	rep    uint32
	state  atomic.Uint32
}

// Handle returns the table handle.
func (r *NativeReference) Handle() resource.Handle { return r.handle }

// Rep returns the runtime-side representation.
func (r *NativeReference) Rep() uint32 { return r.rep }

// Released reports whether the runtime side has been released.
func (r *NativeReference) Released() bool { return r.state.Load() == refReleased }

// schedule queues the reference for release. Only the first call queues.
func (r *NativeReference) schedule() {
	if !r.state.CompareAndSwap(refLive, refPending) {
		return
	}
	r.queue.push(r)
}

// Object is the host-side owner of a NativeReference. When an Object becomes
// unreachable its reference is queued for the reference daemon; Close queues
// it immediately.
type Object struct {
	ref     *NativeReference
	cleanup runtime.Cleanup
	once    sync.Once
}

func newObject(ref *NativeReference) *Object {
	obj := &Object{ref: ref}
	obj.cleanup = runtime.AddCleanup(obj, (*NativeReference).schedule, ref)
	return obj
}

// Handle returns the owned reference's handle.
func (o *Object) Handle() resource.Handle { return o.ref.handle }

// Rep returns the owned reference's runtime-side representation.
func (o *Object) Rep() uint32 { return o.ref.rep }

// Released reports whether the runtime side has been released.
func (o *Object) Released() bool { return o.ref.Released() }

// Close gives up ownership and queues the release. Safe to call repeatedly.
func (o *Object) Close() error {
	o.once.Do(func() {
		o.cleanup.Stop()
		o.ref.schedule()
	})
	return nil
}

// Weak returns a non-owning back-reference to o.
func (o *Object) Weak() WeakRef {
	return WeakRef{handle: o.ref.handle, owner: weak.Make(o)}
}

// WeakRef refers to a runtime object without owning it: it supports identity
// lookup and nothing else. It never keeps the owner alive and has no way to
// release the reference.
type WeakRef struct {
	owner  weak.Pointer[Object]
	handle resource.Handle
}

// Handle returns the handle of the referenced object.
func (w WeakRef) Handle() resource.Handle { return w.handle }

// Owner returns the owning Object, or nil once it has been collected or
// closed.
func (w WeakRef) Owner() *Object {
	obj := w.owner.Value()
	if obj == nil || obj.ref.state.Load() != refLive {
		return nil
	}
	return obj
}

// Same reports whether w refers to the same runtime object as obj.
func (w WeakRef) Same(obj *Object) bool {
	return obj != nil && obj.ref.handle == w.handle
}

// releaseQueue is the FIFO of pending releases. Pushes never block; a push
// after close is dropped.
type releaseQueue struct {
	signal  chan struct{}
	metrics *Metrics
	items   []*NativeReference
	dropped atomic.Uint64
	mu      sync.Mutex
	closed  bool
}

func newReleaseQueue(m *Metrics) *releaseQueue {
	return &releaseQueue{
		signal:  make(chan struct{}, 1),
		metrics: m,
	}
}

func (q *releaseQueue) push(r *NativeReference) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.dropped.Add(1)
		if q.metrics != nil {
			q.metrics.Releases.WithLabelValues(resultDropped).Inc()
		}
		return
	}
	q.items = append(q.items, r)
	n := len(q.items)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.Pending.Set(float64(n))
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued, oldest first.
func (q *releaseQueue) take() []*NativeReference {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.Pending.Set(0)
	}
	return items
}

// close stops accepting pushes. Already queued items stay for take.
func (q *releaseQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *releaseQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

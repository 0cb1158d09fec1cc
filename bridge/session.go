package bridge

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// session is one start/attach cycle: the runtime it is bound to and the
// reference machinery that dies with it.
type session struct {
	native   Native
	queue    *releaseQueue
	daemon   *daemon
	objects  map[resource.Handle]weak.Pointer[Object]
	refs     *refGauge
	instance RuntimeInstance
	cycle    uint64
	objMu    sync.Mutex
	// gate orders releases against teardown: releases hold it shared and
	// teardown takes it exclusively, so no release reaches a closed runtime.
	gate   sync.RWMutex
	closed bool
}

func (s *session) release(ctx context.Context, r *NativeReference) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.closed {
		return errors.NotRunning(errors.PhaseRelease, Stopped.String())
	}
	err := s.native.Release(ctx, r.handle)
	r.state.Store(refReleased)
	s.forget(r.handle)
	if err != nil && !stderrors.Is(err, errors.ErrRelease) {
		return errors.Release(r.handle.Index(), err)
	}
	return err
}

func (s *session) teardown(ctx context.Context, caller uint64) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	s.closed = true
	s.objMu.Lock()
	clear(s.objects)
	s.objMu.Unlock()
	s.refs.stop()
	if !s.instance.Owned {
		return nil
	}
	return s.native.Close(ctx, caller)
}

func (s *session) remember(obj *Object) {
	s.objMu.Lock()
	s.objects[obj.Handle()] = weak.Make(obj)
	s.objMu.Unlock()
}

func (s *session) forget(h resource.Handle) {
	s.objMu.Lock()
	delete(s.objects, h)
	s.objMu.Unlock()
}

func (s *session) lookup(h resource.Handle) *Object {
	s.objMu.Lock()
	wp, ok := s.objects[h]
	s.objMu.Unlock()
	if !ok {
		return nil
	}
	obj := wp.Value()
	if obj == nil || obj.ref.state.Load() != refLive {
		return nil
	}
	return obj
}

// observable is implemented by natives whose handle table can be watched.
type observable interface {
	Table() *resource.Table
}

// refGauge mirrors one session's live native references into a gauge.
type refGauge struct {
	table *resource.Table
	gauge prometheus.Gauge
	live  atomic.Int64
}

func watchReferences(native Native, g prometheus.Gauge) *refGauge {
	o, ok := native.(observable)
	if !ok {
		return nil
	}
	r := &refGauge{table: o.Table(), gauge: g}
	r.table.Subscribe(r)
	return r
}

func (r *refGauge) OnResourceEvent(e resource.Event) {
	switch e.Type {
	case resource.EventRegistered:
		r.live.Add(1)
		r.gauge.Inc()
	case resource.EventRemoved:
		r.live.Add(-1)
		r.gauge.Dec()
	}
}

// stop unsubscribes and takes whatever is still live off the gauge.
func (r *refGauge) stop() {
	if r == nil {
		return
	}
	r.table.Unsubscribe(r)
	r.gauge.Sub(float64(r.live.Swap(0)))
}

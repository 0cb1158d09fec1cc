package bridge

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
)

// DaemonStats counts what the reference daemon has done in the current cycle.
type DaemonStats struct {
	Released uint64 `json:"released"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
	Pending  int    `json:"pending"`
}

// daemon is the reference daemon: the only component that asks the runtime
// to release native references.
type daemon struct {
	ctx      context.Context
	queue    *releaseQueue
	release  func(context.Context, *NativeReference) error
	attach   func() error
	detach   func()
	metrics  *Metrics
	cancel   context.CancelFunc
	stop     chan struct{}
	done     chan struct{}
	mode     DaemonMode
	interval time.Duration
	released atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
	stopOnce sync.Once
	started  atomic.Bool
}

func newDaemon(q *releaseQueue, mode DaemonMode, interval time.Duration, m *Metrics) *daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &daemon{
		ctx:      ctx,
		cancel:   cancel,
		queue:    q,
		metrics:  m,
		mode:     mode,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *daemon) start() {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.run()
	Logger().Debug("reference daemon started", zap.String("mode", string(d.mode)))
}

func (d *daemon) run() {
	defer close(d.done)

	// The worker owns one OS thread for its whole life in both modes.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	attached := false
	defer func() {
		if attached {
			d.detach()
		}
	}()

	var wake <-chan struct{}
	var tick <-chan time.Time
	switch d.mode {
	case DaemonHostTask:
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		tick = ticker.C
	default:
		if err := d.attach(); err != nil {
			Logger().Warn("reference daemon could not attach", zap.Error(err))
		} else {
			attached = true
		}
		wake = d.queue.signal
	}

	for {
		select {
		case <-d.stop:
			d.queue.close()
			d.cycle(&attached)
			return
		case <-wake:
			d.cycle(&attached)
		case <-tick:
			d.cycle(&attached)
		}
	}
}

// cycle releases everything queued so far, oldest first. A failed entry is
// logged and dropped; it never holds up the entries behind it.
func (d *daemon) cycle(attached *bool) {
	items := d.queue.take()
	if len(items) == 0 {
		return
	}

	if !*attached {
		if err := d.attach(); err != nil {
			Logger().Warn("reference daemon could not attach, dropping releases",
				zap.Int("count", len(items)),
				zap.Error(err))
			for range items {
				d.drop()
			}
			return
		}
		*attached = true
	}

	for _, r := range items {
		if d.ctx.Err() != nil {
			d.drop()
			continue
		}
		if err := d.release(d.ctx, r); err != nil {
			if d.ctx.Err() != nil {
				d.drop()
				continue
			}
			d.failed.Add(1)
			d.count(resultFailed)
			Logger().Warn("native release failed",
				zap.Uint64("handle", uint64(r.handle)),
				zap.Uint32("rep", r.rep),
				zap.Error(err))
			continue
		}
		d.released.Add(1)
		d.count(resultReleased)
	}
}

func (d *daemon) drop() {
	d.dropped.Add(1)
	d.count(resultDropped)
}

func (d *daemon) count(result string) {
	if d.metrics != nil {
		d.metrics.Releases.WithLabelValues(result).Inc()
	}
}

// shutdown signals the worker to drain and exit and waits up to timeout.
// After the timeout the worker's context is cancelled so any release still
// running aborts, and a DaemonTimeout warning is returned.
func (d *daemon) shutdown(timeout time.Duration) error {
	d.stopOnce.Do(func() { close(d.stop) })

	if !d.started.Load() {
		d.queue.close()
		for range d.queue.take() {
			d.drop()
		}
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-timer.C:
	}

	d.queue.close()
	pending := d.queue.pending()
	d.cancel()
	Logger().Warn("reference daemon did not stop in time",
		zap.Duration("timeout", timeout),
		zap.Int("pending", pending))
	return errors.DaemonTimeout(pending)
}

func (d *daemon) stats() DaemonStats {
	return DaemonStats{
		Released: d.released.Load(),
		Failed:   d.failed.Load(),
		Dropped:  d.dropped.Load() + d.queue.dropped.Load(),
		Pending:  d.queue.pending(),
	}
}

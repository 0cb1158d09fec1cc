package bridge

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/errors"
)

func startAttached(t *testing.T, cfg Config, opts ...Option) (*Bridge, *fakeNative) {
	t.Helper()
	b, loader := newTestBridge(t, cfg, opts...)
	require.NoError(t, b.Start(context.Background(), ""))
	require.NoError(t, b.AttachCurrentThread())
	t.Cleanup(b.DetachCurrentThread)
	return b, loader.native(0)
}

func makeObjects(t *testing.T, b *Bridge, base uint32, n int) []*Object {
	t.Helper()
	objs := make([]*Object, n)
	for i := range objs {
		obj, err := b.NewObject(context.Background(), base+uint32(i))
		require.NoError(t, err)
		objs[i] = obj
	}
	return objs
}

func assertReleasedOnDaemon(t *testing.T, native *fakeNative) {
	t.Helper()
	native.mu.Lock()
	defer native.mu.Unlock()
	for _, tid := range native.releasedOn {
		daemon, ok := native.threads[tid]
		assert.True(t, ok && daemon, "release ran on thread %d which is not the attached daemon", tid)
	}
}

func TestReferences_ReleasedExactlyOnce(t *testing.T) {
	for _, mode := range []DaemonMode{DaemonRuntimeThread, DaemonHostTask} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := testConfig()
			cfg.Daemon.Mode = mode
			cfg.Daemon.Interval = 5 * time.Millisecond
			b, native := startAttached(t, cfg)

			const n = 64
			objs := makeObjects(t, b, 100, n)

			var wg sync.WaitGroup
			for _, obj := range objs[:n/2] {
				for range 4 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_ = obj.Close()
					}()
				}
			}
			wg.Wait()
			clear(objs)

			require.Eventually(t, func() bool {
				runtime.GC()
				return native.releaseCount() == n
			}, 5*time.Second, 10*time.Millisecond)

			for i := range n {
				assert.Equal(t, 1, native.releasedTimes(100+uint32(i)), "rep %d", 100+i)
			}
			assertReleasedOnDaemon(t, native)

			require.Eventually(t, func() bool {
				return b.DaemonStats().Released == n
			}, time.Second, 5*time.Millisecond)
			stats := b.DaemonStats()
			assert.Zero(t, stats.Failed)
			assert.Zero(t, stats.Pending)
		})
	}
}

func TestReferences_ShutdownDrainsQueue(t *testing.T) {
	ctx := context.Background()
	b, native := startAttached(t, testConfig())
	native.setReleaseHook(func(context.Context) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})

	objs := makeObjects(t, b, 200, 10)
	for _, obj := range objs {
		require.NoError(t, obj.Close())
	}

	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, 10, native.releaseCount())
	for _, obj := range objs {
		assert.True(t, obj.Released())
	}
}

func TestReferences_ShutdownDaemonTimeout(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Daemon.StopTimeout = 50 * time.Millisecond
	b, native := startAttached(t, cfg)

	entered := make(chan struct{}, 1)
	native.setReleaseHook(func(ctx context.Context) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	})

	obj, err := b.NewObject(ctx, 300)
	require.NoError(t, err)
	require.NoError(t, obj.Close())

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("release never reached the runtime")
	}

	err = b.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDaemonTimeout)
	assert.True(t, errors.IsWarning(err))
	assert.Equal(t, Stopped, b.State())
	assert.True(t, native.isClosed())
	assert.Zero(t, native.releaseCount())
}

func TestReferences_FailedReleaseDoesNotBlockQueue(t *testing.T) {
	b, native := startAttached(t, testConfig())

	objs := makeObjects(t, b, 400, 3)
	// Drop the middle handle behind the bridge's back so its release fails.
	_, ok := native.table.Remove(objs[1].Handle())
	require.True(t, ok)

	for _, obj := range objs {
		require.NoError(t, obj.Close())
	}

	require.Eventually(t, func() bool {
		return native.releaseCount() == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return b.DaemonStats().Failed == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, native.releasedTimes(400))
	assert.Equal(t, 1, native.releasedTimes(402))
}

func TestReferences_AfterShutdownDropped(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	b, native := startAttached(t, testConfig(), WithRegisterer(reg))

	obj, err := b.NewObject(ctx, 500)
	require.NoError(t, err)
	require.NoError(t, b.Shutdown(ctx))

	require.NoError(t, obj.Close())
	assert.False(t, obj.Released())
	assert.Zero(t, native.releaseCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Metrics().Releases.WithLabelValues(resultDropped)))
}

func TestReferences_NewObjectRequiresAttachedThread(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBridge(t, testConfig())
	require.NoError(t, b.Start(ctx, ""))

	_, err := b.NewObject(ctx, 1)
	assert.ErrorIs(t, err, errors.ErrThreadNotAttached)
}

func TestReferences_LookupAndWeak(t *testing.T) {
	b, _ := startAttached(t, testConfig())

	obj, err := b.NewObject(context.Background(), 600)
	require.NoError(t, err)

	assert.Same(t, obj, b.Lookup(obj.Handle()))

	w := obj.Weak()
	assert.Same(t, obj, w.Owner())
	assert.True(t, w.Same(obj))
	assert.Equal(t, obj.Handle(), w.Handle())

	require.NoError(t, obj.Close())
	assert.Nil(t, b.Lookup(obj.Handle()))
	assert.Nil(t, w.Owner())
	assert.True(t, w.Same(obj))
}

func TestReferences_StringValue(t *testing.T) {
	ctx := context.Background()
	b, _ := startAttached(t, testConfig())

	obj, err := b.NewObject(ctx, 16)
	require.NoError(t, err)

	v, err := b.StringValue(ctx, obj)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	require.NoError(t, b.Policy().SetStringConversion(ctx, false))
	v, err = b.StringValue(ctx, obj)
	require.NoError(t, err)
	assert.Same(t, obj, v)

	_, err = b.StringValue(ctx, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestReferences_LiveGauge(t *testing.T) {
	ctx := context.Background()
	b, native := startAttached(t, testConfig())
	live := b.Metrics().References

	objs := makeObjects(t, b, 700, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(live))

	require.NoError(t, objs[0].Close())
	require.Eventually(t, func() bool {
		return native.releaseCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(live))

	// Shutdown drains what is queued and forgets the rest.
	require.NoError(t, objs[1].Close())
	require.NoError(t, b.Shutdown(ctx))
	assert.Equal(t, 0.0, testutil.ToFloat64(live))
	runtime.KeepAlive(objs)
}

func TestReleaseQueue_FIFO(t *testing.T) {
	q := newReleaseQueue(nil)
	refs := []*NativeReference{{rep: 1}, {rep: 2}, {rep: 3}}
	for _, r := range refs {
		r.queue = q
		r.schedule()
		r.schedule()
	}
	assert.Equal(t, 3, q.pending())

	got := q.take()
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Same(t, refs[i], r)
	}
	assert.Zero(t, q.pending())

	q.close()
	(&NativeReference{queue: q}).schedule()
	assert.Zero(t, q.pending())
	assert.Equal(t, uint64(1), q.dropped.Load())
}

package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

type fakeNative struct {
	table       *resource.Table
	threads     map[uint64]bool
	released    map[uint32]int
	releasedOn  []uint64
	strings     map[uint32]string
	releaseHook func(ctx context.Context) error
	convert     []bool
	calls       []string
	detached    []uint64
	mu          sync.Mutex
	closed      bool
}

func newFakeNative() *fakeNative {
	return &fakeNative{
		table:    resource.NewTable(),
		threads:  make(map[uint64]bool),
		released: make(map[uint32]int),
		strings:  map[uint32]string{16: "hello"},
	}
}

func (f *fakeNative) Table() *resource.Table { return f.table }

func (f *fakeNative) Register(rep uint32) (resource.Handle, error) {
	return f.table.Insert(rep, nil)
}

func (f *fakeNative) Release(ctx context.Context, h resource.Handle) error {
	if hook := f.hook(); hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	rep, ok := f.table.Remove(h)
	if !ok {
		return errors.Release(h.Index(), errors.ErrInvalidInput)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[rep]++
	f.releasedOn = append(f.releasedOn, currentThreadID())
	return nil
}

func (f *fakeNative) hook() func(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releaseHook
}

func (f *fakeNative) SetStringConversion(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convert = append(f.convert, enabled)
	return nil
}

func (f *fakeNative) ReadString(_ context.Context, h resource.Handle) (string, error) {
	rep, ok := f.table.Rep(h)
	if !ok {
		return "", errors.InvalidInput(errors.PhaseCall, "unknown handle")
	}
	return f.strings[rep], nil
}

func (f *fakeNative) Call(_ context.Context, name string, params ...uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	var sum uint64
	for _, p := range params {
		sum += p
	}
	return []uint64{sum}, nil
}

func (f *fakeNative) AttachThread(id uint64, daemon bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[id] = daemon
	return nil
}

func (f *fakeNative) DetachThread(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.threads, id)
	f.detached = append(f.detached, id)
}

func (f *fakeNative) Close(context.Context, uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.table.Close()
	return nil
}

func (f *fakeNative) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeNative) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.released {
		n += c
	}
	return n
}

func (f *fakeNative) releasedTimes(rep uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released[rep]
}

func (f *fakeNative) lastConvert() (bool, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.convert) == 0 {
		return false, 0
	}
	return f.convert[len(f.convert)-1], len(f.convert)
}

func (f *fakeNative) setReleaseHook(fn func(context.Context) error) {
	f.mu.Lock()
	f.releaseHook = fn
	f.mu.Unlock()
}

type fakeLoader struct {
	loadErr  error
	joinErr  error
	joined   *fakeNative
	natives  []*fakeNative
	lastPath string
	lastArgs []string
	mu       sync.Mutex
}

func (l *fakeLoader) Load(_ context.Context, path string, args []string) (Native, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastPath = path
	l.lastArgs = args
	if l.loadErr != nil {
		err := l.loadErr
		l.loadErr = nil
		return nil, err
	}
	n := newFakeNative()
	l.natives = append(l.natives, n)
	return n, nil
}

func (l *fakeLoader) Join(_ context.Context, path string) (Native, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastPath = path
	if l.joinErr != nil {
		return nil, l.joinErr
	}
	if l.joined == nil {
		l.joined = newFakeNative()
	}
	return l.joined, nil
}

func (l *fakeLoader) native(i int) *fakeNative {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.natives[i]
}

func (l *fakeLoader) loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.natives)
}

type fakeFinder struct {
	err  error
	path string
	args []string
}

func (f fakeFinder) Platform() string { return "test" }

func (f fakeFinder) FindLibraryPath() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

func (f fakeFinder) BootArguments(string) []string {
	return append([]string(nil), f.args...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Daemon.StopTimeout = 2 * time.Second
	return cfg
}

func newTestBridge(t *testing.T, cfg Config, opts ...Option) (*Bridge, *fakeLoader) {
	t.Helper()
	loader := &fakeLoader{}
	opts = append([]Option{
		WithLoader(loader),
		WithFinder(fakeFinder{path: "/opt/hostbridge/runtime.wasm"}),
	}, opts...)
	b, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	return b, loader
}

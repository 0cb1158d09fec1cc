package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// Guest exports the engine looks for. All are optional.
const (
	ExportRelease           = "release"
	ExportSetConvertStrings = "set_convert_strings"
	ExportStringPtr         = "string_ptr"
	ExportStringLen         = "string_len"
	ExportInitialize        = "_initialize"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// ThreadWait bounds how long Close waits for non-daemon threads to
	// detach before tearing the runtime down anyway. 0 means no wait.
	ThreadWait time.Duration
}

// ThreadContext is the engine-side record of an attached OS thread.
type ThreadContext struct {
	AttachedAt time.Time
	ID         uint64
	Daemon     bool
}

// Engine is one loaded guest runtime: a wazero runtime, the instantiated
// guest module and the table of native references into it.
type Engine struct {
	runtime  wazero.Runtime
	module   api.Module
	table    *resource.Table
	cfg      Config
	threads  map[uint64]*ThreadContext
	detached chan struct{}
	path     string
	args     []string

	threadsMu      sync.Mutex
	convertStrings atomic.Bool
	closed         atomic.Bool

	// callMu serializes guest calls; a module instance is single-threaded.
	callMu sync.Mutex
}

// Load reads the guest image at path, compiles and instantiates it with args
// as its argv. The returned engine is published for Lookup.
func Load(ctx context.Context, path string, args []string, cfg *Config) (*Engine, error) {
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseBootstrap, "empty library path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Bootstrap(path, "resolve path", err)
	}

	wasm, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Bootstrap(abs, "read guest image", err)
	}

	var c Config
	if cfg != nil {
		c = *cfg
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	e, err := instantiate(ctx, rt, abs, wasm, args)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	e.cfg = c

	Publish(e)
	Logger().Info("guest runtime loaded",
		zap.String("path", abs),
		zap.Strings("args", args),
		zap.Int("exports", len(e.module.ExportedFunctionDefinitions())))
	return e, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, path string, wasm []byte, args []string) (*Engine, error) {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, errors.Bootstrap(path, "instantiate WASI", err)
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Bootstrap(path, "compile guest", err)
	}

	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(args...).
		WithStartFunctions(ExportInitialize)

	mod, err := rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.Bootstrap(path, "instantiate guest", err)
	}

	e := &Engine{
		runtime:  rt,
		module:   mod,
		table:    resource.NewTable(),
		threads:  make(map[uint64]*ThreadContext),
		detached: make(chan struct{}, 1),
		path:     path,
		args:     append([]string(nil), args...),
	}
	e.convertStrings.Store(true)
	return e, nil
}

// Path returns the absolute path the guest was loaded from.
func (e *Engine) Path() string { return e.path }

// Args returns the argv the guest was started with.
func (e *Engine) Args() []string { return append([]string(nil), e.args...) }

// Table returns the native reference table.
func (e *Engine) Table() *resource.Table { return e.table }

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool { return e.closed.Load() }

// Register records a guest representation and returns the handle that owns it.
func (e *Engine) Register(rep uint32) (resource.Handle, error) {
	if e.closed.Load() {
		return 0, errors.NotRunning(errors.PhaseCall, "closed")
	}
	h, err := e.table.Insert(rep, nil)
	if stderrors.Is(err, resource.ErrClosed) {
		return 0, errors.New(errors.PhaseCall, errors.KindNotRunning).
			Value(rep).
			Detail("reference table closed").
			Cause(err).
			Build()
	}
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCall, errors.KindInvalidInput, err, "register reference")
	}
	return h, nil
}

// Release removes h from the table and, when the guest exports release,
// hands the representation back to the guest. The table entry is gone even
// if the guest call fails.
func (e *Engine) Release(ctx context.Context, h resource.Handle) error {
	if e.closed.Load() {
		return errors.NotRunning(errors.PhaseRelease, "closed")
	}
	rep, ok := e.table.Remove(h)
	if !ok {
		return errors.Release(h.Index(), fmt.Errorf("unknown handle %#x", uint64(h)))
	}

	fn := e.module.ExportedFunction(ExportRelease)
	if fn == nil {
		return nil
	}
	if _, err := e.invoke(ctx, fn, api.EncodeU32(rep)); err != nil {
		return errors.Release(h.Index(), err)
	}
	return nil
}

// SetStringConversion records the mode and pushes it into the guest when the
// guest exports set_convert_strings.
func (e *Engine) SetStringConversion(ctx context.Context, enabled bool) error {
	e.convertStrings.Store(enabled)
	if e.closed.Load() {
		return nil
	}
	fn := e.module.ExportedFunction(ExportSetConvertStrings)
	if fn == nil {
		return nil
	}
	var v uint32
	if enabled {
		v = 1
	}
	if _, err := e.invoke(ctx, fn, api.EncodeU32(v)); err != nil {
		return errors.Wrap(errors.PhasePolicy, errors.KindInvalidInput, err, "propagate string conversion")
	}
	return nil
}

// StringConversion reports the mode last pushed into the guest.
func (e *Engine) StringConversion() bool {
	return e.convertStrings.Load()
}

// ReadString copies the UTF-8 bytes of the guest string behind h.
func (e *Engine) ReadString(ctx context.Context, h resource.Handle) (string, error) {
	rep, ok := e.table.Rep(h)
	if !ok {
		return "", errors.InvalidInput(errors.PhaseCall, fmt.Sprintf("unknown handle %#x", uint64(h)))
	}

	ptrFn := e.module.ExportedFunction(ExportStringPtr)
	lenFn := e.module.ExportedFunction(ExportStringLen)
	mem := e.module.Memory()
	if ptrFn == nil || lenFn == nil || mem == nil {
		return "", errors.InvalidInput(errors.PhaseCall, "guest does not export string access")
	}

	ptr, err := e.invoke(ctx, ptrFn, api.EncodeU32(rep))
	if err != nil {
		return "", errors.Wrap(errors.PhaseCall, errors.KindInvalidInput, err, ExportStringPtr)
	}
	n, err := e.invoke(ctx, lenFn, api.EncodeU32(rep))
	if err != nil {
		return "", errors.Wrap(errors.PhaseCall, errors.KindInvalidInput, err, ExportStringLen)
	}

	data, ok := mem.Read(api.DecodeU32(ptr[0]), api.DecodeU32(n[0]))
	if !ok {
		return "", errors.InvalidInput(errors.PhaseCall, "guest string out of bounds")
	}
	return string(data), nil
}

// Call invokes a guest export with raw core values.
func (e *Engine) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	if e.closed.Load() {
		return nil, errors.NotRunning(errors.PhaseCall, "closed")
	}
	fn := e.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.New(errors.PhaseCall, errors.KindNotFound).
			Detail("export %q not found", name).
			Build()
	}
	results, err := e.invoke(ctx, fn, params...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCall, errors.KindInvalidInput, err, "call "+name)
	}
	return results, nil
}

func (e *Engine) invoke(ctx context.Context, fn api.Function, params ...uint64) ([]uint64, error) {
	e.callMu.Lock()
	defer e.callMu.Unlock()
	return fn.Call(ctx, params...)
}

// Exports lists the guest's exported function names, sorted.
func (e *Engine) Exports() []string {
	defs := e.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Signature describes one exported guest function with wasm value type
// names ("i32", "i64", "f32", "f64").
type Signature struct {
	Name    string
	Params  []string
	Results []string
}

// Signatures describes every exported guest function, sorted by name.
func (e *Engine) Signatures() []Signature {
	defs := e.module.ExportedFunctionDefinitions()
	out := make([]Signature, 0, len(defs))
	for _, name := range e.Exports() {
		def := defs[name]
		sig := Signature{Name: name}
		for _, t := range def.ParamTypes() {
			sig.Params = append(sig.Params, api.ValueTypeName(t))
		}
		for _, t := range def.ResultTypes() {
			sig.Results = append(sig.Results, api.ValueTypeName(t))
		}
		out = append(out, sig)
	}
	return out
}

// AttachThread registers an OS thread with the runtime. Attaching an already
// attached thread updates nothing and succeeds.
func (e *Engine) AttachThread(id uint64, daemon bool) error {
	if e.closed.Load() {
		return errors.Attach(errors.PhaseAttach, "runtime closed", nil)
	}
	e.threadsMu.Lock()
	defer e.threadsMu.Unlock()

	if _, ok := e.threads[id]; ok {
		return nil
	}
	e.threads[id] = &ThreadContext{ID: id, Daemon: daemon, AttachedAt: time.Now()}
	Logger().Debug("thread attached", zap.Uint64("thread", id), zap.Bool("daemon", daemon))
	return nil
}

// DetachThread unregisters an OS thread. Unknown threads are ignored.
func (e *Engine) DetachThread(id uint64) {
	e.threadsMu.Lock()
	_, ok := e.threads[id]
	delete(e.threads, id)
	e.threadsMu.Unlock()

	if ok {
		Logger().Debug("thread detached", zap.Uint64("thread", id))
		select {
		case e.detached <- struct{}{}:
		default:
		}
	}
}

// Threads returns a snapshot of attached threads.
func (e *Engine) Threads() []ThreadContext {
	e.threadsMu.Lock()
	defer e.threadsMu.Unlock()

	out := make([]ThreadContext, 0, len(e.threads))
	for _, tc := range e.threads {
		out = append(out, *tc)
	}
	return out
}

func (e *Engine) userThreads(except uint64) int {
	e.threadsMu.Lock()
	defer e.threadsMu.Unlock()

	n := 0
	for id, tc := range e.threads {
		if !tc.Daemon && id != except {
			n++
		}
	}
	return n
}

// Close waits up to Config.ThreadWait for non-daemon threads other than
// caller to detach, then destroys the guest runtime. Daemon threads are
// never waited for.
func (e *Engine) Close(ctx context.Context, caller uint64) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	Unpublish(e)

	if e.cfg.ThreadWait > 0 {
		deadline := time.NewTimer(e.cfg.ThreadWait)
	wait:
		for e.userThreads(caller) > 0 {
			select {
			case <-e.detached:
			case <-deadline.C:
				break wait
			case <-ctx.Done():
				break wait
			}
		}
		deadline.Stop()
	}

	if n := e.userThreads(caller); n > 0 {
		Logger().Warn("tearing down runtime with attached threads", zap.Int("threads", n))
	}

	e.threadsMu.Lock()
	e.threads = make(map[uint64]*ThreadContext)
	e.threadsMu.Unlock()

	if live := e.table.Close(); live > 0 {
		Logger().Debug("native references outlived runtime", zap.Int("live", live))
	}

	err := e.runtime.Close(ctx)
	Logger().Info("guest runtime closed", zap.String("path", e.path))
	return err
}

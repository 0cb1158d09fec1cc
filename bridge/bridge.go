package bridge

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/locator"
	"github.com/wippyai/hostbridge/resource"
)

// Bridge owns the lifecycle of one embedded runtime and everything bound to
// it: thread attachments, the reference daemon and the conversion policy.
// A process normally has exactly one; see the hostbridge package.
type Bridge struct {
	loader     Loader
	finder     locator.Finder
	inits      *Initializers
	policy     *Policy
	metrics    *Metrics
	threads    *threadTable
	sess       *session
	cfg        Config
	mu         sync.RWMutex
	cycles     atomic.Uint64
	state      atomic.Int32
	autoAttach atomic.Bool
	// transition is held by the one start, attach or shutdown in flight,
	// from its first state change until its last.
	transition atomic.Bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLoader replaces the default wazero loader.
func WithLoader(l Loader) Option {
	return func(b *Bridge) { b.loader = l }
}

// WithFinder replaces the platform finder.
func WithFinder(f locator.Finder) Option {
	return func(b *Bridge) { b.finder = f }
}

// WithInitializers replaces the default subsystem initializers.
func WithInitializers(s *Initializers) Option {
	return func(b *Bridge) { b.inits = s }
}

// WithRegisterer registers the bridge metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Bridge) { b.metrics = NewMetrics(reg) }
}

// New creates a bridge in the NotStarted state. Start from DefaultConfig:
// a zero Config has string conversion off.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Bridge{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	if b.loader == nil {
		b.loader = WazeroLoader{Config: engine.Config{
			MemoryLimitPages: cfg.MemoryLimitPages,
			ThreadWait:       cfg.ThreadWait,
		}}
	}
	if b.finder == nil {
		b.finder = locator.Default()
	}
	if b.inits == nil {
		b.inits = DefaultInitializers()
	}
	if b.metrics == nil {
		b.metrics = NewMetrics(nil)
	}
	b.policy = NewPolicy(cfg.ConvertStrings)
	b.threads = newThreadTable(b.metrics)
	b.autoAttach.Store(cfg.AutoAttach)
	return b, nil
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// IsRunning reports whether the runtime is live.
func (b *Bridge) IsRunning() bool {
	return b.State().Live()
}

// Instance describes the bound runtime, if any.
func (b *Bridge) Instance() (RuntimeInstance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.sess == nil {
		return RuntimeInstance{}, false
	}
	return b.sess.instance, true
}

// Policy returns the conversion policy store.
func (b *Bridge) Policy() *Policy { return b.policy }

// Initializers returns the subsystem initializers run on start and attach.
func (b *Bridge) Initializers() *Initializers { return b.inits }

// Metrics returns the bridge collectors.
func (b *Bridge) Metrics() *Metrics { return b.metrics }

// Config returns a copy of the configuration.
func (b *Bridge) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cfg := b.cfg
	cfg.AutoAttach = b.autoAttach.Load()
	cfg.ConvertStrings = b.policy.StringConversion()
	return cfg
}

// SetDaemonMode selects the daemon mode for the next start or attach.
func (b *Bridge) SetDaemonMode(mode DaemonMode) error {
	if mode != DaemonRuntimeThread && mode != DaemonHostTask {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(mode).
			Detail("unknown daemon mode %q", mode).
			Build()
	}
	b.mu.Lock()
	b.cfg.Daemon.Mode = mode
	b.mu.Unlock()
	return nil
}

// SetAutoAttach toggles implicit attachment on boundary crossings.
func (b *Bridge) SetAutoAttach(enabled bool) {
	b.autoAttach.Store(enabled)
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
	b.metrics.State.Set(float64(s))
}

// begin claims the transition and moves a startable state into Starting.
// Concurrent start and attach calls race on the claim; the losers see
// AlreadyRunning. The caller must call end once bind or abort is done.
func (b *Bridge) begin() (State, error) {
	if !b.transition.CompareAndSwap(false, true) {
		return b.State(), errors.AlreadyRunning(b.State().String())
	}
	cur := b.State()
	if !cur.startable() {
		b.end()
		return cur, errors.AlreadyRunning(cur.String())
	}
	b.setState(Starting)
	return cur, nil
}

func (b *Bridge) end() {
	b.transition.Store(false)
}

// Start boots the runtime in this process. An empty libraryPath falls back
// to the configured path and then to the locator. Boot arguments are the
// platform's, then the configured ones, then args.
func (b *Bridge) Start(ctx context.Context, libraryPath string, args ...string) error {
	prev, err := b.begin()
	if err != nil {
		return err
	}
	defer b.end()

	path, err := b.resolvePath(libraryPath)
	if err != nil {
		b.setState(prev)
		return err
	}

	b.mu.RLock()
	bootArgs := append(b.finder.BootArguments(path), b.cfg.Args...)
	b.mu.RUnlock()
	bootArgs = append(bootArgs, args...)

	native, err := b.loader.Load(ctx, path, bootArgs)
	if err != nil {
		b.setState(prev)
		Logger().Warn("runtime failed to start", zap.String("path", path), zap.Error(err))
		return asBootstrap(path, err)
	}

	sess := b.newSession(native, path, bootArgs, true)
	if err := b.bind(ctx, sess, Running, false); err != nil {
		b.abort(ctx, sess, prev)
		return errors.Bootstrap(path, "initialize subsystems", err)
	}

	Logger().Info("runtime started",
		zap.String("id", sess.instance.ID),
		zap.String("path", path),
		zap.Strings("args", bootArgs))
	return nil
}

// Attach binds to a runtime that something else in this process already
// started. Initializers marked StageStartOnly are skipped, and Shutdown
// detaches from the runtime instead of destroying it.
func (b *Bridge) Attach(ctx context.Context, libraryPath string) error {
	prev, err := b.begin()
	if err != nil {
		return err
	}
	defer b.end()

	path := libraryPath
	if path == "" {
		b.mu.RLock()
		path = b.cfg.LibraryPath
		b.mu.RUnlock()
	}

	native, err := b.loader.Join(ctx, path)
	if err != nil {
		b.setState(prev)
		if stderrors.Is(err, errors.ErrAttach) {
			return err
		}
		return errors.Attach(errors.PhaseLifecycle, "join runtime", err)
	}

	sess := b.newSession(native, path, nil, false)
	if err := b.bind(ctx, sess, Attached, true); err != nil {
		b.abort(ctx, sess, prev)
		return errors.Attach(errors.PhaseLifecycle, "initialize subsystems", err)
	}

	Logger().Info("attached to runtime", zap.String("id", sess.instance.ID), zap.String("path", path))
	return nil
}

func (b *Bridge) resolvePath(libraryPath string) (string, error) {
	if libraryPath != "" {
		return libraryPath, nil
	}
	b.mu.RLock()
	path := b.cfg.LibraryPath
	b.mu.RUnlock()
	if path != "" {
		return path, nil
	}
	return b.finder.FindLibraryPath()
}

func (b *Bridge) newSession(native Native, path string, args []string, owned bool) *session {
	b.mu.RLock()
	dc := b.cfg.Daemon
	b.mu.RUnlock()

	q := newReleaseQueue(b.metrics)
	sess := &session{
		native:  native,
		queue:   q,
		objects: make(map[resource.Handle]weak.Pointer[Object]),
		refs:    watchReferences(native, b.metrics.References),
		cycle:   b.cycles.Add(1),
		instance: RuntimeInstance{
			ID:          uuid.NewString(),
			LibraryPath: path,
			Args:        args,
			Owned:       owned,
			StartedAt:   time.Now(),
		},
	}
	d := newDaemon(q, dc.Mode, dc.Interval, b.metrics)
	d.release = sess.release
	d.attach = func() error { return b.threads.attach(native, true, false) }
	d.detach = func() { b.threads.detach(native) }
	sess.daemon = d
	return sess
}

// bind publishes sess, makes the runtime live and runs the initializers.
// The daemon starts only once the initializers succeeded.
func (b *Bridge) bind(ctx context.Context, sess *session, live State, attach bool) error {
	if err := b.policy.bind(ctx, sess.native.SetStringConversion); err != nil {
		Logger().Warn("string conversion not propagated", zap.Error(err))
	}

	b.mu.Lock()
	b.sess = sess
	b.mu.Unlock()
	b.setState(live)

	if err := b.inits.run(sess.cycle, attach); err != nil {
		return err
	}
	sess.daemon.start()
	return nil
}

// abort undoes a bind whose initializers failed and restores prev.
func (b *Bridge) abort(ctx context.Context, sess *session, prev State) {
	b.setState(Starting)
	b.policy.unbind()
	_ = sess.daemon.shutdown(0)
	if err := sess.teardown(ctx, currentThreadID()); err != nil {
		Logger().Warn("runtime teardown after failed start", zap.Error(err))
	}
	b.threads.reset(sess.native, !sess.instance.Owned)

	b.mu.Lock()
	b.sess = nil
	b.mu.Unlock()
	b.setState(prev)
}

// Shutdown stops the reference daemon, waiting up to the configured stop
// timeout for it to drain, then tears the runtime down (or detaches from a
// runtime joined with Attach). Shutdown when nothing is running returns a
// NotRunning warning; check it with errors.IsWarning. Shutdown while a
// start, attach or another shutdown is in flight, initializers included,
// fails with TransitionInProgress.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if !b.transition.CompareAndSwap(false, true) {
		return errors.TransitionInProgress(b.State().String())
	}
	defer b.end()

	switch cur := b.State(); cur {
	case NotStarted, Stopped:
		return errors.NotRunningWarning(cur.String())
	case Starting, ShuttingDown:
		return errors.TransitionInProgress(cur.String())
	}
	b.setState(ShuttingDown)

	b.mu.RLock()
	sess := b.sess
	timeout := b.cfg.Daemon.StopTimeout
	b.mu.RUnlock()

	warn := sess.daemon.shutdown(timeout)
	b.policy.unbind()

	// User threads detach against the runtime while teardown waits for them,
	// so bindings are reset only afterwards.
	err := sess.teardown(ctx, currentThreadID())
	b.threads.reset(sess.native, !sess.instance.Owned)

	b.mu.Lock()
	b.sess = nil
	b.mu.Unlock()
	b.setState(Stopped)

	stats := sess.daemon.stats()
	Logger().Info("runtime shut down",
		zap.String("id", sess.instance.ID),
		zap.Bool("owned", sess.instance.Owned),
		zap.Uint64("released", stats.Released),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("dropped", stats.Dropped))

	if err != nil {
		return errors.Wrap(errors.PhaseLifecycle, errors.KindBootstrap, err, "tear down runtime")
	}
	return warn
}

// DaemonStats reports reference daemon counters for the current cycle.
func (b *Bridge) DaemonStats() DaemonStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.sess == nil {
		return DaemonStats{}
	}
	return b.sess.daemon.stats()
}

func (b *Bridge) session() *session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sess
}

package hostbridge

import (
	"context"
	"sync"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/locator"
)

var (
	defaultMu     sync.Mutex
	defaultBridge *bridge.Bridge
	defaultConfig = bridge.DefaultConfig()
)

// Default returns the process-wide bridge, creating it on first use from the
// configuration set with Configure (or bridge.DefaultConfig).
func Default() *bridge.Bridge {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBridge == nil {
		b, err := bridge.New(defaultConfig)
		if err != nil {
			// Configure validates, so only a corrupted default can get here.
			panic(err)
		}
		defaultBridge = b
	}
	return defaultBridge
}

// Configure replaces the configuration of the process-wide bridge. It fails
// with errors.ErrAlreadyRunning once the bridge has been used for a start or
// attach that is still live.
func Configure(cfg bridge.Config, opts ...bridge.Option) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBridge != nil {
		if st := defaultBridge.State(); st != bridge.NotStarted && st != bridge.Stopped {
			return errors.AlreadyRunning(st.String())
		}
	}
	b, err := bridge.New(cfg, opts...)
	if err != nil {
		return err
	}
	defaultConfig = cfg
	defaultBridge = b
	return nil
}

// StartRuntime starts the process-wide runtime. An empty libraryPath asks
// the configuration and then the platform locator.
func StartRuntime(ctx context.Context, libraryPath string, args ...string) error {
	return Default().Start(ctx, libraryPath, args...)
}

// AttachToRuntime binds to a runtime already live in this process.
func AttachToRuntime(ctx context.Context, libraryPath string) error {
	return Default().Attach(ctx, libraryPath)
}

// ShutdownRuntime stops the reference daemon and tears the runtime down.
// Shutting down a runtime that is not running returns a warning; test it
// with errors.IsWarning.
func ShutdownRuntime(ctx context.Context) error {
	return Default().Shutdown(ctx)
}

// IsRuntimeStarted reports whether the runtime is running or attached.
func IsRuntimeStarted() bool {
	return Default().IsRunning()
}

// IsCurrentThreadAttached reports whether the calling OS thread is attached.
func IsCurrentThreadAttached() bool {
	return Default().IsCurrentThreadAttached()
}

// AttachCurrentThread attaches the calling OS thread and pins the calling
// goroutine to it until DetachCurrentThread.
func AttachCurrentThread() error {
	return Default().AttachCurrentThread()
}

// AttachCurrentThreadAsDaemon attaches the calling OS thread as a thread the
// runtime does not wait for at teardown.
func AttachCurrentThreadAsDaemon() error {
	return Default().AttachCurrentThreadAsDaemon()
}

// DetachCurrentThread detaches the calling OS thread.
func DetachCurrentThread() {
	Default().DetachCurrentThread()
}

// SetStringConversionEnabled sets the process-wide string-conversion mode
// and pushes it into the running runtime.
func SetStringConversionEnabled(ctx context.Context, enabled bool) error {
	return Default().Policy().SetStringConversion(ctx, enabled)
}

// StringConversionEnabled reports the process-wide string-conversion mode.
func StringConversionEnabled() bool {
	return Default().Policy().StringConversion()
}

// SetUseHostThreadForDaemon selects where the reference daemon runs from the
// next start or attach: a periodic host task when enabled, a dedicated
// runtime daemon thread otherwise.
func SetUseHostThreadForDaemon(enabled bool) error {
	mode := bridge.DaemonRuntimeThread
	if enabled {
		mode = bridge.DaemonHostTask
	}
	return Default().SetDaemonMode(mode)
}

// DefaultLibraryPath asks the platform locator for the runtime library.
func DefaultLibraryPath() (string, error) {
	return locator.DefaultLibraryPath()
}

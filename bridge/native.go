package bridge

import (
	"context"
	stderrors "errors"

	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// Native is the native side of one loaded runtime. Every method except
// Close may be called concurrently from attached threads.
type Native interface {
	Register(rep uint32) (resource.Handle, error)
	Release(ctx context.Context, h resource.Handle) error
	SetStringConversion(ctx context.Context, enabled bool) error
	ReadString(ctx context.Context, h resource.Handle) (string, error)
	Call(ctx context.Context, name string, params ...uint64) ([]uint64, error)
	AttachThread(id uint64, daemon bool) error
	DetachThread(id uint64)
	// Close tears the runtime down. caller is the OS thread performing the
	// teardown, which the runtime must not wait for.
	Close(ctx context.Context, caller uint64) error
}

// Loader produces Natives: Load boots a new runtime, Join binds to one that
// is already live in the process.
type Loader interface {
	Load(ctx context.Context, libraryPath string, args []string) (Native, error)
	Join(ctx context.Context, libraryPath string) (Native, error)
}

// WazeroLoader loads guest runtimes with the engine package.
type WazeroLoader struct {
	Config engine.Config
}

// Load boots the guest image at libraryPath.
func (l WazeroLoader) Load(ctx context.Context, libraryPath string, args []string) (Native, error) {
	e, err := engine.Load(ctx, libraryPath, args, &l.Config)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Join binds to an engine another component of this process loaded.
func (l WazeroLoader) Join(_ context.Context, libraryPath string) (Native, error) {
	e, ok := engine.Lookup(libraryPath)
	if !ok {
		return nil, errors.New(errors.PhaseLifecycle, errors.KindAttach).
			Path(libraryPath).
			Detail("no live runtime in this process").
			Build()
	}
	return e, nil
}

// asBootstrap keeps bootstrap errors as they are and wraps anything else.
func asBootstrap(libraryPath string, err error) error {
	if stderrors.Is(err, errors.ErrBootstrap) {
		return err
	}
	return errors.Bootstrap(libraryPath, "load runtime", err)
}

package bridge

import (
	"context"

	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/resource"
)

// AttachCurrentThread pins the calling goroutine to its OS thread and
// attaches that thread to the runtime. Attaching an attached thread is a
// no-op. The goroutine stays pinned until DetachCurrentThread.
func (b *Bridge) AttachCurrentThread() error {
	return b.attachCurrent(false)
}

// AttachCurrentThreadAsDaemon is AttachCurrentThread for threads the runtime
// must not wait for at teardown.
func (b *Bridge) AttachCurrentThreadAsDaemon() error {
	return b.attachCurrent(true)
}

func (b *Bridge) attachCurrent(daemon bool) error {
	sess := b.session()
	if st := b.State(); !st.Live() || sess == nil {
		return errors.Attach(errors.PhaseAttach, "runtime is "+st.String(), errors.ErrNotRunning)
	}
	return b.threads.attach(sess.native, daemon, false)
}

// DetachCurrentThread detaches the calling thread and unpins its goroutine.
// Detaching an unattached thread is a no-op.
func (b *Bridge) DetachCurrentThread() {
	var native Native
	if sess := b.session(); sess != nil {
		native = sess.native
	}
	b.threads.detach(native)
}

// IsCurrentThreadAttached reports whether the calling thread is attached.
func (b *Bridge) IsCurrentThreadAttached() bool {
	_, ok := b.threads.current()
	return ok
}

// Threads returns the currently attached threads.
func (b *Bridge) Threads() []ThreadBinding {
	return b.threads.snapshot()
}

// enter guards every boundary crossing: the runtime must be live and the
// calling thread attached, or attachable when auto-attach is on.
func (b *Bridge) enter() (*session, error) {
	sess := b.session()
	if st := b.State(); !st.Live() || sess == nil {
		return nil, errors.NotRunning(errors.PhaseCall, st.String())
	}

	binding, ok := b.threads.current()
	if ok {
		return sess, nil
	}
	if !b.autoAttach.Load() {
		return nil, errors.ThreadNotAttached(binding.ThreadID)
	}
	if err := b.threads.attach(sess.native, false, true); err != nil {
		return nil, err
	}
	return sess, nil
}

// Call invokes a runtime function with raw values.
func (b *Bridge) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	sess, err := b.enter()
	if err != nil {
		return nil, err
	}
	return sess.native.Call(ctx, name, params...)
}

// NewObject takes ownership of the runtime object rep. The returned Object
// releases it through the reference daemon once closed or collected.
func (b *Bridge) NewObject(ctx context.Context, rep uint32) (*Object, error) {
	sess, err := b.enter()
	if err != nil {
		return nil, err
	}
	h, err := sess.native.Register(rep)
	if err != nil {
		return nil, err
	}
	obj := newObject(&NativeReference{queue: sess.queue, handle: h, rep: rep})
	sess.remember(obj)
	return obj, nil
}

// Lookup finds the live Object that owns h. It never creates one.
func (b *Bridge) Lookup(h resource.Handle) *Object {
	sess := b.session()
	if sess == nil {
		return nil
	}
	return sess.lookup(h)
}

// StringValue converts a runtime string object according to the conversion
// policy: a Go string when string conversion is on, obj itself when off.
func (b *Bridge) StringValue(ctx context.Context, obj *Object) (any, error) {
	sess, err := b.enter()
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.InvalidInput(errors.PhaseCall, "nil object")
	}
	if !b.policy.StringConversion() {
		return obj, nil
	}
	return sess.native.ReadString(ctx, obj.Handle())
}

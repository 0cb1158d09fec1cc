// Package bridge manages the embedded runtime's lifecycle and the host side
// of every boundary crossing.
//
// # Lifecycle
//
// A Bridge moves NotStarted -> Starting -> Running (or Attached) ->
// ShuttingDown -> Stopped. Stopped behaves like NotStarted, so a process may
// start, shut down and start again. Start and Attach race on a single
// compare-and-swap; the loser gets errors.ErrAlreadyRunning. A failed start
// leaves the bridge in the state it started from, ready for a retry.
//
//	b, err := bridge.New(bridge.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx, ""); err != nil {
//	    return err
//	}
//	defer b.Shutdown(ctx)
//
// # Threads
//
// Only attached OS threads may cross the boundary. AttachCurrentThread pins
// the calling goroutine with runtime.LockOSThread and keeps it pinned until
// DetachCurrentThread. Crossings from unattached threads fail with
// errors.ErrThreadNotAttached unless Config.AutoAttach is set.
//
// # References
//
// Objects own native references. When an Object is closed or collected its
// reference is queued, and the reference daemon releases it on an attached
// thread. Finalization never calls into the runtime directly. Shutdown waits
// for the daemon to drain, up to Config.Daemon.StopTimeout.
//
// # Initializers
//
// Subsystem initializers run in declaration order once per start or attach
// cycle. Initializers registered with StageStartOnly are skipped on attach.
package bridge

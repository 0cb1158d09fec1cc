// Package hostbridge embeds a managed runtime in a Go process.
//
// The runtime is a WebAssembly guest image executed by wazero. Go code starts
// it (or joins one another component started), attaches the OS threads that
// call into it, and owns runtime objects through host-side wrappers whose
// native references are released by a background reference daemon once the
// wrappers are closed or collected.
//
// # Architecture Overview
//
//	hostbridge/          Process-wide API over a default bridge
//	├── bridge/          Lifecycle, thread attachment, reference daemon, policy
//	├── engine/          wazero-backed native side of a loaded runtime
//	├── locator/         Per-platform runtime library lookup and boot arguments
//	├── resource/        Generation-checked native reference table
//	├── errors/          Structured error types
//	├── testbed/         Hand-encoded runtime image for tests and demos
//	└── cmd/hostbridge/  Command line front end
//
// # Quick Start
//
//	ctx := context.Background()
//	if err := hostbridge.StartRuntime(ctx, ""); err != nil {
//	    log.Fatal(err)
//	}
//	defer hostbridge.ShutdownRuntime(ctx)
//
//	if err := hostbridge.AttachCurrentThread(); err != nil {
//	    log.Fatal(err)
//	}
//	defer hostbridge.DetachCurrentThread()
//
//	res, err := hostbridge.Default().Call(ctx, "add", 40, 2)
//
// # Lifecycle
//
// The runtime is started at most once at a time per bridge:
//
//	NotStarted -> Starting -> Running  -> ShuttingDown -> Stopped
//	                       \-> Attached /
//
// Stopped accepts a new StartRuntime. Shutdown always stops the reference
// daemon before the runtime is torn down, so no release can reach a
// destroyed runtime. A runtime joined with AttachToRuntime is left running.
//
// # Threads
//
// Every call into the runtime must come from an attached OS thread.
// AttachCurrentThread pins the calling goroutine to its thread until
// DetachCurrentThread. With auto_attach enabled in the configuration a
// crossing attaches its thread on demand and leaves it attached.
//
// # Configuration
//
// Configure the process-wide bridge before starting it:
//
//	cfg, err := bridge.LoadConfig("hostbridge.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := hostbridge.Configure(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # Debugging
//
// Each package has a zap logger that is a no-op by default:
//
//	bridge.SetLogger(zap.Must(zap.NewDevelopment()))
//	engine.SetLogger(zap.Must(zap.NewDevelopment()))
package hostbridge

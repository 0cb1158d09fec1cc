// Package engine is the native side of the host bridge: it loads a guest
// runtime image with wazero and exposes the small set of entry points the
// bridge needs.
//
// # Guest ABI
//
// A guest is any core WebAssembly module. The engine calls `_initialize` on
// instantiation when present and looks for these optional exports:
//
//	release(i32)                 release the guest object behind a representation
//	set_convert_strings(i32)     receive the string-conversion mode (0 or 1)
//	string_ptr(i32) -> i32       address of a guest string's UTF-8 bytes
//	string_len(i32) -> i32       byte length of a guest string
//	memory                       linear memory used by string reads
//
// WASI preview1 is instantiated for every engine, and the boot arguments given
// to Load become the guest's argv.
//
// # Native References
//
// Guest objects are identified by 32-bit representations. Register records one
// in the engine's resource.Table and returns the handle that owns it; Release
// removes the handle and hands the representation back to the guest exactly
// once.
//
// # Threads
//
// wazero itself has no notion of thread attachment. The engine keeps the
// registry of attached OS threads so that Close can wait (bounded by
// Config.ThreadWait) for non-daemon threads to finish, the way a managed
// runtime waits for its user threads but never for daemon threads.
//
// # Process Registry
//
// Every loaded engine publishes itself under its absolute path. Lookup lets a
// second bridge in the same process join a runtime it did not start.
package engine

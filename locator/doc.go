// Package locator finds the runtime library on disk and supplies the boot
// arguments each platform requires.
//
// One Finder exists per supported platform, selected from a single dispatch
// table keyed by GOOS:
//
//	f := locator.Default()
//	path, err := f.FindLibraryPath()
//	args := f.BootArguments(path)
//
// Search order is the HOSTBRIDGE_RUNTIME file, then HOSTBRIDGE_HOME/runtime.wasm,
// then the platform's well-known install directories.
package locator

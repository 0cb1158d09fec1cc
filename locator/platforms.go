package locator

import "path/filepath"

type linuxFinder struct{ searcher }

func (f *linuxFinder) Platform() string { return "linux" }

func (f *linuxFinder) FindLibraryPath() (string, error) {
	return f.find(f.Platform(), []string{
		"/usr/lib/hostbridge",
		"/usr/local/lib/hostbridge",
		"/opt/hostbridge",
	})
}

func (f *linuxFinder) BootArguments(string) []string {
	return bootArgs(f.Platform())
}

type darwinFinder struct{ searcher }

func (f *darwinFinder) Platform() string { return "darwin" }

func (f *darwinFinder) FindLibraryPath() (string, error) {
	return f.find(f.Platform(), []string{
		"/Library/Hostbridge",
		"/opt/homebrew/lib/hostbridge",
		"/usr/local/lib/hostbridge",
	})
}

// The guest must run its event loop on the process main thread on darwin.
func (f *darwinFinder) BootArguments(string) []string {
	return bootArgs(f.Platform(), "--main-thread")
}

type windowsFinder struct{ searcher }

func (f *windowsFinder) Platform() string { return "windows" }

func (f *windowsFinder) FindLibraryPath() (string, error) {
	var dirs []string
	for _, key := range []string{"ProgramFiles", "ProgramFiles(x86)", "LOCALAPPDATA"} {
		if base := f.lookup(key); base != "" {
			dirs = append(dirs, filepath.Join(base, "Hostbridge"))
		}
	}
	return f.find(f.Platform(), dirs)
}

func (f *windowsFinder) BootArguments(string) []string {
	return bootArgs(f.Platform())
}

// cygwinFinder searches the windows install locations through /cygdrive
// before falling back to the unix ones.
type cygwinFinder struct{ searcher }

func (f *cygwinFinder) Platform() string { return "cygwin" }

func (f *cygwinFinder) FindLibraryPath() (string, error) {
	return f.find(f.Platform(), []string{
		"/cygdrive/c/Program Files/Hostbridge",
		"/usr/lib/hostbridge",
		"/usr/local/lib/hostbridge",
	})
}

func (f *cygwinFinder) BootArguments(libraryPath string) []string {
	return bootArgs(f.Platform(), "--library-dir="+filepath.Dir(libraryPath))
}

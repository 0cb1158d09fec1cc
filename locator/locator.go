package locator

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/wippyai/hostbridge/errors"
)

const (
	// EnvRuntime names a guest image file directly.
	EnvRuntime = "HOSTBRIDGE_RUNTIME"
	// EnvHome names a directory containing LibraryName.
	EnvHome = "HOSTBRIDGE_HOME"
	// LibraryName is the guest image file searched for in directories.
	LibraryName = "runtime.wasm"
	// ProgramName is argv[0] of every guest.
	ProgramName = "hostbridge"
)

// Finder locates the runtime library for one platform and supplies the boot
// arguments that platform requires.
type Finder interface {
	Platform() string
	FindLibraryPath() (string, error)
	BootArguments(libraryPath string) []string
}

// Env looks up an environment variable.
type Env func(key string) (string, bool)

type factory func(env Env) Finder

var platforms = map[string]factory{
	"linux":   func(env Env) Finder { return &linuxFinder{searcher{env: env}} },
	"darwin":  func(env Env) Finder { return &darwinFinder{searcher{env: env}} },
	"windows": func(env Env) Finder { return &windowsFinder{searcher{env: env}} },
	"cygwin":  func(env Env) Finder { return &cygwinFinder{searcher{env: env}} },
}

// ForPlatform returns the finder for goos. Platforms without a dedicated
// finder use the linux one.
func ForPlatform(goos string) Finder {
	return ForPlatformEnv(goos, os.LookupEnv)
}

// ForPlatformEnv is ForPlatform with an explicit environment.
func ForPlatformEnv(goos string, env Env) Finder {
	if env == nil {
		env = os.LookupEnv
	}
	if f, ok := platforms[goos]; ok {
		return f(env)
	}
	return platforms["linux"](env)
}

// Default returns the finder for the running platform.
func Default() Finder {
	return ForPlatform(goruntime.GOOS)
}

// DefaultLibraryPath returns the first runtime library found for the running
// platform.
func DefaultLibraryPath() (string, error) {
	return Default().FindLibraryPath()
}

type searcher struct {
	env Env
}

func (s searcher) lookup(key string) string {
	v, ok := s.env(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// find checks the environment overrides first, then dirs in order.
func (s searcher) find(platform string, dirs []string) (string, error) {
	if p := s.lookup(EnvRuntime); p != "" {
		if isFile(p) {
			return p, nil
		}
		return "", errors.New(errors.PhaseLocate, errors.KindNotFound).
			Path(p).
			Detail("%s does not name a file", EnvRuntime).
			Build()
	}

	if home := s.lookup(EnvHome); home != "" {
		dirs = append([]string{home}, dirs...)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, LibraryName)
		if isFile(p) {
			return p, nil
		}
	}
	return "", errors.New(errors.PhaseLocate, errors.KindNotFound).
		Detail("no %s found for %s in %s", LibraryName, platform, strings.Join(dirs, ", ")).
		Build()
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

func bootArgs(platform string, extra ...string) []string {
	return append([]string{ProgramName, "--platform=" + platform}, extra...)
}

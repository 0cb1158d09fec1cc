package bridge

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/hostbridge/errors"
)

// DaemonMode selects where the reference daemon runs.
type DaemonMode string

const (
	// DaemonRuntimeThread runs the daemon on a dedicated OS thread attached
	// to the runtime as a daemon thread, woken whenever a release is queued.
	DaemonRuntimeThread DaemonMode = "runtime"
	// DaemonHostTask runs the daemon as a periodic host task that attaches
	// its worker thread when a cycle finds work.
	DaemonHostTask DaemonMode = "host"
)

// DaemonConfig configures the reference daemon.
type DaemonConfig struct {
	Mode DaemonMode `yaml:"mode"`
	// Interval is the host task period. Ignored in runtime mode.
	Interval time.Duration `yaml:"interval"`
	// StopTimeout bounds how long shutdown waits for the daemon to drain.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// Config holds bridge configuration.
type Config struct {
	// LibraryPath is used when Start or Attach is given an empty path.
	// Empty means ask the locator.
	LibraryPath string   `yaml:"library_path"`
	Args        []string `yaml:"args"`

	// AutoAttach lets boundary crossings attach the calling thread instead
	// of failing with ThreadNotAttached. Auto-attached threads stay attached.
	AutoAttach bool `yaml:"auto_attach"`

	// ConvertStrings is the initial string-conversion mode.
	ConvertStrings bool `yaml:"convert_strings"`

	// MemoryLimitPages caps guest memory (64KB pages). 0 means no cap.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`

	// ThreadWait bounds how long teardown waits for user threads to detach.
	ThreadWait time.Duration `yaml:"thread_wait"`

	Daemon DaemonConfig `yaml:"daemon"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ConvertStrings: true,
		Daemon: DaemonConfig{
			Mode:        DaemonRuntimeThread,
			Interval:    100 * time.Millisecond,
			StopTimeout: 5 * time.Second,
		},
	}
}

// Validate checks field values and fills zero durations with defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()
	switch c.Daemon.Mode {
	case "":
		c.Daemon.Mode = def.Daemon.Mode
	case DaemonRuntimeThread, DaemonHostTask:
	default:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown daemon mode %q", c.Daemon.Mode))
	}
	if c.Daemon.Interval < 0 || c.Daemon.StopTimeout < 0 || c.ThreadWait < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "durations must not be negative")
	}
	if c.Daemon.Interval == 0 {
		c.Daemon.Interval = def.Daemon.Interval
	}
	if c.Daemon.StopTimeout == 0 {
		c.Daemon.StopTimeout = def.Daemon.StopTimeout
	}
	return nil
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config "+path)
	}
	return ParseConfig(data)
}

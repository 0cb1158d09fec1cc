package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
)

// Stage says which lifecycle entries run an initializer.
type Stage uint8

const (
	// StageAlways runs on both start and attach.
	StageAlways Stage = iota
	// StageStartOnly runs on start only.
	StageStartOnly
)

// Initializer registers the boundary-crossing adapters of one subsystem. It
// runs once per start/attach cycle, after the runtime is live, and must not
// block.
type Initializer interface {
	Name() string
	Initialize() error
}

type funcInitializer struct {
	fn   func() error
	name string
}

func (f funcInitializer) Name() string      { return f.name }
func (f funcInitializer) Initialize() error { return f.fn() }

// InitializerFunc wraps fn as a named Initializer.
func InitializerFunc(name string, fn func() error) Initializer {
	return funcInitializer{name: name, fn: fn}
}

// Subsystem names, in the order their adapters depend on each other.
const (
	SubsystemClass      = "class"
	SubsystemArray      = "array"
	SubsystemWrapper    = "wrapper"
	SubsystemProxy      = "proxy"
	SubsystemException  = "exception"
	SubsystemCollection = "collection"
	SubsystemObject     = "object"
	SubsystemProperties = "properties"
	SubsystemNIO        = "nio"
	SubsystemReflect    = "reflect"
)

type initEntry struct {
	init  Initializer
	name  string
	cycle uint64
	stage Stage
}

// Initializers is the ordered set of subsystem initializers.
type Initializers struct {
	entries []*initEntry
	mu      sync.Mutex
}

// NewInitializers returns an empty set.
func NewInitializers() *Initializers {
	return &Initializers{}
}

// DefaultInitializers declares the standard subsystems in their fixed order
// with no-op bodies. Use Bind to supply the real ones.
func DefaultInitializers() *Initializers {
	s := NewInitializers()
	noop := func() error { return nil }
	for _, name := range []string{
		SubsystemClass, SubsystemArray, SubsystemWrapper, SubsystemProxy,
		SubsystemException, SubsystemCollection, SubsystemObject, SubsystemProperties,
	} {
		_ = s.Register(InitializerFunc(name, noop), StageAlways)
	}
	_ = s.Register(InitializerFunc(SubsystemNIO, noop), StageStartOnly)
	_ = s.Register(InitializerFunc(SubsystemReflect, noop), StageStartOnly)
	return s
}

// Register appends init to the order. Names must be unique.
func (s *Initializers) Register(init Initializer, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := init.Name()
	for _, e := range s.entries {
		if e.name == name {
			return errors.InvalidInput(errors.PhaseBootstrap, "initializer "+name+" already registered")
		}
	}
	s.entries = append(s.entries, &initEntry{init: init, name: name, stage: stage})
	return nil
}

// Bind replaces the body of a declared initializer, keeping its position
// and stage.
func (s *Initializers) Bind(name string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.name == name {
			e.init = InitializerFunc(name, fn)
			return nil
		}
	}
	return errors.New(errors.PhaseBootstrap, errors.KindNotFound).
		Detail("initializer %q not declared", name).
		Build()
}

// Names returns initializer names in run order.
func (s *Initializers) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// run invokes every initializer eligible for this entry point, in order,
// skipping any already run in this cycle. It stops at the first failure.
func (s *Initializers) run(cycle uint64, attach bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if attach && e.stage == StageStartOnly {
			continue
		}
		if e.cycle == cycle {
			continue
		}
		if err := e.init.Initialize(); err != nil {
			return errors.Initializer(e.name, err)
		}
		e.cycle = cycle
		Logger().Debug("subsystem initialized", zap.String("name", e.name), zap.Uint64("cycle", cycle))
	}
	return nil
}

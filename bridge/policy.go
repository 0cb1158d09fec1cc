package bridge

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/errors"
)

// Policy is the process-wide conversion policy. Reads are lock-free; writes
// are serialized and pushed into the loaded runtime before they return.
type Policy struct {
	sink           func(context.Context, bool) error
	mu             sync.Mutex
	convertStrings atomic.Bool
}

// NewPolicy creates a policy with the given initial string-conversion mode.
func NewPolicy(convertStrings bool) *Policy {
	p := &Policy{}
	p.convertStrings.Store(convertStrings)
	return p
}

// StringConversion reports whether string-like values cross the boundary by
// copy (true) or stay runtime objects (false).
func (p *Policy) StringConversion() bool {
	return p.convertStrings.Load()
}

// SetStringConversion updates the mode and propagates it to the runtime, if
// one is loaded. The new mode is visible to StringConversion even when
// propagation fails.
func (p *Policy) SetStringConversion(ctx context.Context, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.convertStrings.Store(enabled)
	Logger().Debug("string conversion changed", zap.Bool("enabled", enabled))
	if p.sink == nil {
		return nil
	}
	return p.sink(ctx, enabled)
}

// SetStringConversionValue accepts loosely typed input (config files, CLI
// flags) and validates it as a boolean before applying it.
func (p *Policy) SetStringConversionValue(ctx context.Context, v any) error {
	enabled, err := ParseBool(v)
	if err != nil {
		return err
	}
	return p.SetStringConversion(ctx, enabled)
}

// bind connects the policy to a runtime and pushes the current mode.
func (p *Policy) bind(ctx context.Context, sink func(context.Context, bool) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sink = sink
	return sink(ctx, p.convertStrings.Load())
}

func (p *Policy) unbind() {
	p.mu.Lock()
	p.sink = nil
	p.mu.Unlock()
}

// ParseBool validates a boolean policy value.
func ParseBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
	}
	return false, errors.New(errors.PhasePolicy, errors.KindInvalidInput).
		Value(v).
		Detail("expected a boolean, got %T %v", v, v).
		Build()
}

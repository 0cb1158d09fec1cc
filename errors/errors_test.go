package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseBootstrap,
				Kind:   KindBootstrap,
				Path:   "/opt/runtime.wasm",
				Detail: "compile guest",
			},
			contains: []string{"[bootstrap]", "bootstrap", "/opt/runtime.wasm", "compile guest"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseCall,
				Kind:  KindThreadNotAttached,
			},
			contains: []string{"[call]", "thread_not_attached"},
		},
		{
			name:     "warning",
			err:      NotRunningWarning("stopped"),
			contains: []string{"[lifecycle]", "not_running", "(warning)", "stopped"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRelease,
				Kind:   KindRelease,
				Detail: "release handle 3",
				Cause:  errors.New("trap"),
			},
			contains: []string{"[release]", "release handle 3", "caused by", "trap"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Bootstrap("x.wasm", "load", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{Phase: PhaseAttach, Kind: KindAttach}

	if !err.Is(&Error{Phase: PhaseAttach, Kind: KindAttach}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseLifecycle, Kind: KindAttach}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseAttach, Kind: KindBootstrap}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrAttach) {
		t.Error("phase-less sentinel should match on kind")
	}

	wrapped := fmt.Errorf("start: %w", AlreadyRunning("running"))
	if !errors.Is(wrapped, ErrAlreadyRunning) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestIsWarning(t *testing.T) {
	if !IsWarning(NotRunningWarning("not started")) {
		t.Error("NotRunningWarning should be a warning")
	}
	if !IsWarning(fmt.Errorf("shutdown: %w", DaemonTimeout(2))) {
		t.Error("wrapped DaemonTimeout should be a warning")
	}
	if IsWarning(NotRunning(PhaseCall, "stopped")) {
		t.Error("NotRunning should not be a warning")
	}
	if IsWarning(errors.New("plain")) {
		t.Error("plain error should not be a warning")
	}
	if IsWarning(nil) {
		t.Error("nil should not be a warning")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLocate, KindNotFound).
		Path("/usr/lib/hostbridge").
		Value(42).
		Cause(cause).
		Warning().
		Detail("expected %s, got %s", "file", "dir").
		Build()

	if err.Phase != PhaseLocate {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLocate)
	}
	if err.Kind != KindNotFound {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
	}
	if err.Path != "/usr/lib/hostbridge" {
		t.Errorf("Path = %q", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if err.Cause != cause {
		t.Error("Cause not set")
	}
	if err.Severity != SeverityWarning {
		t.Error("Severity not set")
	}
	if err.Detail != "expected file, got dir" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
	}{
		{NotFound("runtime library", "/x"), PhaseLocate, KindNotFound},
		{Bootstrap("/x", "load", nil), PhaseBootstrap, KindBootstrap},
		{AlreadyRunning("running"), PhaseLifecycle, KindAlreadyRunning},
		{TransitionInProgress("starting"), PhaseLifecycle, KindTransition},
		{Attach(PhaseLifecycle, "no runtime", nil), PhaseLifecycle, KindAttach},
		{NotRunning(PhaseCall, "stopped"), PhaseCall, KindNotRunning},
		{ThreadNotAttached(7), PhaseCall, KindThreadNotAttached},
		{Release(3, errors.New("x")), PhaseRelease, KindRelease},
		{DaemonTimeout(1), PhaseLifecycle, KindDaemonTimeout},
		{InvalidInput(PhasePolicy, "bad"), PhasePolicy, KindInvalidInput},
		{Initializer("class", errors.New("x")), PhaseBootstrap, KindInitializer},
	}
	for _, tt := range tests {
		if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
			t.Errorf("%v: got %s/%s, want %s/%s", tt.err, tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
		}
	}
}

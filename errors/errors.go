package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseLocate    Phase = "locate"    // runtime library lookup
	PhaseBootstrap Phase = "bootstrap" // native load and initialization
	PhaseLifecycle Phase = "lifecycle" // start/attach/shutdown transitions
	PhaseAttach    Phase = "attach"    // thread attachment
	PhaseRelease   Phase = "release"   // native reference release
	PhasePolicy    Phase = "policy"    // conversion policy
	PhaseCall      Phase = "call"      // boundary crossings
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindBootstrap         Kind = "bootstrap"
	KindAlreadyRunning    Kind = "already_running"
	KindAttach            Kind = "attach"
	KindNotRunning        Kind = "not_running"
	KindThreadNotAttached Kind = "thread_not_attached"
	KindRelease           Kind = "release"
	KindDaemonTimeout     Kind = "daemon_timeout"
	KindInvalidInput      Kind = "invalid_input"
	KindInitializer       Kind = "initializer"
	KindTransition        Kind = "transition_in_progress"
)

// Severity separates reported conditions from failures.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Detail   string
	Path     string
	Severity Severity
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))
	if e.Severity == SeverityWarning {
		b.WriteString(" (warning)")
	}

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target with an empty
// Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// IsWarning reports whether err (or anything it wraps) is a warning-severity
// bridge error.
func IsWarning(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Severity == SeverityWarning
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the library or thread path the error refers to
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Warning marks the error as a warning
func (b *Builder) Warning() *Builder {
	b.err.Severity = SeverityWarning
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Match targets for errors.Is. They match any phase.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrBootstrap         = &Error{Kind: KindBootstrap}
	ErrAlreadyRunning    = &Error{Kind: KindAlreadyRunning}
	ErrAttach            = &Error{Kind: KindAttach}
	ErrNotRunning        = &Error{Kind: KindNotRunning}
	ErrThreadNotAttached = &Error{Kind: KindThreadNotAttached}
	ErrRelease           = &Error{Kind: KindRelease}
	ErrDaemonTimeout     = &Error{Kind: KindDaemonTimeout}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrTransition        = &Error{Kind: KindTransition}
)

// NotFound creates a locator not-found error
func NotFound(what, where string) *Error {
	return &Error{
		Phase:  PhaseLocate,
		Kind:   KindNotFound,
		Path:   where,
		Detail: fmt.Sprintf("%s not found", what),
	}
}

// Bootstrap creates a native load/initialize failure
func Bootstrap(libraryPath, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindBootstrap,
		Path:   libraryPath,
		Detail: detail,
		Cause:  cause,
	}
}

// AlreadyRunning creates a lifecycle misuse error for a second start/attach
func AlreadyRunning(state string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindAlreadyRunning,
		Detail: fmt.Sprintf("runtime is %s", state),
		Value:  state,
	}
}

// TransitionInProgress rejects a lifecycle call that races another
// start, attach or shutdown.
func TransitionInProgress(state string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindTransition,
		Detail: fmt.Sprintf("runtime is %s", state),
		Value:  state,
	}
}

// Attach creates an attach failure
func Attach(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAttach,
		Detail: detail,
		Cause:  cause,
	}
}

// NotRunning creates the "not running" condition for use before start or
// after shutdown.
func NotRunning(phase Phase, state string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotRunning,
		Detail: fmt.Sprintf("runtime is %s", state),
		Value:  state,
	}
}

// NotRunningWarning is reported by shutdown when nothing is running.
func NotRunningWarning(state string) *Error {
	return &Error{
		Phase:    PhaseLifecycle,
		Kind:     KindNotRunning,
		Detail:   fmt.Sprintf("shutdown requested while %s", state),
		Value:    state,
		Severity: SeverityWarning,
	}
}

// ThreadNotAttached creates the error for a crossing from an unattached thread
func ThreadNotAttached(threadID uint64) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindThreadNotAttached,
		Detail: fmt.Sprintf("thread %d is not attached", threadID),
		Value:  threadID,
	}
}

// Release wraps a native release failure
func Release(handle uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindRelease,
		Detail: fmt.Sprintf("release handle %d", handle),
		Value:  handle,
		Cause:  cause,
	}
}

// DaemonTimeout is the warning returned when shutdown had to abandon the
// reference daemon's drain.
func DaemonTimeout(pending int) *Error {
	return &Error{
		Phase:    PhaseLifecycle,
		Kind:     KindDaemonTimeout,
		Detail:   fmt.Sprintf("reference daemon did not stop in time, %d releases abandoned", pending),
		Value:    pending,
		Severity: SeverityWarning,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Initializer wraps a failing subsystem initializer
func Initializer(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseBootstrap,
		Kind:   KindInitializer,
		Detail: fmt.Sprintf("initialize %s", name),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

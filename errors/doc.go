// Package errors provides structured error types for the host bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Lifecycle misuse that is reported rather than fatal, such as shutting down a
// runtime that never started, carries SeverityWarning.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBootstrap, errors.KindBootstrap).
//		Path("/opt/runtime/runtime.wasm").
//		Detail("compile guest").
//		Cause(cause).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ThreadNotAttached(tid)
//	err := errors.NotRunningWarning("stopped")
//
// All errors implement the standard error interface and support errors.Is/As.
// The exported Err* values match on Kind regardless of Phase:
//
//	if errors.Is(err, hberrors.ErrThreadNotAttached) { ... }
package errors

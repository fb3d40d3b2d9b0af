// Package errors provides structured error types for the protect bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The five kinds a protect call can fail with are KindUnavailableRuntime,
// KindAttachFailed, KindNoTarget, KindInvalidInput and KindCallbackFault.
// The bridge converts all of them into a false decision; they surface only in
// logs, metrics and the errors returned by setup operations.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindTypeMismatch).
//		Target("bypass").
//		Detail("want %s, got %s", want, got).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.AttachFailed(3, cause)
//	err := errors.CallbackFault("bypass", trap)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

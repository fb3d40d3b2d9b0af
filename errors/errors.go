package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseLoad      Phase = "load"      // guest loading
	PhaseAttach    Phase = "attach"    // joining the managed runtime
	PhaseResolve   Phase = "resolve"   // callback target lookup
	PhaseInvoke    Phase = "invoke"    // calling into the managed runtime
	PhaseReference Phase = "reference" // strong reference bookkeeping
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindUnavailableRuntime Kind = "unavailable_runtime"
	KindAttachFailed       Kind = "attach_failed"
	KindNoTarget           Kind = "no_target"
	KindInvalidInput       Kind = "invalid_input"
	KindCallbackFault      Kind = "callback_fault"
	KindNotFound           Kind = "not_found"
	KindTypeMismatch       Kind = "type_mismatch"
	KindClosed             Kind = "closed"
	KindBusy               Kind = "busy"
	KindPendingFault       Kind = "pending_fault"
	KindInvalidData        Kind = "invalid_data"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Target string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Target != "" {
		b.WriteString(" at ")
		b.WriteString(e.Target)
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

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
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

// Target names the object or method the error is about
func (b *Builder) Target(name string) *Builder {
	b.err.Target = name
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

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err describes contention that may clear on retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindBusy
}

// Convenience constructors for common error patterns

// UnavailableRuntime reports that no managed runtime is loaded.
func UnavailableRuntime(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnavailableRuntime,
		Detail: "managed runtime not loaded",
	}
}

// AttachFailed reports exhausted attachment attempts.
func AttachFailed(attempts int, cause error) *Error {
	return &Error{
		Phase:  PhaseAttach,
		Kind:   KindAttachFailed,
		Detail: fmt.Sprintf("gave up after %d attempt(s)", attempts),
		Value:  attempts,
		Cause:  cause,
	}
}

// NoTarget reports an empty or invalid callback target.
func NoTarget(detail string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindNoTarget,
		Detail: detail,
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

// CallbackFault wraps a fault raised by managed code during a call.
func CallbackFault(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindCallbackFault,
		Target: method,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Target: name,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// TypeMismatch reports a signature that does not match the expected one.
func TypeMismatch(phase Phase, name, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Target: name,
		Detail: fmt.Sprintf("want %s, got %s", want, got),
	}
}

// Closed reports use of a closed resource.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// Busy reports transient contention.
func Busy(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBusy,
		Detail: detail,
	}
}

// PendingFault reports a call refused because an earlier fault was not cleared.
func PendingFault(cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindPendingFault,
		Detail: "fault pending on environment",
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

// Load creates a guest loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Config creates a configuration error
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

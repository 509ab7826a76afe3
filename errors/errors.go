package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// As and Is re-export the standard helpers so callers need only this
// package.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// Phase indicates which bridge operation the error occurred in.
type Phase string

const (
	PhaseCreate   Phase = "create"   // compiling a new handle
	PhaseRun      Phase = "run"      // run-to-completion
	PhaseStart    Phase = "start"    // first iterative step
	PhaseResume   Phase = "resume"   // resuming a paused call
	PhaseFutures  Phase = "futures"  // async future resolution
	PhaseSnapshot Phase = "snapshot" // serializing a Ready handle
	PhaseRestore  Phase = "restore"  // reconstructing from bytes
	PhaseAccess   Phase = "access"   // state accessors
	PhaseLimits   Phase = "limits"   // resource limit setters
)

// Kind categorizes the error per the bridge's error taxonomy.
type Kind string

const (
	// KindInput covers null/missing/malformed arguments and invalid text
	// encoding. The handle state is unchanged; retry with corrected input.
	KindInput Kind = "input"
	// KindDecode covers malformed structured-value input (bad JSON, bad
	// call-id keys). State unchanged.
	KindDecode Kind = "decode"
	// KindCompile is reported at creation; no handle is produced.
	KindCompile Kind = "compile"
	// KindState means an operation was invoked from the wrong lifecycle
	// state. The handle's actual state is untouched.
	KindState Kind = "state"
	// KindExecution means the script raised or a resource limit was
	// breached; the handle is Complete with an error report.
	KindExecution Kind = "execution"
	// KindSerialize covers snapshot/restore payload failures.
	KindSerialize Kind = "serialize"
	// KindInternal is a caught fault (panic, invariant violation) that was
	// contained at the boundary.
	KindInternal Kind = "internal"
)

// Error is the structured error type used throughout the library.
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
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

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value.
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns.

// MissingInput reports a required input that was absent.
func MissingInput(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInput,
		Path:   []string{name},
		Detail: fmt.Sprintf("%s is required", name),
	}
}

// InvalidUTF8 reports an input that was not valid UTF-8 text.
func InvalidUTF8(phase Phase, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInput,
		Path:   []string{name},
		Detail: fmt.Sprintf("%s is not valid UTF-8", name),
	}
}

// Decode reports malformed structured-value input.
func Decode(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDecode,
		Detail: detail,
		Cause:  cause,
	}
}

// Compile reports a compilation failure; no handle is produced.
func Compile(cause error) *Error {
	return &Error{
		Phase: PhaseCreate,
		Kind:  KindCompile,
		Cause: cause,
	}
}

// WrongState reports an operation invoked from the wrong lifecycle state.
func WrongState(phase Phase, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindState,
		Detail: fmt.Sprintf("handle not in %s state (currently %s)", want, got),
	}
}

// Execution reports a raised script exception or limit breach.
func Execution(phase Phase, summary string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExecution,
		Detail: summary,
	}
}

// Serialize reports a snapshot or restore payload failure.
func Serialize(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSerialize,
		Detail: detail,
		Cause:  cause,
	}
}

// Internal reports a contained fault (panic or invariant violation).
func Internal(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
	}
}

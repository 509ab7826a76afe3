package engine

// ExcKind names a script exception class.
type ExcKind string

const (
	ExcSyntaxError       ExcKind = "SyntaxError"
	ExcNameError         ExcKind = "NameError"
	ExcTypeError         ExcKind = "TypeError"
	ExcValueError        ExcKind = "ValueError"
	ExcZeroDivisionError ExcKind = "ZeroDivisionError"
	ExcIndexError        ExcKind = "IndexError"
	ExcKeyError          ExcKind = "KeyError"
	ExcAttributeError    ExcKind = "AttributeError"
	ExcRuntimeError      ExcKind = "RuntimeError"
	ExcMemoryError       ExcKind = "MemoryError"
	ExcTimeoutError      ExcKind = "TimeoutError"
	ExcRecursionError    ExcKind = "RecursionError"

	// excCancelled unwinds a script whose Execution was closed while
	// suspended. It is not catchable by name and never surfaces to hosts.
	excCancelled ExcKind = "ExecutionCancelled"
)

// catchableKinds are the exception classes scripts may name in except
// clauses and construct by calling the class.
var catchableKinds = []ExcKind{
	ExcSyntaxError,
	ExcNameError,
	ExcTypeError,
	ExcValueError,
	ExcZeroDivisionError,
	ExcIndexError,
	ExcKeyError,
	ExcAttributeError,
	ExcRuntimeError,
	ExcMemoryError,
	ExcTimeoutError,
	ExcRecursionError,
}

// Frame is one traceback entry. Frames are ordered outermost first, so
// the last frame is the raise site.
type Frame struct {
	Filename    string
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
	FrameName   string // empty for module level
	PreviewLine string // source line text, if available
	HideCaret   bool
	HideFrame   bool
}

// Exception is a raised script error with its traceback.
type Exception struct {
	Kind   ExcKind
	Msg    string
	Frames []Frame
}

// NewException builds an exception without traceback frames. The
// interpreter attaches frames at the point the exception enters script
// evaluation.
func NewException(kind ExcKind, msg string) *Exception {
	return &Exception{Kind: kind, Msg: msg}
}

// Summary renders the conventional one-line form, "Kind: message".
func (e *Exception) Summary() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

func (e *Exception) Error() string { return e.Summary() }

// Site returns the innermost frame, or nil if no frames were attached.
func (e *Exception) Site() *Frame {
	if len(e.Frames) == 0 {
		return nil
	}
	return &e.Frames[len(e.Frames)-1]
}

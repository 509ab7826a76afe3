// Package bridge is the boundary safety layer: a flat, FFI-shaped
// surface over the handle state machine. Inputs arrive as byte buffers
// that may be absent or malformed; every entry point validates them
// before doing any work, and wraps the call into the handle in a fault
// barrier so that an internal panic becomes an Error outcome instead of
// terminating the host.
//
// Outcome tags are fixed numbers: Complete=0, Pending=1, Error=2,
// AwaitingFutures=3 for transitions, Ok=0/Error=1 for Run. Accessors
// return sentinel values when queried outside their state: nil buffers,
// AbsentCallID, and -1 for absent booleans.
package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/brooklang/brook/errors"
	"github.com/brooklang/brook/runtime"
)

// Transition outcome tags.
const (
	TagComplete        int32 = 0
	TagPending         int32 = 1
	TagError           int32 = 2
	TagAwaitingFutures int32 = 3
)

// Run outcome tags.
const (
	RunOK    int32 = 0
	RunError int32 = 1
)

// AbsentCallID is returned by PendingCallID outside the Paused state.
const AbsentCallID uint32 = math.MaxUint32

// requireText validates a required input buffer: present and UTF-8.
func requireText(phase errors.Phase, name string, data []byte) (string, error) {
	if data == nil {
		return "", errors.MissingInput(phase, name)
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(phase, name)
	}
	return string(data), nil
}

// optionalText validates an input buffer that may be absent.
func optionalText(phase errors.Phase, name string, data []byte) (string, error) {
	if data == nil {
		return "", nil
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(phase, name)
	}
	return string(data), nil
}

// safely runs fn under the fault barrier. Panics become an Error tag
// with a best-effort message; they never unwind into the host.
func safely(phase errors.Phase, fn func() (int32, error)) (tag int32, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("fault during bridge operation",
				zap.String("phase", string(phase)),
				zap.Any("panic", r))
			tag = TagError
			errMsg = fmt.Sprintf("internal fault during %s: %v", phase, r)
		}
	}()
	t, err := fn()
	if err != nil {
		return t, err.Error()
	}
	return t, ""
}

// Create compiles source into a handle. source is required.
// externalsJSON is an optional JSON array of host function names;
// scriptName is an optional traceback label. On failure the handle is
// nil and errMsg is non-empty.
func Create(source, externalsJSON, scriptName []byte) (h *runtime.Handle, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("fault during create", zap.Any("panic", r))
			h = nil
			errMsg = fmt.Sprintf("internal fault during create: %v", r)
		}
	}()

	src, err := requireText(errors.PhaseCreate, "source", source)
	if err != nil {
		return nil, err.Error()
	}
	extText, err := optionalText(errors.PhaseCreate, "externals", externalsJSON)
	if err != nil {
		return nil, err.Error()
	}
	var externals []string
	if extText != "" {
		if err := json.Unmarshal([]byte(extText), &externals); err != nil {
			return nil, errors.Decode(errors.PhaseCreate, "invalid externals JSON", err).Error()
		}
	}
	name, err := optionalText(errors.PhaseCreate, "script_name", scriptName)
	if err != nil {
		return nil, err.Error()
	}

	handle, err := runtime.New(src, externals, name)
	if err != nil {
		return nil, err.Error()
	}
	return handle, ""
}

// Destroy releases a handle. A nil handle is a safe no-op.
func Destroy(h *runtime.Handle) {
	h.Close()
}

// Run executes a Ready handle to completion. envelope carries the
// terminal result document on both Ok and Error outcomes; errMsg is
// non-empty on every Error outcome, carrying the exception summary for
// script failures.
func Run(h *runtime.Handle) (tag int32, envelope []byte, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("fault during run", zap.Any("panic", r))
			tag = RunError
			envelope = nil
			errMsg = fmt.Sprintf("internal fault during run: %v", r)
		}
	}()

	if h == nil {
		return RunError, nil, errors.MissingInput(errors.PhaseRun, "handle").Error()
	}
	rt, env, err := h.Run()
	if err != nil {
		return int32(rt), env, err.Error()
	}
	return int32(rt), env, ""
}

// Start runs a Ready handle to its first suspension or completion.
func Start(h *runtime.Handle) (int32, string) {
	return safely(errors.PhaseStart, func() (int32, error) {
		if h == nil {
			return TagError, errors.MissingInput(errors.PhaseStart, "handle")
		}
		p, err := h.Start()
		return int32(p), err
	})
}

// Resume supplies the pending call's return value as JSON.
func Resume(h *runtime.Handle, valueJSON []byte) (int32, string) {
	return safely(errors.PhaseResume, func() (int32, error) {
		if h == nil {
			return TagError, errors.MissingInput(errors.PhaseResume, "handle")
		}
		text, err := requireText(errors.PhaseResume, "value", valueJSON)
		if err != nil {
			return TagError, err
		}
		p, err := h.Resume(text)
		return int32(p), err
	})
}

// ResumeWithError raises message inside the paused call site.
func ResumeWithError(h *runtime.Handle, message []byte) (int32, string) {
	return safely(errors.PhaseResume, func() (int32, error) {
		if h == nil {
			return TagError, errors.MissingInput(errors.PhaseResume, "handle")
		}
		text, err := requireText(errors.PhaseResume, "message", message)
		if err != nil {
			return TagError, err
		}
		p, err := h.ResumeWithError(text)
		return int32(p), err
	})
}

// ResumeAsFuture defers the pending call into a future.
func ResumeAsFuture(h *runtime.Handle) (int32, string) {
	return safely(errors.PhaseResume, func() (int32, error) {
		if h == nil {
			return TagError, errors.MissingInput(errors.PhaseResume, "handle")
		}
		p, err := h.ResumeAsFuture()
		return int32(p), err
	})
}

// ResumeFutures resolves outstanding async calls from two JSON objects
// keyed by decimal call id: values and error messages.
func ResumeFutures(h *runtime.Handle, resultsJSON, errorsJSON []byte) (int32, string) {
	return safely(errors.PhaseFutures, func() (int32, error) {
		if h == nil {
			return TagError, errors.MissingInput(errors.PhaseFutures, "handle")
		}
		results, err := requireText(errors.PhaseFutures, "results", resultsJSON)
		if err != nil {
			return TagError, err
		}
		errsText, err := requireText(errors.PhaseFutures, "errors", errorsJSON)
		if err != nil {
			return TagError, err
		}
		p, err := h.ResumeFutures(results, errsText)
		return int32(p), err
	})
}

// Snapshot serializes a Ready handle.
func Snapshot(h *runtime.Handle) (data []byte, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("fault during snapshot", zap.Any("panic", r))
			data = nil
			errMsg = fmt.Sprintf("internal fault during snapshot: %v", r)
		}
	}()

	if h == nil {
		return nil, errors.MissingInput(errors.PhaseSnapshot, "handle").Error()
	}
	out, err := h.Snapshot()
	if err != nil {
		return nil, err.Error()
	}
	return out, ""
}

// Restore rebuilds a Ready handle from Snapshot bytes.
func Restore(data []byte) (h *runtime.Handle, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("fault during restore", zap.Any("panic", r))
			h = nil
			errMsg = fmt.Sprintf("internal fault during restore: %v", r)
		}
	}()

	if data == nil {
		return nil, errors.MissingInput(errors.PhaseRestore, "data").Error()
	}
	handle, err := runtime.Restore(data)
	if err != nil {
		return nil, err.Error()
	}
	return handle, ""
}

// SetMemoryLimit sets the memory ceiling in bytes before execution.
func SetMemoryLimit(h *runtime.Handle, maxBytes uint64) {
	if h == nil {
		return
	}
	h.SetMemoryLimit(maxBytes)
}

// SetTimeLimit sets the wall-clock ceiling in milliseconds.
func SetTimeLimit(h *runtime.Handle, ms uint64) {
	if h == nil {
		return
	}
	h.SetTimeLimit(time.Duration(ms) * time.Millisecond)
}

// SetStackLimit sets the recursion-depth ceiling.
func SetStackLimit(h *runtime.Handle, depth uint32) {
	if h == nil {
		return
	}
	h.SetStackLimit(int(depth))
}

// PendingFunctionName returns the paused call's function name, or nil.
func PendingFunctionName(h *runtime.Handle) []byte {
	if h == nil {
		return nil
	}
	name, ok := h.PendingFunctionName()
	if !ok {
		return nil
	}
	return []byte(name)
}

// PendingArgs returns the paused call's positional arguments as a JSON
// array, or nil.
func PendingArgs(h *runtime.Handle) []byte {
	if h == nil {
		return nil
	}
	args, ok := h.PendingArgs()
	if !ok {
		return nil
	}
	return []byte(args)
}

// PendingKwargs returns the paused call's keyword arguments as a JSON
// object ("{}" when empty), or nil.
func PendingKwargs(h *runtime.Handle) []byte {
	if h == nil {
		return nil
	}
	kwargs, ok := h.PendingKwargs()
	if !ok {
		return nil
	}
	return []byte(kwargs)
}

// PendingCallID returns the paused call's id, or AbsentCallID.
func PendingCallID(h *runtime.Handle) uint32 {
	if h == nil {
		return AbsentCallID
	}
	id, ok := h.PendingCallID()
	if !ok {
		return AbsentCallID
	}
	return id
}

// PendingIsMethodCall reports 1 for a method-style call, 0 for a bare
// call, and -1 outside the Paused state.
func PendingIsMethodCall(h *runtime.Handle) int32 {
	if h == nil {
		return -1
	}
	isMethod, ok := h.PendingIsMethodCall()
	if !ok {
		return -1
	}
	if isMethod {
		return 1
	}
	return 0
}

// PendingFutureCallIDs returns the unresolved call ids as a JSON array,
// or nil outside AwaitingFutures.
func PendingFutureCallIDs(h *runtime.Handle) []byte {
	if h == nil {
		return nil
	}
	ids, ok := h.PendingFutureCallIDs()
	if !ok {
		return nil
	}
	out, err := json.Marshal(ids)
	if err != nil {
		return nil
	}
	return out
}

// CompletedResult returns the terminal envelope, or nil outside
// Complete.
func CompletedResult(h *runtime.Handle) []byte {
	if h == nil {
		return nil
	}
	env, ok := h.CompletedResult()
	if !ok {
		return nil
	}
	return env
}

// CompletedIsError reports 1 for a terminal error, 0 for a terminal
// value, and -1 outside Complete.
func CompletedIsError(h *runtime.Handle) int32 {
	if h == nil {
		return -1
	}
	isErr, ok := h.CompletedIsError()
	if !ok {
		return -1
	}
	if isErr {
		return 1
	}
	return 0
}

// Package runtime implements the Handle lifecycle state machine: one
// Handle per script invocation, holding exactly one of the Ready,
// Paused, AwaitingFutures, Complete, or Consumed states and exposing
// the transition operations that drive a script across suspension
// points to a terminal result.
//
// A Handle is not safe for concurrent use; exactly one operation may be
// in flight at a time. A runtime guard turns re-entrant misuse into an
// internal error instead of corrupted state.
package runtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	brook "github.com/brooklang/brook"
	"github.com/brooklang/brook/codec"
	"github.com/brooklang/brook/engine"
	"github.com/brooklang/brook/errors"
)

// DefaultScriptName is the traceback label used when a Handle is
// created without one.
const DefaultScriptName = "<input>"

// Progress is the outcome tag of every transition operation.
type Progress int

const (
	ProgressComplete        Progress = 0
	ProgressPending         Progress = 1
	ProgressError           Progress = 2
	ProgressAwaitingFutures Progress = 3
)

func (p Progress) String() string {
	switch p {
	case ProgressComplete:
		return "Complete"
	case ProgressPending:
		return "Pending"
	case ProgressError:
		return "Error"
	case ProgressAwaitingFutures:
		return "AwaitingFutures"
	default:
		return "Unknown"
	}
}

// RunTag is the outcome of the run-to-completion operation.
type RunTag int

const (
	RunOK    RunTag = 0
	RunError RunTag = 1
)

// state variants; exactly one is active per Handle.
type handleState interface {
	stateName() string
}

type readyState struct {
	prog *engine.Program
}

type pausedState struct {
	ex         *engine.Execution
	call       *engine.CallInfo
	argsJSON   string
	kwargsJSON string
}

type futuresState struct {
	ex  *engine.Execution
	ids []uint32
}

type completeState struct {
	value   engine.Value
	report  *codec.ExceptionReport
	isError bool
}

// consumedState is the transient placeholder installed while a
// transition is computing its successor. Observing it means the
// re-entrancy guard was bypassed.
type consumedState struct{}

type closedState struct{}

func (readyState) stateName() string    { return "Ready" }
func (pausedState) stateName() string   { return "Paused" }
func (futuresState) stateName() string  { return "Futures" }
func (completeState) stateName() string { return "Complete" }
func (consumedState) stateName() string { return "Consumed" }
func (closedState) stateName() string   { return "Closed" }

// Handle owns one script execution from creation through its terminal
// state. Destroy it with Close.
type Handle struct {
	inFlight atomic.Bool

	state      handleState
	scriptName string
	limits     brook.Limits
	started    bool
	usage      brook.Usage
	printOut   string
}

// New compiles source into a Ready Handle. externals declares the host
// functions the script may call (dotted names declare method-call
// namespaces). scriptName labels tracebacks; empty means
// DefaultScriptName. Compile failures return an error and no Handle.
func New(source string, externals []string, scriptName string) (*Handle, error) {
	if scriptName == "" {
		scriptName = DefaultScriptName
	}
	prog, exc := engine.Compile(source, scriptName, externals)
	if exc != nil {
		return nil, errors.Compile(exc)
	}
	Logger().Debug("handle created",
		zap.String("script", scriptName),
		zap.Int("externals", len(externals)))
	return &Handle{state: readyState{prog: prog}, scriptName: scriptName}, nil
}

// Restore reconstructs a Ready Handle from Snapshot bytes.
func Restore(data []byte) (*Handle, error) {
	prog, err := engine.Restore(data)
	if err != nil {
		return nil, errors.Decode(errors.PhaseRestore, "restore failed", err)
	}
	return &Handle{state: readyState{prog: prog}, scriptName: prog.Name()}, nil
}

// begin acquires the single-operation guard and rejects operations on a
// Handle caught mid-transition.
func (h *Handle) begin(phase errors.Phase) error {
	if !h.inFlight.CompareAndSwap(false, true) {
		return errors.Internal(phase, "operation already in flight on this handle")
	}
	if _, ok := h.state.(consumedState); ok {
		h.inFlight.Store(false)
		return errors.Internal(phase, "handle state was consumed mid-transition")
	}
	return nil
}

func (h *Handle) end() { h.inFlight.Store(false) }

func (h *Handle) wrongState(phase errors.Phase, want string) error {
	return errors.WrongState(phase, want, h.state.stateName())
}

// absorb folds one engine step's print output and usage into the
// Handle's cumulative records.
func (h *Handle) absorb(step engine.Step) {
	h.printOut += step.Print
	h.usage = h.usage.Max(step.Usage)
}

// apply installs the successor state for an engine step and returns the
// operation's progress tag. An Error tag always carries a non-empty
// message alongside the terminal report in the envelope.
func (h *Handle) apply(phase errors.Phase, ex *engine.Execution, step engine.Step) (Progress, error) {
	h.absorb(step)
	switch step.Kind {
	case engine.StepComplete:
		ex.Close()
		h.state = completeState{value: step.Value}
		return ProgressComplete, nil

	case engine.StepFailed:
		ex.Close()
		h.state = completeState{report: codec.ReportException(step.Exc), isError: true}
		return ProgressError, errors.Execution(phase, step.Exc.Summary())

	case engine.StepCall:
		argsJSON, kwargsJSON, err := encodeCallMeta(step.Call)
		if err != nil {
			ex.Close()
			msg := fmt.Sprintf("internal error: encode pending call: %v", err)
			h.state = completeState{report: syntheticReport(h.scriptName, msg), isError: true}
			return ProgressError, errors.Internal(phase, msg)
		}
		h.state = pausedState{ex: ex, call: step.Call, argsJSON: argsJSON, kwargsJSON: kwargsJSON}
		return ProgressPending, nil

	case engine.StepFutures:
		h.state = futuresState{ex: ex, ids: step.FutureIDs}
		return ProgressAwaitingFutures, nil

	default:
		// A suspension kind this bridge does not understand: terminal,
		// with a synthetic report, keeping the state machine total.
		ex.Close()
		msg := fmt.Sprintf("unsupported suspension kind %q", step.Kind)
		h.state = completeState{report: syntheticReport(h.scriptName, msg), isError: true}
		return ProgressError, errors.Internal(phase, msg)
	}
}

func syntheticReport(scriptName, msg string) *codec.ExceptionReport {
	return &codec.ExceptionReport{
		Message:  msg,
		ExcType:  "RuntimeError",
		Filename: scriptName,
	}
}

// encodeCallMeta freezes the pending call's arguments in wire form at
// pause time, so later script progress cannot change what accessors
// report.
func encodeCallMeta(call *engine.CallInfo) (argsJSON, kwargsJSON string, err error) {
	args := make([]any, len(call.Args))
	for i, a := range call.Args {
		args[i] = codec.Encode(a)
	}
	ab, err := json.Marshal(args)
	if err != nil {
		return "", "", err
	}
	kwargs := make(map[string]any, len(call.Kwargs))
	for _, kw := range call.Kwargs {
		kwargs[kw.Name] = codec.Encode(kw.Value)
	}
	kb, err := json.Marshal(kwargs)
	if err != nil {
		return "", "", err
	}
	return string(ab), string(kb), nil
}

// Run executes a Ready handle to completion with no pausing: external
// calls fail inside the script as catchable runtime errors. It returns
// the terminal envelope regardless of outcome; on a script failure the
// error carries the exception summary alongside the envelope.
func (h *Handle) Run() (RunTag, []byte, error) {
	if err := h.begin(errors.PhaseRun); err != nil {
		return RunError, nil, err
	}
	defer h.end()

	rs, ok := h.state.(readyState)
	if !ok {
		return RunError, nil, h.wrongState(errors.PhaseRun, "Ready")
	}
	h.state = consumedState{}
	h.started = true
	out := rs.prog.Run(h.limits, nil)
	h.printOut += out.Print
	h.usage = h.usage.Max(out.Usage)

	cs := completeState{value: out.Value}
	tag := RunOK
	if out.Exc != nil {
		cs = completeState{report: codec.ReportException(out.Exc), isError: true}
		tag = RunError
	}
	h.state = cs
	env, err := h.envelope(cs)
	if err != nil {
		return RunError, nil, errors.Serialize(errors.PhaseRun, "encode result envelope", err)
	}
	if out.Exc != nil {
		return tag, env, errors.Execution(errors.PhaseRun, out.Exc.Summary())
	}
	return tag, env, nil
}

// Start begins iterative execution of a Ready handle, running to the
// first suspension point or completion.
func (h *Handle) Start() (Progress, error) {
	if err := h.begin(errors.PhaseStart); err != nil {
		return ProgressError, err
	}
	defer h.end()

	rs, ok := h.state.(readyState)
	if !ok {
		return ProgressError, h.wrongState(errors.PhaseStart, "Ready")
	}
	h.state = consumedState{}
	h.started = true
	ex, step := rs.prog.Start(h.limits)
	return h.apply(errors.PhaseStart, ex, step)
}

// Resume answers a Paused handle's pending call with a JSON-encoded
// value and continues execution. Undecodable input is reported without
// touching the pause.
func (h *Handle) Resume(valueJSON string) (Progress, error) {
	if err := h.begin(errors.PhaseResume); err != nil {
		return ProgressError, err
	}
	defer h.end()

	ps, ok := h.state.(pausedState)
	if !ok {
		return ProgressError, h.wrongState(errors.PhaseResume, "Paused")
	}
	v, err := codec.DecodeJSON([]byte(valueJSON))
	if err != nil {
		return ProgressError, errors.Decode(errors.PhaseResume, "invalid value JSON", err)
	}
	h.state = consumedState{}
	return h.apply(errors.PhaseResume, ps.ex, ps.ex.Resume(engine.ExternalResult{Value: v}))
}

// ResumeWithError raises message as a runtime error at the pending call
// site; the script may catch it.
func (h *Handle) ResumeWithError(message string) (Progress, error) {
	if err := h.begin(errors.PhaseResume); err != nil {
		return ProgressError, err
	}
	defer h.end()

	ps, ok := h.state.(pausedState)
	if !ok {
		return ProgressError, h.wrongState(errors.PhaseResume, "Paused")
	}
	h.state = consumedState{}
	exc := engine.NewException(engine.ExcRuntimeError, message)
	return h.apply(errors.PhaseResume, ps.ex, ps.ex.Resume(engine.ExternalResult{Err: exc}))
}

// ResumeAsFuture converts the pending synchronous call into an
// asynchronous one and keeps running until every live thread of script
// execution is blocked on unresolved futures (or pauses on another
// call, or completes).
func (h *Handle) ResumeAsFuture() (Progress, error) {
	if err := h.begin(errors.PhaseResume); err != nil {
		return ProgressError, err
	}
	defer h.end()

	ps, ok := h.state.(pausedState)
	if !ok {
		return ProgressError, h.wrongState(errors.PhaseResume, "Paused")
	}
	h.state = consumedState{}
	return h.apply(errors.PhaseResume, ps.ex, ps.ex.ResumeAsFuture())
}

// ResumeFutures resolves outstanding asynchronous calls. resultsJSON
// maps call ids (decimal strings) to JSON values; errorsJSON maps call
// ids to error messages; an id must not appear in both. Every key is
// validated before any state changes. Partial resolution is permitted:
// if unresolved futures still block the script, the handle re-yields
// AwaitingFutures with the remaining ids.
func (h *Handle) ResumeFutures(resultsJSON, errorsJSON string) (Progress, error) {
	if err := h.begin(errors.PhaseFutures); err != nil {
		return ProgressError, err
	}
	defer h.end()

	fs, ok := h.state.(futuresState)
	if !ok {
		return ProgressError, h.wrongState(errors.PhaseFutures, "Futures")
	}
	results, err := parseFutureResults(resultsJSON, errorsJSON, fs.ids)
	if err != nil {
		return ProgressError, err
	}
	h.state = consumedState{}
	return h.apply(errors.PhaseFutures, fs.ex, fs.ex.ResolveFutures(results))
}

func parseFutureResults(resultsJSON, errorsJSON string, outstanding []uint32) (map[uint32]engine.ExternalResult, error) {
	var rawResults map[string]json.RawMessage
	if err := json.Unmarshal([]byte(resultsJSON), &rawResults); err != nil {
		return nil, errors.Decode(errors.PhaseFutures, "invalid results JSON", err)
	}
	var rawErrors map[string]string
	if err := json.Unmarshal([]byte(errorsJSON), &rawErrors); err != nil {
		return nil, errors.Decode(errors.PhaseFutures, "invalid errors JSON", err)
	}

	pending := make(map[uint32]bool, len(outstanding))
	for _, id := range outstanding {
		pending[id] = true
	}
	parseID := func(key string) (uint32, error) {
		n, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return 0, errors.Decode(errors.PhaseFutures, fmt.Sprintf("invalid call_id %q", key), err)
		}
		id := uint32(n)
		if !pending[id] {
			return 0, errors.New(errors.PhaseFutures, errors.KindInput).
				Detail("call_id %d is not outstanding", id).Build()
		}
		return id, nil
	}

	out := make(map[uint32]engine.ExternalResult, len(rawResults)+len(rawErrors))
	for key, raw := range rawResults {
		id, err := parseID(key)
		if err != nil {
			return nil, err
		}
		v, err := codec.DecodeJSON(raw)
		if err != nil {
			return nil, errors.Decode(errors.PhaseFutures, fmt.Sprintf("invalid result for call_id %d", id), err)
		}
		out[id] = engine.ExternalResult{Value: v}
	}
	for key, msg := range rawErrors {
		id, err := parseID(key)
		if err != nil {
			return nil, err
		}
		if _, dup := out[id]; dup {
			return nil, errors.New(errors.PhaseFutures, errors.KindInput).
				Detail("call_id %d appears in both results and errors", id).Build()
		}
		out[id] = engine.ExternalResult{Err: engine.NewException(engine.ExcRuntimeError, msg)}
	}
	return out, nil
}

// Snapshot serializes a Ready handle's compiled program. Any other
// state fails rather than producing partial bytes.
func (h *Handle) Snapshot() ([]byte, error) {
	if err := h.begin(errors.PhaseSnapshot); err != nil {
		return nil, err
	}
	defer h.end()

	rs, ok := h.state.(readyState)
	if !ok {
		return nil, h.wrongState(errors.PhaseSnapshot, "Ready")
	}
	data, err := rs.prog.Snapshot()
	if err != nil {
		return nil, errors.Serialize(errors.PhaseSnapshot, "snapshot failed", err)
	}
	return data, nil
}

// Close destroys the handle, releasing any suspended continuation. It
// is safe to call on any state and more than once.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	switch st := h.state.(type) {
	case pausedState:
		st.ex.Close()
	case futuresState:
		st.ex.Close()
	}
	h.state = closedState{}
}

// SetMemoryLimit sets the memory ceiling in bytes. Ignored once
// execution has begun.
func (h *Handle) SetMemoryLimit(maxBytes uint64) {
	if h.started {
		return
	}
	h.limits.MaxMemoryBytes = maxBytes
}

// SetTimeLimit sets the wall-clock ceiling. Ignored once execution has
// begun.
func (h *Handle) SetTimeLimit(d time.Duration) {
	if h.started {
		return
	}
	h.limits.MaxDuration = d
}

// SetStackLimit sets the recursion-depth ceiling. Ignored once
// execution has begun.
func (h *Handle) SetStackLimit(depth int) {
	if h.started {
		return
	}
	h.limits.MaxStackDepth = depth
}

// Limits returns the configured resource ceilings.
func (h *Handle) Limits() brook.Limits { return h.limits }

// Usage returns the cumulative resource usage recorded so far.
func (h *Handle) Usage() brook.Usage { return h.usage }

// PrintOutput returns the accumulated side-channel print output.
func (h *Handle) PrintOutput() string { return h.printOut }

// StateName reports the current lifecycle state, for diagnostics.
func (h *Handle) StateName() string { return h.state.stateName() }

// Pending-call accessors: each reports ok=false outside Paused.

func (h *Handle) PendingFunctionName() (string, bool) {
	ps, ok := h.state.(pausedState)
	if !ok {
		return "", false
	}
	return ps.call.Name, true
}

// PendingArgs returns the positional arguments as a JSON array.
func (h *Handle) PendingArgs() (string, bool) {
	ps, ok := h.state.(pausedState)
	if !ok {
		return "", false
	}
	return ps.argsJSON, true
}

// PendingKwargs returns the keyword arguments as a JSON object, "{}"
// when there are none.
func (h *Handle) PendingKwargs() (string, bool) {
	ps, ok := h.state.(pausedState)
	if !ok {
		return "", false
	}
	return ps.kwargsJSON, true
}

func (h *Handle) PendingCallID() (uint32, bool) {
	ps, ok := h.state.(pausedState)
	if !ok {
		return 0, false
	}
	return ps.call.ID, true
}

func (h *Handle) PendingIsMethodCall() (bool, bool) {
	ps, ok := h.state.(pausedState)
	if !ok {
		return false, false
	}
	return ps.call.Method, true
}

// PendingFutureCallIDs reports the unresolved call ids while in
// AwaitingFutures.
func (h *Handle) PendingFutureCallIDs() ([]uint32, bool) {
	fs, ok := h.state.(futuresState)
	if !ok {
		return nil, false
	}
	return append([]uint32(nil), fs.ids...), true
}

// CompletedResult returns the terminal envelope while in Complete.
func (h *Handle) CompletedResult() ([]byte, bool) {
	cs, ok := h.state.(completeState)
	if !ok {
		return nil, false
	}
	env, err := h.envelope(cs)
	if err != nil {
		Logger().Error("encode result envelope", zap.Error(err))
		return nil, false
	}
	return env, true
}

func (h *Handle) CompletedIsError() (bool, bool) {
	cs, ok := h.state.(completeState)
	if !ok {
		return false, false
	}
	return cs.isError, true
}

// resultEnvelope is the terminal wire form: value (null on failure),
// cumulative usage, the error report only on failure, and print output
// only when non-empty.
type resultEnvelope struct {
	Value       any                    `json:"value"`
	Usage       brook.Usage            `json:"usage"`
	Error       *codec.ExceptionReport `json:"error,omitempty"`
	PrintOutput string                 `json:"print_output,omitempty"`
}

func (h *Handle) envelope(cs completeState) ([]byte, error) {
	env := resultEnvelope{Usage: h.usage, PrintOutput: h.printOut}
	if cs.isError {
		env.Error = cs.report
	} else {
		env.Value = codec.Encode(cs.value)
	}
	return json.Marshal(env)
}

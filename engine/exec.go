package engine

import (
	"go.uber.org/zap"

	brook "github.com/brooklang/brook"
)

// StepKind classifies the outcome of one execution step.
type StepKind int

const (
	// StepComplete: the script finished; Value holds its result.
	StepComplete StepKind = iota
	// StepFailed: the script raised an uncaught exception, in Exc.
	StepFailed
	// StepCall: the script is suspended on an external call, in Call.
	StepCall
	// StepFutures: the script awaits future results; FutureIDs lists
	// the unresolved call ids.
	StepFutures
)

func (k StepKind) String() string {
	switch k {
	case StepComplete:
		return "complete"
	case StepFailed:
		return "failed"
	case StepCall:
		return "call"
	case StepFutures:
		return "futures"
	default:
		return "unknown"
	}
}

// Step is what one execution step produced. Print holds output emitted
// during the step; Usage is cumulative for the whole execution.
type Step struct {
	Kind      StepKind
	Value     Value
	Exc       *Exception
	Call      *CallInfo
	FutureIDs []uint32
	Print     string
	Usage     brook.Usage
}

// Execution is a script in progress. It is not safe for concurrent use;
// the driver issues one Resume at a time, matching the suspended step.
type Execution struct {
	t      *task
	done   bool
	closed bool
}

// Start begins executing the program and blocks until its first step:
// completion, failure, or a suspension.
func (p *Program) Start(limits brook.Limits) (*Execution, Step) {
	t := newTask(p, limits)
	ex := &Execution{t: t}
	Logger().Debug("starting execution",
		zap.String("script", p.name),
		zap.Int("externals", len(p.externals)))
	go t.run()
	return ex, ex.wait()
}

func (ex *Execution) wait() Step {
	ev := <-ex.t.events
	step := Step{Print: ev.print, Usage: ev.usage}
	switch ev.kind {
	case evDone:
		ex.done = true
		if ev.exc != nil {
			step.Kind = StepFailed
			step.Exc = ev.exc
		} else {
			step.Kind = StepComplete
			step.Value = ev.value
		}
	case evCall:
		step.Kind = StepCall
		step.Call = ev.call
	case evFutures:
		step.Kind = StepFutures
		step.FutureIDs = ev.futureIDs
	}
	return step
}

func (ex *Execution) misuse() Step {
	return Step{
		Kind: StepFailed,
		Exc:  NewException(ExcRuntimeError, "execution is not suspended"),
	}
}

// Resume answers a StepCall suspension with a value or an error and
// blocks until the next step.
func (ex *Execution) Resume(res ExternalResult) Step {
	if ex.done || ex.closed {
		return ex.misuse()
	}
	m := resumeMsg{kind: resumeValue, value: res.Value}
	if res.Err != nil {
		m = resumeMsg{kind: resumeErr, exc: res.Err}
	}
	ex.t.resume <- m
	return ex.wait()
}

// ResumeAsFuture answers a StepCall suspension by deferring it: the
// call's value becomes a future the script must await.
func (ex *Execution) ResumeAsFuture() Step {
	if ex.done || ex.closed {
		return ex.misuse()
	}
	ex.t.resume <- resumeMsg{kind: resumeFuture}
	return ex.wait()
}

// ResolveFutures answers a StepFutures suspension with results for some
// or all outstanding calls. If unresolved futures remain blocking the
// script, the next step is another StepFutures with the remaining ids.
func (ex *Execution) ResolveFutures(results map[uint32]ExternalResult) Step {
	if ex.done || ex.closed {
		return ex.misuse()
	}
	ex.t.resume <- resumeMsg{kind: resumeResults, results: results}
	return ex.wait()
}

// Done reports whether the script has completed or failed.
func (ex *Execution) Done() bool { return ex.done }

// Close releases a suspended execution's goroutine. It is safe to call
// multiple times and after completion.
func (ex *Execution) Close() {
	if ex.closed {
		return
	}
	ex.closed = true
	close(ex.t.quit)
}

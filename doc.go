// Package brook provides an embeddable, sandboxed scripting engine with
// pausable execution.
//
// A Brook script runs inside the host process but never calls out of its
// sandbox on its own: every interaction with the host happens through
// declared external functions. When a script calls one, execution suspends
// and the host receives the call's name, arguments, and a correlation id.
// The host supplies a return value (or an error, or a promise of a later
// async result) and execution continues from the exact suspension point.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	brook/           Root package with shared Limits and Usage types
//	├── runtime/     The Handle execution lifecycle state machine
//	├── engine/      The script language: lexer, parser, interpreter,
//	│                resource tracking, continuation capture
//	├── codec/       Value and exception marshaling to transport JSON
//	├── errors/      Structured error types for debugging
//	├── bridge/      Boundary layer: tagged entry points, input
//	│                validation, panic containment
//	└── cmd/run/     CLI runner and interactive host-call driver
//
// # Quick Start
//
// Compile and run a script to completion:
//
//	h, err := runtime.New("2 + 2", nil, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	tag, envelope, _ := h.Run()
//	fmt.Println(tag, string(envelope)) // {"value":4,...}
//
// Drive a script that calls back into the host:
//
//	h, _ := runtime.New("a = fetch(1)\na + 1", []string{"fetch"}, "")
//	progress, _ := h.Start()            // ProgressPending
//	name, _ := h.PendingFunctionName()  // "fetch"
//	progress, _ = h.Resume("41")        // ProgressComplete
//
// # Lifecycle
//
// A handle is always in exactly one state: Ready, Paused, AwaitingFutures,
// Complete, or (transiently, mid-transition) Consumed. Operations invoked
// from the wrong state fail with a state error and leave the handle
// untouched. Accessors tied to a state report absence outside it instead
// of fabricating values.
//
// # Thread Safety
//
// A Handle is NOT safe for concurrent use. Exactly one operation may be in
// flight at a time; a runtime guard rejects re-entrant calls rather than
// corrupting state. The engine drives the script in strict lockstep with
// the calling goroutine, so "async" host calls never imply host-visible
// parallelism.
//
// # Resource Limits
//
// Memory, wall-clock, and stack-depth ceilings are enforced by the engine
// during execution. They must be set before the first step; a breach
// terminates the execution with a structured error report and the handle
// is not resumable afterwards.
package brook

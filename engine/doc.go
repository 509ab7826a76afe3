// Package engine implements the Brook script engine: a small,
// Python-flavored interpreter with cooperative suspension.
//
// A Program is compiled once from source with Compile and can be executed
// any number of times. Execution either runs to completion (Program.Run,
// which drives external calls through a CallResolver) or proceeds in
// steps (Program.Start returning an Execution), where each Step reports
// that the script completed, failed, requested an external call, or is
// awaiting future results.
//
// The interpreter runs on its own goroutine in strict lockstep with the
// driver: between two Steps the script makes no progress, so values
// surfaced in a Step are stable until the next Resume. Close releases the
// goroutine of a suspended Execution.
//
// Resource limits (memory, wall-clock time, stack depth) are enforced
// during evaluation and surface as ordinary script exceptions
// (MemoryError, TimeoutError, RecursionError) so scripts may catch them.
package engine

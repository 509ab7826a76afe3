// Package errors provides structured error types for the brook library.
//
// Errors are categorized by Phase (which bridge operation failed) and Kind
// (error category). The Error type includes rich context: an optional field
// path, the offending value, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResume, errors.KindDecode).
//		Path("results", "17").
//		Detail("call id is not outstanding").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.WrongState(errors.PhaseStart, "Ready", "Complete")
//	err := errors.MissingInput(errors.PhaseCreate, "code")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

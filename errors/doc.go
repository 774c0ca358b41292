// Package errors provides structured error types for the reader bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the method name, argument path, offending value and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindInvalidArgs).
//		Method("getItemData").
//		Path("progressId").
//		Detail("expected integer, got %T", v).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ReaderNotFound(handle)
//	err := errors.InvalidMethod("doStuff")
//
// All errors implement the standard error interface and support errors.Is/As.
// Two errors match under errors.Is when Phase and Kind agree, so the package
// sentinels work as comparison targets:
//
//	if errors.Is(err, bridgeerrors.ErrReaderNotFound) { ... }
//
// Code maps any error to the string code the client sees in a failed response.
package errors

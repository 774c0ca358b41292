package wire

import (
	stderrors "errors"

	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
)

// MethodCall is one named request from a client isolate.
type MethodCall struct {
	Args    readerbridge.Value
	Method  string
	Isolate readerbridge.IsolateID
}

// CallError is the failure half of a response as the client sees it.
type CallError struct {
	Detail  readerbridge.Value
	Code    string
	Message string
}

func (e *CallError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches a structured error or another CallError with the same code,
// so callers on the client side can test against the same sentinels as
// the host.
func (e *CallError) Is(target error) bool {
	switch t := target.(type) {
	case *errors.Error:
		return e.Code == string(t.Kind)
	case *CallError:
		return e.Code == t.Code
	}
	return false
}

// NewCallError converts err into its wire form. Structured errors keep
// their kind as code; opaque reader errors are reported verbatim under
// errors.CodeReaderError.
func NewCallError(err error) *CallError {
	if err == nil {
		return nil
	}
	var ce *CallError
	if stderrors.As(err, &ce) {
		return ce
	}
	out := &CallError{Code: errors.Code(err), Message: err.Error()}
	var e *errors.Error
	if stderrors.As(err, &e) {
		out.Message = e.Message()
		out.Detail = e.Value
	}
	return out
}

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode   Phase = "decode"   // wire arguments to typed requests
	PhaseDispatch Phase = "dispatch" // method routing
	PhaseRegistry Phase = "registry" // reader handle lookup
	PhaseReader   Phase = "reader"   // platform reader operations
	PhaseNotify   Phase = "notify"   // outbound client notifications
	PhaseLoop     Phase = "loop"     // run loop scheduling
	PhaseConfig   Phase = "config"   // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindReaderNotFound Kind = "reader_not_found"
	KindInvalidMethod  Kind = "invalid_method"
	KindInvalidArgs    Kind = "invalid_args"
	KindClosed         Kind = "closed"
	KindCanceled       Kind = "canceled"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindUnsupported    Kind = "unsupported"
	KindIO             Kind = "io"
)

// CodeReaderError is the wire code for errors raised by platform readers
// that do not carry a Kind of their own.
const CodeReaderError = "reader_error"

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Method string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Method != "" {
		b.WriteString(" in ")
		b.WriteString(e.Method)
	}

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

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Message is the human-readable part of the error, without phase and kind.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the argument field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Method sets the method the error belongs to
func (b *Builder) Method(name string) *Builder {
	b.err.Method = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is comparisons. Only Phase and Kind are compared.
var (
	ErrReaderNotFound = &Error{Phase: PhaseRegistry, Kind: KindReaderNotFound}
	ErrInvalidMethod  = &Error{Phase: PhaseDispatch, Kind: KindInvalidMethod}
	ErrClosed         = &Error{Phase: PhaseLoop, Kind: KindClosed}
)

// ReaderNotFound creates an error for a handle absent from the registry
func ReaderNotFound(handle int64) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindReaderNotFound,
		Detail: fmt.Sprintf("reader %d not found", handle),
		Value:  handle,
	}
}

// InvalidMethod creates an unknown method error carrying the offending name
func InvalidMethod(name string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindInvalidMethod,
		Method: name,
		Detail: fmt.Sprintf("Unknown Method: %s", name),
		Value:  name,
	}
}

// InvalidArgs creates an argument decoding error
func InvalidArgs(method string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidArgs,
		Method: method,
		Detail: "malformed arguments",
		Cause:  cause,
	}
}

// FieldMissing creates an error for a required argument field that is
// absent or null
func FieldMissing(method, field string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidArgs,
		Method: method,
		Path:   []string{field},
		Detail: fmt.Sprintf("required field %q not set", field),
	}
}

// Closed creates an error for operations on a stopped component
func Closed(component string) *Error {
	return &Error{
		Phase:  PhaseLoop,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Canceled creates a cancellation error for reader operations
func Canceled(what string) *Error {
	return &Error{
		Phase:  PhaseReader,
		Kind:   KindCanceled,
		Detail: fmt.Sprintf("%s canceled", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Code returns the wire error code for err: the Kind of the outermost
// structured error, or CodeReaderError for opaque reader errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return string(e.Kind)
	}
	return CodeReaderError
}

package eval

import (
	"fmt"

	"github.com/josephlewis42/tacsh/core/value"
)

// Error is the evaluator's error type; Class places it in the taxonomy
// and Command names the offending word for process and job failures.
type Error struct {
	Class   value.ErrorClass
	Message string
	Code    int
	Command string
}

func (e *Error) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Message)
	}
	return e.Message
}

// Value converts the error into its structured stack representation.
func (e *Error) Value() *value.Error {
	return &value.Error{
		Class:   e.Class,
		Message: e.Message,
		Code:    e.Code,
		Command: e.Command,
	}
}

func underflowErr(op string, need, have int) error {
	return &Error{
		Class:   value.ErrClassUnderflow,
		Message: fmt.Sprintf("%s needs %d values, the stack has %d", op, need, have),
		Command: op,
	}
}

func typeErr(op, want string, got value.Value) error {
	return &Error{
		Class:   value.ErrClassType,
		Message: fmt.Sprintf("expected %s, got %s", want, got.Kind()),
		Command: op,
	}
}

func execErrf(command string, format string, args ...interface{}) error {
	return &Error{
		Class:   value.ErrClassExec,
		Message: fmt.Sprintf(format, args...),
		Command: command,
	}
}

func ioErr(command string, err error) error {
	return &Error{
		Class:   value.ErrClassIO,
		Message: err.Error(),
		Command: command,
	}
}

func breakErr() error {
	return &Error{
		Class:   value.ErrClassBreak,
		Message: "break outside of a loop",
	}
}

// asErrorValue converts any evaluation error into a structured value for
// the try builtin.
func asErrorValue(err error) *value.Error {
	if e, ok := err.(*Error); ok {
		return e.Value()
	}
	return &value.Error{Class: value.ErrClassExec, Message: err.Error()}
}

// flow is the explicit control-flow result threaded through the dispatch
// loop; loop constructs consume flowBreak and word calls consume
// flowReturn.
type flow int

const (
	flowNext flow = iota
	flowBreak
	flowReturn
)

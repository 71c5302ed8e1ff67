package svcbridge

import (
	"errors"
	"fmt"

	"github.com/cryguy/svcbridge/internal/core"
)

var (
	// ErrBinding matches every *BindingError.
	ErrBinding = errors.New("service binding failed")

	// ErrMethodNotBound matches every *MethodNotBoundError.
	ErrMethodNotBound = errors.New("method not bound")

	// ErrExecutorClosed is returned by calls on a closed executor, including
	// one whose environment was destroyed after a timeout.
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrExecutionTimeout is the cause of an InvocationError raised when a
	// call exceeded its deadline.
	ErrExecutionTimeout = core.ErrTimeout
)

// ScriptError is an exception thrown by script code, or the reason of a
// rejected promise.
type ScriptError = core.ScriptError

// SourceLoadError reports an implementation that could not be read,
// prepared or evaluated.
type SourceLoadError struct {
	Path string
	Err  error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("loading service implementation %s: %v", e.Path, e.Err)
}

func (e *SourceLoadError) Unwrap() error { return e.Err }

// BindingError reports a declared method with no executable symbol in the
// implementation, or a declared method whose key is already taken by an
// earlier one.
type BindingError struct {
	Service  string
	Method   string // declared method name
	Symbol   string // script-side name derived from Method
	Conflict string // earlier declared method with the same key, if any
}

func (e *BindingError) Error() string {
	if e.Conflict != "" {
		return fmt.Sprintf("service %s: method %s: duplicates method %s", e.Service, e.Method, e.Conflict)
	}
	return fmt.Sprintf("service %s: method %s: function not found: %s", e.Service, e.Method, e.Symbol)
}

func (e *BindingError) Is(target error) bool { return target == ErrBinding }

// MethodNotBoundError reports a call to a method the executor never bound.
type MethodNotBoundError struct {
	Service string
	Method  string
}

func (e *MethodNotBoundError) Error() string {
	return fmt.Sprintf("service %s: method not bound: %s", e.Service, e.Method)
}

func (e *MethodNotBoundError) Is(target error) bool { return target == ErrMethodNotBound }

// InvocationError wraps any failure raised while a bound function ran.
type InvocationError struct {
	Service string
	Method  string
	Cause   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("service %s: invoking %s: %v", e.Service, e.Method, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

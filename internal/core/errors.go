package core

import (
	"errors"
	"fmt"
)

// ErrTimeout is reported when a call exceeds its deadline and the engine
// was interrupted.
var ErrTimeout = errors.New("execution timed out")

// ScriptError is a failure raised by script code: a thrown exception or a
// rejected promise.
type ScriptError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

func (e *ScriptError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

package svcbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Executor runs the methods of one service against its own embedded
// environment. Calls are serialized; an Executor may be shared between
// goroutines.
//
// A call that exceeds its deadline interrupts the environment and destroys
// it. The call fails with an *InvocationError wrapping ErrExecutionTimeout
// and every later call returns ErrExecutorClosed. A context canceled
// without a deadline leaves the environment alone: synchronous code runs
// to completion and an awaited promise is abandoned with the context's
// error.
type Executor struct {
	id      string
	service string
	path    string
	table   *BindingTable
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	env    *environment
	closed bool
}

// ID returns the executor's unique instance id.
func (x *Executor) ID() string { return x.id }

// Service returns the name of the service this executor serves.
func (x *Executor) Service() string { return x.service }

// Path returns the implementation path the executor was loaded from.
func (x *Executor) Path() string { return x.path }

// Bindings returns the executor's binding table.
func (x *Executor) Bindings() *BindingTable { return x.table }

// Closed reports whether the executor has been closed or destroyed.
func (x *Executor) Closed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.closed
}

// Close releases the environment. It is safe to call more than once.
func (x *Executor) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.destroyLocked()
	return nil
}

func (x *Executor) destroyLocked() {
	if x.closed {
		return
	}
	x.closed = true
	if x.env != nil {
		x.env.close()
		x.env = nil
	}
}

// ExecuteValues calls method with already-typed positional arguments. A
// null or undefined result is returned as Null; anything else is returned
// as a StringValue holding the stringified result.
func (x *Executor) ExecuteValues(ctx context.Context, method string, args []Value) (Value, error) {
	b, ok := x.table.lookup(method)
	if !ok {
		return nil, &MethodNotBoundError{Service: x.service, Method: method}
	}
	jsArgs, err := positionalArgs(b, args)
	if err != nil {
		return nil, &InvocationError{Service: x.service, Method: b.Method, Cause: err}
	}
	res, isNull, err := x.invoke(ctx, b, jsArgs)
	if err != nil {
		return nil, err
	}
	if isNull {
		return Null, nil
	}
	return StringValue(res), nil
}

// ExecuteMap calls method with arguments keyed by parameter name. Values
// are ordered by the binding's parameter list; a parameter missing from
// args is passed as null. A nil result means the function returned null
// or undefined.
func (x *Executor) ExecuteMap(ctx context.Context, method string, args map[string]any) (*string, error) {
	b, ok := x.table.lookup(method)
	if !ok {
		return nil, &MethodNotBoundError{Service: x.service, Method: method}
	}
	jsArgs, err := namedArgs(b, args)
	if err != nil {
		return nil, &InvocationError{Service: x.service, Method: b.Method, Cause: err}
	}
	return x.invokeNullable(ctx, b, jsArgs)
}

// ExecuteJSON calls method with arguments decoded from a JSON payload. An
// object is matched by parameter name like ExecuteMap and an array is taken
// positionally.
func (x *Executor) ExecuteJSON(ctx context.Context, method string, payload string) (*string, error) {
	b, ok := x.table.lookup(method)
	if !ok {
		return nil, &MethodNotBoundError{Service: x.service, Method: method}
	}
	jsArgs, err := serializedArgs(b, payload)
	if err != nil {
		return nil, &InvocationError{Service: x.service, Method: b.Method, Cause: fmt.Errorf("decoding arguments: %w", err)}
	}
	return x.invokeNullable(ctx, b, jsArgs)
}

func (x *Executor) invokeNullable(ctx context.Context, b *Binding, args []any) (*string, error) {
	res, isNull, err := x.invoke(ctx, b, args)
	if err != nil || isNull {
		return nil, err
	}
	return &res, nil
}

func (x *Executor) invoke(ctx context.Context, b *Binding, args []any) (result string, isNull bool, err error) {
	if args == nil {
		args = []any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", false, &InvocationError{Service: x.service, Method: b.Method, Cause: fmt.Errorf("encoding arguments: %w", err)}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return "", false, ErrExecutorClosed
	}
	if err := ctx.Err(); err != nil {
		return "", false, &InvocationError{Service: x.service, Method: b.Method, Cause: err}
	}

	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	env := x.env
	w := watch(ctx, env.rt.Interrupt)
	start := time.Now()
	result, isNull, panicked, err := callEnv(ctx, env, b, argsJSON)
	interrupted := w.finish()

	switch {
	case panicked:
		x.destroyLocked()
		x.log.Error().Err(err).Str("method", b.Method).Msg("engine panic, environment destroyed")
	case interrupted:
		x.destroyLocked()
		x.log.Warn().
			Str("method", b.Method).
			Dur("elapsed", time.Since(start)).
			Msg("execution timed out, environment destroyed")
		if err == nil {
			// The deadline passed as the call returned; the result is complete.
			return result, isNull, nil
		}
		return "", false, &InvocationError{
			Service: x.service,
			Method:  b.Method,
			Cause:   fmt.Errorf("%w: %w", ErrExecutionTimeout, context.Cause(ctx)),
		}
	}
	if err != nil {
		return "", false, &InvocationError{Service: x.service, Method: b.Method, Cause: err}
	}
	return result, isNull, nil
}

// callEnv runs one call, turning an engine panic into an error.
func callEnv(ctx context.Context, env *environment, b *Binding, argsJSON []byte) (result string, isNull, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	result, isNull, err = env.call(ctx, b.handle, argsJSON)
	return result, isNull, false, err
}

const (
	callRunning int32 = iota
	callFinished
	callInterrupted
)

// watchdog interrupts a running call once its context passes its deadline.
// Cancellation without a deadline never interrupts; the call observes it
// while awaiting a promise.
type watchdog struct {
	state atomic.Int32
	fired chan struct{}
	stop  func() bool
}

func watch(ctx context.Context, interrupt func()) *watchdog {
	w := &watchdog{fired: make(chan struct{})}
	w.stop = context.AfterFunc(ctx, func() {
		defer close(w.fired)
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}
		if w.state.CompareAndSwap(callRunning, callInterrupted) {
			interrupt()
		}
	})
	return w
}

// finish marks the call finished and waits for an interrupt already in
// progress to return. It reports whether the call was interrupted.
func (w *watchdog) finish() bool {
	if w.state.CompareAndSwap(callRunning, callFinished) {
		if !w.stop() {
			<-w.fired
		}
		return false
	}
	<-w.fired
	return true
}

func newExecutorID() string {
	return uuid.NewString()
}

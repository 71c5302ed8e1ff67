package svcbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/eventloop"
	"github.com/cryguy/svcbridge/internal/source"
	"github.com/cryguy/svcbridge/internal/webapi"
)

// setupFunc installs globals into a fresh environment before the
// implementation is evaluated.
type setupFunc func(rt core.JSRuntime, el *eventloop.EventLoop) error

func setupFuncs(sink core.LogSink) []setupFunc {
	return []setupFunc{
		webapi.SetupGlobals,
		webapi.SetupEncoding,
		webapi.SetupTimers,
		webapi.ConsoleSetup(sink),
		webapi.SetupServiceBridge,
	}
}

// environment is the embedded interpreter owned by one Executor, together
// with its event loop. It is not safe for concurrent use.
type environment struct {
	rt   core.Environment
	loop *eventloop.EventLoop
	kind source.Kind
}

// newEnvironment creates an interpreter, installs the globals and evaluates
// the prepared implementation. Top-level code runs under the configured
// execution timeout.
func newEnvironment(cfg EngineConfig, prepared *source.Prepared, sink core.LogSink) (*environment, error) {
	rt, err := newRuntime(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s runtime: %w", EngineName, err)
	}
	env := &environment{rt: rt, loop: eventloop.New(), kind: prepared.Kind}

	for _, setup := range setupFuncs(sink) {
		if err := setup(rt, env.loop); err != nil {
			rt.Close()
			return nil, fmt.Errorf("setting up environment: %w", err)
		}
	}
	if err := rt.Eval("globalThis.__svc.snapshot()"); err != nil {
		rt.Close()
		return nil, fmt.Errorf("recording globals: %w", err)
	}

	var timedOut atomic.Bool
	if d := executionTimeout(cfg); d > 0 {
		watchdog := time.AfterFunc(d, func() {
			timedOut.Store(true)
			rt.Interrupt()
		})
		defer watchdog.Stop()
	}
	if err := rt.Eval(prepared.Code); err != nil {
		rt.Close()
		if timedOut.Load() {
			return nil, fmt.Errorf("evaluating implementation: %w", core.ErrTimeout)
		}
		return nil, fmt.Errorf("evaluating implementation: %w", err)
	}
	rt.RunMicrotasks()
	env.loop.Reset()
	return env, nil
}

func (e *environment) symbols() ([]symbol, error) {
	out, err := e.rt.EvalString("globalThis.__svc.symbols()")
	if err != nil {
		return nil, err
	}
	var syms []symbol
	if err := json.Unmarshal([]byte(out), &syms); err != nil {
		return nil, fmt.Errorf("decoding symbols: %w", err)
	}
	return syms, nil
}

func (e *environment) bind(name string) (int, error) {
	return e.rt.EvalInt(fmt.Sprintf("globalThis.__svc.bind(%s)", jsString(name)))
}

func (e *environment) seal() error {
	return e.rt.Eval("globalThis.__svc.seal()")
}

// call invokes the function captured at handle with JSON-encoded arguments
// and waits for a returned promise to settle. It reports the stringified
// result, or isNull when the function produced null or undefined.
func (e *environment) call(ctx context.Context, handle int, argsJSON []byte) (result string, isNull bool, err error) {
	defer webapi.CleanupCall(e.rt, e.loop)

	if err := e.rt.SetGlobal("__tmp_svc_args", string(argsJSON)); err != nil {
		return "", false, fmt.Errorf("setting arguments: %w", err)
	}
	desc, err := e.rt.EvalString(fmt.Sprintf("globalThis.__svc.call(%d, globalThis.__tmp_svc_args)", handle))
	if err != nil {
		return "", false, err
	}
	if desc != "" {
		return "", false, webapi.DecodeScriptError(desc)
	}

	e.rt.RunMicrotasks()
	if err := webapi.AwaitValue(ctx, e.rt, "__call_result", e.loop); err != nil {
		return "", false, err
	}

	envelope, err := e.rt.EvalString("globalThis.__svc.result()")
	if err != nil {
		return "", false, fmt.Errorf("reading result: %w", err)
	}
	if gjson.Get(envelope, "null").Bool() {
		return "", true, nil
	}
	return gjson.Get(envelope, "value").String(), false, nil
}

func (e *environment) close() {
	e.loop.Reset()
	e.rt.Close()
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

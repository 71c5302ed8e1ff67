package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/eventloop"
)

// errNeverSettles is returned when a promise is still pending but nothing
// left in the environment (jobs or timers) could ever settle it.
var errNeverSettles = errors.New("promise can never settle: no pending jobs or timers")

// AwaitValue resolves a potentially-promise value stored in a global variable
// by pumping the microtask queue and draining timers until the promise
// settles or ctx is done. A deadline is reported as core.ErrTimeout and a
// cancellation as ctx.Err(). The global variable is updated in place with the
// resolved value. A rejection is returned as a *core.ScriptError; the
// rejection reason is described through the service bridge prelude.
func AwaitValue(ctx context.Context, rt core.JSRuntime, globalVar string, el *eventloop.EventLoop) error {
	isPromise, err := rt.EvalBool(fmt.Sprintf("globalThis.%s instanceof Promise", globalVar))
	if err != nil || !isPromise {
		return nil
	}

	setupJS := fmt.Sprintf(`
		delete globalThis.__awaited_result;
		delete globalThis.__awaited_state;
		Promise.resolve(globalThis.%s).then(
			function(r) { globalThis.__awaited_result = r; globalThis.__awaited_state = 'fulfilled'; },
			function(e) { globalThis.__awaited_result = e; globalThis.__awaited_state = 'rejected'; }
		);
	`, globalVar)
	if err := rt.Eval(setupJS); err != nil {
		return fmt.Errorf("setting up promise await: %w", err)
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(24 * time.Hour)
	}

	for {
		rt.RunMicrotasks()

		pending := el != nil && el.HasPending()
		if pending {
			step := time.Now().Add(10 * time.Millisecond)
			if step.After(deadline) {
				step = deadline
			}
			el.Drain(rt, step)
			rt.RunMicrotasks()
		}

		state, err := rt.EvalString("String(globalThis.__awaited_state)")
		if err != nil {
			return fmt.Errorf("checking promise state: %w", err)
		}
		if state != "undefined" {
			break
		}

		if !pending && (el == nil || !el.HasPending()) {
			return errNeverSettles
		}
		if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			return core.ErrTimeout
		}
		runtime.Gosched()
	}

	state, _ := rt.EvalString("String(globalThis.__awaited_state)")
	if state == "rejected" {
		desc, err := rt.EvalString("globalThis.__svc.describe(globalThis.__awaited_result)")
		_ = rt.Eval("delete globalThis.__awaited_result; delete globalThis.__awaited_state;")
		if err != nil {
			return fmt.Errorf("describing promise rejection: %w", err)
		}
		return DecodeScriptError(desc)
	}

	return rt.Eval(fmt.Sprintf(
		"globalThis.%s = globalThis.__awaited_result; delete globalThis.__awaited_result; delete globalThis.__awaited_state;",
		globalVar))
}

// DecodeScriptError turns the JSON produced by __svc.describe into a
// *core.ScriptError.
func DecodeScriptError(desc string) error {
	var se core.ScriptError
	if err := json.Unmarshal([]byte(desc), &se); err != nil {
		return &core.ScriptError{Message: desc}
	}
	return &se
}

package webapi

import (
	"fmt"
	"time"

	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/eventloop"
)

// timersJS installs setTimeout, setInterval and the matching clear
// functions. Callbacks are kept in globalThis.__timerCallbacks under the id
// handed out by the event loop, which fires them by id.
const timersJS = `
(function() {
	globalThis.__timerCallbacks = {};

	function schedule(repeat) {
		return function(fn, delay) {
			if (typeof fn !== 'function') return 0;
			var ms = Number(delay);
			if (!isFinite(ms) || ms < 0) ms = 0;
			var id = __timerRegister(Math.floor(ms), repeat);
			globalThis.__timerCallbacks[id] = {
				fn: fn,
				args: Array.prototype.slice.call(arguments, 2),
				interval: repeat
			};
			return id;
		};
	}

	function cancel(id) {
		if (typeof id !== 'number') return;
		__timerClear(id);
		delete globalThis.__timerCallbacks[id];
	}

	globalThis.setTimeout = schedule(false);
	globalThis.setInterval = schedule(true);
	globalThis.clearTimeout = cancel;
	globalThis.clearInterval = cancel;
})();
`

// SetupTimers registers Go-backed timers. Timers only fire while a call is
// awaiting its result; see AwaitValue.
func SetupTimers(rt core.JSRuntime, el *eventloop.EventLoop) error {
	register := func(delayMs int, repeat bool) int {
		return el.RegisterTimer(time.Duration(max(delayMs, 0))*time.Millisecond, repeat)
	}
	if err := rt.RegisterFunc("__timerRegister", register); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__timerClear", el.ClearTimer); err != nil {
		return err
	}
	if err := rt.Eval(timersJS); err != nil {
		return fmt.Errorf("evaluating timers prelude: %w", err)
	}
	return nil
}

package webapi

import (
	"fmt"
	"time"

	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/eventloop"
)

// globalsJS defines pure-JS polyfills for simple global APIs.
const globalsJS = `
globalThis.queueMicrotask = function(fn) {
	Promise.resolve().then(fn);
};
globalThis.performance = {
	now: function() { return __performanceNow(); }
};
`

// SetupGlobals registers queueMicrotask and performance.now().
func SetupGlobals(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	startTime := time.Now()
	if err := rt.RegisterFunc("__performanceNow", func() float64 {
		return float64(time.Since(startTime).Nanoseconds()) / 1e6
	}); err != nil {
		return err
	}
	if err := rt.Eval(globalsJS); err != nil {
		return fmt.Errorf("evaluating globals.js: %w", err)
	}
	return nil
}

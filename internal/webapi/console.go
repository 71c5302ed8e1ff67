package webapi

import (
	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/eventloop"
)

// consoleJS builds globalThis.console on top of the Go-backed __console.
// Objects are rendered as JSON where possible so service logs stay readable.
const consoleJS = `
(function() {
	function render(arg) {
		if (typeof arg === 'string') return arg;
		if (arg instanceof Error) return String(arg.name) + ': ' + String(arg.message);
		if (typeof arg === 'object' && arg !== null) {
			try {
				var s = JSON.stringify(arg);
				if (s !== undefined) return s;
			} catch (e) {}
			return '[object Object]';
		}
		return String(arg);
	}
	function emitter(level) {
		return function() {
			var parts = [];
			for (var i = 0; i < arguments.length; i++) parts.push(render(arguments[i]));
			__console(level, parts.join(' '));
		};
	}
	var counters = {};
	var con = {
		log: emitter('log'),
		info: emitter('info'),
		warn: emitter('warn'),
		error: emitter('error'),
		debug: emitter('debug'),
		trace: emitter('debug'),
	};
	con.assert = function(cond) {
		if (cond) return;
		var rest = Array.prototype.slice.call(arguments, 1);
		con.error.apply(null, ['Assertion failed'].concat(rest));
	};
	con.count = function(label) {
		var l = label || 'default';
		counters[l] = (counters[l] || 0) + 1;
		con.log(l + ': ' + counters[l]);
	};
	con.countReset = function(label) {
		counters[label || 'default'] = 0;
	};
	con.dir = con.table = function(obj) {
		con.log(JSON.stringify(obj, null, 2));
	};
	globalThis.console = con;
})();
`

// SetupConsole replaces globalThis.console with a version that forwards
// every message to sink.
func SetupConsole(rt core.JSRuntime, sink core.LogSink) error {
	if err := rt.RegisterFunc("__console", func(level, message string) {
		sink.Emit(level, message)
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}

// ConsoleSetup adapts SetupConsole to the setup function signature used by
// the environment builder.
func ConsoleSetup(sink core.LogSink) func(core.JSRuntime, *eventloop.EventLoop) error {
	return func(rt core.JSRuntime, _ *eventloop.EventLoop) error {
		return SetupConsole(rt, sink)
	}
}

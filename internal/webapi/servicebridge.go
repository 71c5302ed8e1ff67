package webapi

import (
	"fmt"

	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/eventloop"
)

// ModuleGlobal is the global that holds the exports of an implementation
// prepared as a bundled module.
const ModuleGlobal = "__svc_module__"

// serviceBridgeJS installs globalThis.__svc, the JS half of the service
// bridge. It is non-writable and non-configurable so implementation code
// cannot replace it.
//
//	snapshot()      record the globals present before the implementation loads
//	symbols()       JSON [{name, callable, params}] of the implementation's top-level symbols
//	bind(name)      capture a function into the handle table, -1 if not callable;
//	                top-level let/const functions of a plain script are found too
//	seal()          freeze the handle table
//	call(i, json)   apply handle i to the JSON args, '' or a describe() JSON on throw
//	result()        JSON {null:true} or {value:"..."} for __call_result
//	describe(e)     JSON {name, message, stack} for a thrown value
const serviceBridgeJS = `
(function() {
	var baseline = Object.create(null);
	var handles = [];
	var sealed = false;

	function describe(e) {
		if (e !== null && typeof e === 'object') {
			return JSON.stringify({
				name: e.name !== undefined ? String(e.name) : '',
				message: e.message !== undefined ? String(e.message) : String(e),
				stack: e.stack !== undefined ? String(e.stack) : ''
			});
		}
		return JSON.stringify({ name: '', message: String(e), stack: '' });
	}

	function paramNames(fn) {
		var src;
		try { src = Function.prototype.toString.call(fn); } catch (e) { return []; }
		var arrow = /^\s*(?:async\s+)?([A-Za-z_$][\w$]*)\s*=>/.exec(src);
		if (arrow) return [arrow[1]];
		var open = src.indexOf('(');
		if (open < 0) return [];
		var depth = 0, end = -1;
		for (var i = open; i < src.length; i++) {
			var c = src.charAt(i);
			if (c === '(') depth++;
			else if (c === ')' && --depth === 0) { end = i; break; }
		}
		if (end < 0) return [];
		var list = src.slice(open + 1, end)
			.replace(/\/\*[\s\S]*?\*\//g, '')
			.replace(/\/\/.*$/gm, '');
		var out = [];
		var parts = list.split(',');
		for (var j = 0; j < parts.length; j++) {
			var p = parts[j].trim().replace(/^\.\.\./, '');
			var eq = p.indexOf('=');
			if (eq >= 0) p = p.slice(0, eq).trim();
			if (/^[A-Za-z_$][\w$]*$/.test(p)) out.push(p);
		}
		return out;
	}

	function moduleExports() {
		var mod = globalThis.` + ModuleGlobal + `;
		return (mod !== undefined && mod !== null) ? mod : null;
	}

	function names() {
		var mod = moduleExports();
		if (mod) {
			var keys = Object.keys(mod).filter(function(k) { return k !== 'default'; });
			var def = mod['default'];
			if (typeof def === 'function') {
				keys.push('default');
			} else if (def !== null && typeof def === 'object') {
				Object.keys(def).forEach(function(k) {
					if (keys.indexOf(k) < 0) keys.push(k);
				});
			}
			return keys;
		}
		return Object.getOwnPropertyNames(globalThis).filter(function(n) {
			return !baseline[n] && n.indexOf('__svc') !== 0;
		});
	}

	function lookup(name) {
		var mod = moduleExports();
		if (mod) {
			if (Object.prototype.hasOwnProperty.call(mod, name)) return mod[name];
			var def = mod['default'];
			if (def !== null && typeof def === 'object' && Object.prototype.hasOwnProperty.call(def, name)) {
				var v = def[name];
				return typeof v === 'function' ? v.bind(def) : v;
			}
			return undefined;
		}
		if (baseline[name] || !Object.prototype.hasOwnProperty.call(globalThis, name)) return undefined;
		return globalThis[name];
	}

	// lexical reads a top-level let/const binding of a plain script. Those
	// live in the global lexical scope, not on globalThis.
	function lexical(name) {
		if (moduleExports() || baseline[name] || !/^[A-Za-z_$][\w$]*$/.test(name)) return undefined;
		try {
			return (0, eval)('typeof ' + name + ' === "function" ? ' + name + ' : undefined');
		} catch (e) {
			return undefined;
		}
	}

	function stringify(r) {
		if (typeof r === 'string') return r;
		if (r instanceof Date) return r.toISOString();
		if (typeof r === 'object') {
			try {
				var s = JSON.stringify(r);
				if (s !== undefined) return s;
			} catch (e) {}
		}
		return String(r);
	}

	var api = {
		snapshot: function() {
			var own = Object.getOwnPropertyNames(globalThis);
			for (var i = 0; i < own.length; i++) baseline[own[i]] = true;
		},
		symbols: function() {
			return JSON.stringify(names().map(function(n) {
				var v = lookup(n);
				var callable = typeof v === 'function';
				return { name: n, callable: callable, params: callable ? paramNames(v) : [] };
			}));
		},
		bind: function(name) {
			if (sealed) throw new Error('service bridge handle table is sealed');
			var v = lookup(name);
			if (v === undefined) v = lexical(name);
			if (typeof v !== 'function') return -1;
			handles.push(v);
			return handles.length - 1;
		},
		seal: function() {
			sealed = true;
			Object.freeze(handles);
		},
		call: function(idx, argsJSON) {
			delete globalThis.__call_result;
			var fn = handles[idx];
			if (typeof fn !== 'function') return describe(new ReferenceError('no bound handle ' + idx));
			var args = JSON.parse(argsJSON);
			try {
				globalThis.__call_result = fn.apply(undefined, args);
			} catch (e) {
				return describe(e);
			}
			return '';
		},
		result: function() {
			var r = globalThis.__call_result;
			delete globalThis.__call_result;
			if (r === undefined || r === null) return '{"null":true}';
			return JSON.stringify({ value: stringify(r) });
		},
		describe: describe
	};

	Object.defineProperty(globalThis, '__svc', {
		value: Object.freeze(api),
		writable: false,
		enumerable: false,
		configurable: false
	});
})();
`

// callCleanupJS removes per-call state left on globalThis.
const callCleanupJS = `
(function() {
	var perCall = ['__call_result', '__awaited_result', '__awaited_state', '__tmp_svc_args'];
	for (var i = 0; i < perCall.length; i++) {
		try { delete globalThis[perCall[i]]; } catch (e) {}
	}
	if (globalThis.__timerCallbacks) {
		globalThis.__timerCallbacks = {};
	}
})();
`

// SetupServiceBridge installs the __svc prelude.
func SetupServiceBridge(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(serviceBridgeJS); err != nil {
		return fmt.Errorf("evaluating service bridge prelude: %w", err)
	}
	return nil
}

// CleanupCall clears per-call globals and pending timers after a call.
func CleanupCall(rt core.JSRuntime, el *eventloop.EventLoop) {
	_ = rt.Eval(callCleanupJS)
	if el != nil {
		el.Reset()
	}
}

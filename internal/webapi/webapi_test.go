//go:build !v8

package webapi

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/eventloop"
	"github.com/cryguy/svcbridge/internal/quickjs"
)

type logLine struct{ level, message string }

type captureSink struct {
	mu    sync.Mutex
	lines []logLine
}

func (c *captureSink) sink() core.LogSink {
	return func(level, message string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.lines = append(c.lines, logLine{level, message})
	}
}

// newTestRuntime returns a QuickJS runtime with every setup function
// applied.
func newTestRuntime(t *testing.T, sink core.LogSink) (core.Environment, *eventloop.EventLoop) {
	t.Helper()
	rt, err := quickjs.New(core.EngineConfig{MemoryLimitMB: 64})
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	el := eventloop.New()
	for _, setup := range []func(core.JSRuntime, *eventloop.EventLoop) error{
		SetupGlobals,
		SetupEncoding,
		SetupTimers,
		ConsoleSetup(sink),
		SetupServiceBridge,
	} {
		require.NoError(t, setup(rt, el))
	}
	return rt, el
}

func TestConsole_ForwardsToSink(t *testing.T) {
	var c captureSink
	rt, _ := newTestRuntime(t, c.sink())

	require.NoError(t, rt.Eval(`
		console.log("hello", 1, {a: [1]});
		console.warn(new TypeError("bad"));
		console.count(); console.count();
		console.assert(true, "never");
		console.assert(false, "shown");
	`))

	assert.Equal(t, []logLine{
		{"log", `hello 1 {"a":[1]}`},
		{"warn", "TypeError: bad"},
		{"log", "default: 1"},
		{"log", "default: 2"},
		{"error", "Assertion failed shown"},
	}, c.lines)
}

func TestEncoding_AtobBtoa(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)

	s, err := rt.EvalString(`btoa("svcbridge")`)
	require.NoError(t, err)
	assert.Equal(t, "c3ZjYnJpZGdl", s)

	s, err = rt.EvalString(`atob("c3ZjYnJp\nZGdl")`)
	require.NoError(t, err)
	assert.Equal(t, "svcbridge", s)

	s, err = rt.EvalString(`atob(btoa("\u00e9t\u00e9")) === "\u00e9t\u00e9" ? "ok" : "mismatch"`)
	require.NoError(t, err)
	assert.Equal(t, "ok", s)

	s, err = rt.EvalString(`(function() { try { atob("*"); return "no"; } catch (e) { return "threw"; } })()`)
	require.NoError(t, err)
	assert.Equal(t, "threw", s)
}

func TestEncoding_GoCodecs(t *testing.T) {
	enc, err := btoa("a\u00ffb")
	require.NoError(t, err)
	assert.Equal(t, "Yf9i", enc)

	dec, err := atob("Yf9i")
	require.NoError(t, err)
	assert.Equal(t, "a\u00ffb", dec)

	dec, err = atob("YQ")
	require.NoError(t, err)
	assert.Equal(t, "a", dec)

	_, err = btoa("\u4e2d")
	require.Error(t, err)
	_, err = atob("Y")
	require.ErrorIs(t, err, errInvalidBase64)
}

func TestAwaitValue_TimerPromise(t *testing.T) {
	rt, el := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval(`globalThis.pending = new Promise(function(r) { setTimeout(function() { r("fired"); }, 15); });`))
	require.NoError(t, AwaitValue(context.Background(), rt, "pending", el))

	s, err := rt.EvalString("globalThis.pending")
	require.NoError(t, err)
	assert.Equal(t, "fired", s)
}

func TestAwaitValue_PlainValueIsUntouched(t *testing.T) {
	rt, el := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval(`globalThis.plain = 5;`))
	require.NoError(t, AwaitValue(context.Background(), rt, "plain", el))
	n, err := rt.EvalInt("globalThis.plain")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestAwaitValue_Rejection(t *testing.T) {
	rt, el := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval(`globalThis.failing = Promise.reject(new SyntaxError("broken"));`))
	err := AwaitValue(context.Background(), rt, "failing", el)

	var se *core.ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "SyntaxError", se.Name)
	assert.Equal(t, "broken", se.Message)
}

func TestAwaitValue_NeverSettles(t *testing.T) {
	rt, el := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval(`globalThis.stuck = new Promise(function() {});`))
	err := AwaitValue(context.Background(), rt, "stuck", el)
	require.ErrorIs(t, err, errNeverSettles)
}

func TestAwaitValue_Deadline(t *testing.T) {
	rt, el := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval(`globalThis.slow = new Promise(function(r) { setTimeout(r, 60000); });`))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := AwaitValue(ctx, rt, "slow", el)
	require.ErrorIs(t, err, core.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAwaitValue_Canceled(t *testing.T) {
	rt, el := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval(`globalThis.slow = new Promise(function(r) { setTimeout(r, 60000); });`))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := AwaitValue(ctx, rt, "slow", el)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrTimeout)
}

func TestServiceBridge_SymbolsBindAndCall(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval("globalThis.__svc.snapshot()"))
	require.NoError(t, rt.Eval(`
		function add(a, b /* second */, c = 3) { return a + b + c; }
		var limit = 10;
	`))

	syms, err := rt.EvalString("globalThis.__svc.symbols()")
	require.NoError(t, err)
	type sym struct {
		Name     string   `json:"name"`
		Callable bool     `json:"callable"`
		Params   []string `json:"params"`
	}
	var got []sym
	require.NoError(t, json.Unmarshal([]byte(syms), &got))
	assert.ElementsMatch(t, []sym{
		{Name: "add", Callable: true, Params: []string{"a", "b", "c"}},
		{Name: "limit", Callable: false, Params: []string{}},
	}, got)

	idx, err := rt.EvalInt(`globalThis.__svc.bind("add")`)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	missing, err := rt.EvalInt(`globalThis.__svc.bind("limit")`)
	require.NoError(t, err)
	assert.Equal(t, -1, missing)

	require.NoError(t, rt.Eval("globalThis.__svc.seal()"))
	require.Error(t, rt.Eval(`globalThis.__svc.bind("add")`))

	desc, err := rt.EvalString(`globalThis.__svc.call(0, "[1, 2]")`)
	require.NoError(t, err)
	assert.Empty(t, desc)

	res, err := rt.EvalString("globalThis.__svc.result()")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"6"}`, res)

	res, err = rt.EvalString("globalThis.__svc.result()")
	require.NoError(t, err)
	assert.JSONEq(t, `{"null":true}`, res)
}

func TestServiceBridge_BindsLexicalFunctions(t *testing.T) {
	rt, el := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval("globalThis.__svc.snapshot()"))
	require.NoError(t, rt.Eval(`
		const twice = (n) => n * 2;
		let label = "not callable";
	`))

	h, err := rt.EvalInt(`globalThis.__svc.bind("twice")`)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, h, 0)

	for _, name := range []string{"label", "missing", "if", "twice; throw 1"} {
		n, err := rt.EvalInt(`globalThis.__svc.bind(` + jsQuote(name) + `)`)
		require.NoError(t, err)
		assert.Equal(t, -1, n, name)
	}

	syms, err := rt.EvalString("globalThis.__svc.symbols()")
	require.NoError(t, err)
	assert.NotContains(t, syms, "twice")

	require.NoError(t, rt.SetGlobal("__tmp_svc_args", `[21]`))
	desc, err := rt.EvalString("globalThis.__svc.call(" + strconv.Itoa(h) + ", globalThis.__tmp_svc_args)")
	require.NoError(t, err)
	require.Empty(t, desc)
	require.NoError(t, AwaitValue(context.Background(), rt, "__call_result", el))
	out, err := rt.EvalString("globalThis.__svc.result()")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"42"}`, out)
}

func jsQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestServiceBridge_CannotBeReplaced(t *testing.T) {
	rt, _ := newTestRuntime(t, nil)

	_ = rt.Eval(`globalThis.__svc = null;`)
	ok, err := rt.EvalBool(`typeof globalThis.__svc.call === "function"`)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCleanupCall(t *testing.T) {
	rt, el := newTestRuntime(t, nil)

	require.NoError(t, rt.Eval(`
		globalThis.__call_result = 1;
		globalThis.__tmp_svc_args = "[]";
		setTimeout(function() {}, 1000);
	`))
	require.True(t, el.HasPending())

	CleanupCall(rt, el)

	assert.False(t, el.HasPending())
	left, err := rt.EvalBool(`"__call_result" in globalThis || "__tmp_svc_args" in globalThis`)
	require.NoError(t, err)
	assert.False(t, left)
	n, err := rt.EvalInt(`Object.keys(globalThis.__timerCallbacks).length`)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDecodeScriptError(t *testing.T) {
	err := DecodeScriptError(`{"name":"Error","message":"m","stack":"at x"}`)
	var se *core.ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Error: m", se.Error())
	assert.Equal(t, "at x", se.Stack)

	err = DecodeScriptError("not json")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "not json", se.Message)
}

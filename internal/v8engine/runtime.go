//go:build v8

package v8engine

import (
	"fmt"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/svcbridge/internal/core"
)

// v8Runtime implements core.Environment for the V8 engine.
type v8Runtime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

var _ core.Environment = (*v8Runtime)(nil)

// New creates an isolate and context. A memory limit caps the isolate's
// heap; exceeding it terminates the running script.
func New(cfg core.EngineConfig) (core.Environment, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	return &v8Runtime{iso: iso, ctx: v8.NewContext(iso)}, nil
}

func (r *v8Runtime) Eval(js string) error {
	_, err := r.ctx.RunScript(js, "svc_eval.js")
	return err
}

func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.ctx.RunScript(js, "svc_eval.js")
	if err != nil || val == nil {
		return "", err
	}
	return val.String(), nil
}

func (r *v8Runtime) EvalBool(js string) (bool, error) {
	val, err := r.ctx.RunScript(js, "svc_eval.js")
	if err != nil || val == nil {
		return false, err
	}
	return val.Boolean(), nil
}

func (r *v8Runtime) EvalInt(js string) (int, error) {
	val, err := r.ctx.RunScript(js, "svc_eval.js")
	if err != nil || val == nil {
		return 0, err
	}
	return int(val.Integer()), nil
}

// RegisterFunc exposes fn as a global function. Only the shapes the
// environment setup registers are accepted:
//
//	func() float64
//	func(int)
//	func(int, bool) int
//	func(string, string)
//	func(string) (string, error)   a non-nil error throws a TypeError
func (r *v8Runtime) RegisterFunc(name string, fn any) error {
	var cb v8.FunctionCallback
	switch f := fn.(type) {
	case func() float64:
		cb = func(*v8.FunctionCallbackInfo) *v8.Value {
			return r.number(f())
		}
	case func(int):
		cb = r.arity(name, 1, func(args []*v8.Value) *v8.Value {
			f(int(args[0].Integer()))
			return nil
		})
	case func(int, bool) int:
		cb = r.arity(name, 2, func(args []*v8.Value) *v8.Value {
			return r.number(float64(f(int(args[0].Integer()), args[1].Boolean())))
		})
	case func(string, string):
		cb = r.arity(name, 2, func(args []*v8.Value) *v8.Value {
			f(args[0].String(), args[1].String())
			return nil
		})
	case func(string) (string, error):
		cb = r.arity(name, 1, func(args []*v8.Value) *v8.Value {
			out, err := f(args[0].String())
			if err != nil {
				return r.throwTypeError(fmt.Sprintf("calling %s: %v", name, err))
			}
			return r.str(out)
		})
	default:
		return fmt.Errorf("registering %s: unsupported function type %T", name, fn)
	}
	tmpl := v8.NewFunctionTemplate(r.iso, cb)
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

// arity wraps fn so that calls with fewer than n arguments throw.
func (r *v8Runtime) arity(name string, n int, fn func([]*v8.Value) *v8.Value) v8.FunctionCallback {
	return func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		if len(args) < n {
			return r.throwTypeError(fmt.Sprintf("%s requires at least %d argument(s), got %d", name, n, len(args)))
		}
		return fn(args)
	}
}

func (r *v8Runtime) number(f float64) *v8.Value {
	v, _ := v8.NewValue(r.iso, f)
	return v
}

func (r *v8Runtime) str(s string) *v8.Value {
	v, _ := v8.NewValue(r.iso, s)
	return v
}

func (r *v8Runtime) throwTypeError(msg string) *v8.Value {
	exc := r.str(msg)
	if ctor, err := r.ctx.Global().Get("TypeError"); err == nil {
		if fn, err := ctor.AsFunction(); err == nil {
			if e, err := fn.Call(v8.Undefined(r.iso), exc); err == nil {
				exc = e
			}
		}
	}
	return r.iso.ThrowException(exc)
}

// SetGlobal sets a global to a string, number or bool.
func (r *v8Runtime) SetGlobal(name string, value any) error {
	var val *v8.Value
	switch v := value.(type) {
	case string:
		val = r.str(v)
	case int:
		val = r.number(float64(v))
	case float64:
		val = r.number(v)
	case bool:
		b, err := v8.NewValue(r.iso, v)
		if err != nil {
			return err
		}
		val = b
	default:
		return fmt.Errorf("setting %s: unsupported value type %T", name, value)
	}
	return r.ctx.Global().Set(name, val)
}

func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// Interrupt terminates the script running in the isolate.
func (r *v8Runtime) Interrupt() {
	r.iso.TerminateExecution()
}

func (r *v8Runtime) Close() {
	r.ctx.Close()
	r.iso.Dispose()
}

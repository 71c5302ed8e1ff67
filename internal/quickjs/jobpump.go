//go:build !v8

package quickjs

import (
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// executePendingJobs drains the QuickJS job queue (Promise reactions).
// The modernc.org/quickjs wrapper never calls JS_ExecutePendingJob itself,
// so async service functions would never settle without this pump.
//
// Returns the number of jobs executed, or -1 if the runtime handle could
// not be extracted from the VM.
func executePendingJobs(vm *quickjs.VM) int {
	rt, tls, ok := runtimeHandle(vm)
	if !ok {
		return -1
	}

	n := 0
	for lib.XJS_ExecutePendingJob(tls, rt, 0) > 0 {
		n++
	}
	return n
}

// runtimeHandle reads the unexported cRuntime and tls fields of the VM's
// runtime.
//
// Layout as of modernc.org/quickjs@v0.17.1:
//
//	type VM struct {
//	    cContext uintptr
//	    ...
//	    runtime  *runtime
//	}
//
//	type runtime struct {
//	    cRuntime uintptr
//	    tls      *libc.TLS
//	}
func runtimeHandle(vm *quickjs.VM) (uintptr, *libc.TLS, bool) {
	field := reflect.ValueOf(vm).Elem().FieldByName("runtime")
	if !field.IsValid() || field.IsNil() {
		return 0, nil, false
	}
	rtVal := reflect.NewAt(field.Type().Elem(), unsafe.Pointer(field.Pointer())).Elem()

	cRuntime := rtVal.FieldByName("cRuntime")
	tls := rtVal.FieldByName("tls")
	if !cRuntime.IsValid() || !tls.IsValid() || tls.IsNil() {
		return 0, nil, false
	}
	return uintptr(cRuntime.Uint()), (*libc.TLS)(unsafe.Pointer(tls.Pointer())), true
}

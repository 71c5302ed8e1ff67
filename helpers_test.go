package svcbridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func testCfg() EngineConfig {
	return EngineConfig{
		MemoryLimitMB:    64,
		ExecutionTimeout: 5000,
		MaxScriptSizeKB:  512,
	}
}

// writeScript writes code to name inside a fresh temp dir and returns the
// path.
func writeScript(t *testing.T, name, code string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return path
}

// newTestExecutor builds an executor for the given source and method list.
func newTestExecutor(t *testing.T, name, code string, methods ...ServiceMethod) *Executor {
	t.Helper()
	return newTestExecutorCfg(t, testCfg(), name, code, methods...)
}

func newTestExecutorCfg(t *testing.T, cfg EngineConfig, name, code string, methods ...ServiceMethod) *Executor {
	t.Helper()
	f := NewFactory(cfg)
	x, err := f.Create(ServiceDescriptor{
		Name:        "test_" + t.Name(),
		ImplementBy: writeScript(t, name, code),
		Methods:     methods,
	})
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func method(name string, params ...string) ServiceMethod {
	m := ServiceMethod{Name: name, ReturnType: TypeString}
	for _, p := range params {
		m.Params = append(m.Params, Param{Name: p, Type: TypeAny})
	}
	return m
}

func callJSON(t *testing.T, x *Executor, method, payload string) *string {
	t.Helper()
	res, err := x.ExecuteJSON(context.Background(), method, payload)
	require.NoError(t, err)
	return res
}

const greetSource = `
function greet(name) {
	return "Hello, " + name;
}
`

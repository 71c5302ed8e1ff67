package svcbridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_ZeroConfigUsesDefaults(t *testing.T) {
	f := NewFactory(EngineConfig{})
	assert.Equal(t, DefaultEngineConfig(), f.Config())
	assert.Equal(t, LanguageJS, f.Language())
	assert.True(t, f.SupportsCodeGeneration())
}

func TestFactory_MissingSourceFile(t *testing.T) {
	f := NewFactory(testCfg())
	path := filepath.Join(t.TempDir(), "absent.js")

	_, err := f.Create(ServiceDescriptor{Name: "absent", ImplementBy: path})
	var sle *SourceLoadError
	require.ErrorAs(t, err, &sle)
	assert.Equal(t, path, sle.Path)
}

func TestFactory_SyntaxError(t *testing.T) {
	f := NewFactory(testCfg())

	_, err := f.Create(ServiceDescriptor{
		Name:        "broken",
		ImplementBy: writeScript(t, "broken.js", "function oops( {"),
	})
	var sle *SourceLoadError
	require.ErrorAs(t, err, &sle)
}

func TestFactory_TopLevelThrow(t *testing.T) {
	f := NewFactory(testCfg())

	_, err := f.Create(ServiceDescriptor{
		Name:        "throws",
		ImplementBy: writeScript(t, "throws.js", `throw new Error("init failed");`),
	})
	var sle *SourceLoadError
	require.ErrorAs(t, err, &sle)
	assert.Contains(t, err.Error(), "init failed")
}

func TestFactory_ScriptTooLarge(t *testing.T) {
	cfg := testCfg()
	cfg.MaxScriptSizeKB = 1
	f := NewFactory(cfg)

	src := "function big() { return '" + strings.Repeat("x", 2048) + "'; }"
	_, err := f.Create(ServiceDescriptor{Name: "big", ImplementBy: writeScript(t, "big.js", src)})
	var sle *SourceLoadError
	require.ErrorAs(t, err, &sle)
}

func TestFactory_BindingFailure(t *testing.T) {
	f := NewFactory(testCfg())

	_, err := f.Create(ServiceDescriptor{
		Name:        "partial",
		ImplementBy: writeScript(t, "partial.js", greetSource),
		Methods:     []ServiceMethod{method("GREET", "NAME"), method("FAREWELL", "NAME")},
	})
	require.ErrorIs(t, err, ErrBinding)
	var be *BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "FAREWELL", be.Method)
	assert.Equal(t, "farewell", be.Symbol)
}

func TestFactory_BindsLexicalDeclarations(t *testing.T) {
	f := NewFactory(testCfg())

	x, err := f.Create(ServiceDescriptor{
		Name: "lexical",
		ImplementBy: writeScript(t, "lexical.js", `
const greet = (name) => "Hi, " + name;
let shout = function(s) { return String(s).toUpperCase(); };
const notAFunction = 42;
`),
		Methods: []ServiceMethod{method("GREET", "NAME"), method("SHOUT", "S")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })

	res := callJSON(t, x, "greet", `["zhh"]`)
	require.NotNil(t, res)
	assert.Equal(t, "Hi, zhh", *res)

	res = callJSON(t, x, "SHOUT", `{"S":"quiet"}`)
	require.NotNil(t, res)
	assert.Equal(t, "QUIET", *res)

	_, err = f.Create(ServiceDescriptor{
		Name:        "lexical_value",
		ImplementBy: writeScript(t, "value.js", `const notAFunction = 42;`),
		Methods:     []ServiceMethod{method("NOT_A_FUNCTION")},
	})
	var be *BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "notAFunction", be.Symbol)
}

func TestFactory_DuplicateDeclaredMethods(t *testing.T) {
	f := NewFactory(testCfg())

	_, err := f.Create(ServiceDescriptor{
		Name:        "dup",
		ImplementBy: writeScript(t, "dup.js", greetSource),
		Methods:     []ServiceMethod{method("GREET", "NAME"), method("greet", "NAME")},
	})
	var be *BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "greet", be.Method)
	assert.Equal(t, "GREET", be.Conflict)
}

func TestFactory_UnsupportedLanguage(t *testing.T) {
	f := NewFactory(testCfg())

	_, err := f.Create(ServiceDescriptor{Name: "py", Language: "python", ImplementBy: "x.py"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestFactory_GenerateCodeLoadsAndBinds(t *testing.T) {
	f := NewFactory(testCfg())
	desc := ServiceDescriptor{
		Name:        "users",
		ImplementBy: filepath.Join(t.TempDir(), "gen", "users.js"),
		Methods: []ServiceMethod{
			{Name: "GET_USER_NAME", Params: []Param{{Name: "USER_ID", Type: TypeLong}}, ReturnType: TypeString},
			{Name: "REMOVE", Params: []Param{{Name: "CLASS", Type: TypeString}}},
			{Name: "PING"},
		},
	}

	require.NoError(t, f.GenerateCode(desc))
	code, err := os.ReadFile(desc.ImplementBy)
	require.NoError(t, err)
	assert.Contains(t, string(code), "function getUserName(userId)")
	assert.Contains(t, string(code), "function remove(class_)")
	assert.Contains(t, string(code), "@param {BIGINT} userId")

	x, err := f.Create(desc)
	require.NoError(t, err)
	defer x.Close()
	assert.Equal(t, 3, x.Bindings().Len())

	res, err := x.ExecuteJSON(context.Background(), "get_user_name", `{"USER_ID": 1}`)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestFactory_GenerateCodeKeepsExistingFile(t *testing.T) {
	f := NewFactory(testCfg())
	path := writeScript(t, "keep.js", greetSource)

	require.NoError(t, f.GenerateCode(ServiceDescriptor{
		Name:        "keep",
		ImplementBy: path,
		Methods:     []ServiceMethod{method("OTHER")},
	}))
	code, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, greetSource, string(code))
}

func TestFactory_GenerateCodeImplicitService(t *testing.T) {
	f := NewFactory(testCfg())
	desc := ServiceDescriptor{Name: "free", ImplementBy: filepath.Join(t.TempDir(), "free.js")}

	require.NoError(t, f.GenerateCode(desc))
	x, err := f.Create(desc)
	require.NoError(t, err)
	defer x.Close()

	res, err := x.ExecuteJSON(context.Background(), "hello", `["zhh"]`)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "Hello zhh", *res)
}

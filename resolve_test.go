package svcbridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSymbols is an in-memory symbolTable.
type fakeSymbols struct {
	syms   []symbol
	bound  []string
	sealed bool
}

func (f *fakeSymbols) symbols() ([]symbol, error) { return f.syms, nil }

func (f *fakeSymbols) bind(name string) (int, error) {
	if f.sealed {
		return 0, errors.New("sealed")
	}
	for _, s := range f.syms {
		if s.Name == name && s.Callable {
			f.bound = append(f.bound, name)
			return len(f.bound) - 1, nil
		}
	}
	return -1, nil
}

func (f *fakeSymbols) seal() error {
	f.sealed = true
	return nil
}

func fn(name string, params ...string) symbol {
	return symbol{Name: name, Callable: true, Params: params}
}

func TestResolve_ExplicitBindsEveryMethod(t *testing.T) {
	env := &fakeSymbols{syms: []symbol{fn("greet", "name"), fn("getUserName"), fn("unused")}}

	table, err := resolve("svc", []ServiceMethod{method("GREET", "NAME"), method("GET_USER_NAME")}, env)
	require.NoError(t, err)

	assert.False(t, table.Implicit())
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"GREET", "GET_USER_NAME"}, table.Methods())
	assert.True(t, env.sealed)

	b, ok := table.Lookup("get_user_name")
	require.True(t, ok)
	assert.Equal(t, "getUserName", b.Symbol)
	assert.Equal(t, "GET_USER_NAME", b.Method)

	_, ok = table.Lookup("unused")
	assert.False(t, ok)
}

func TestResolve_ExplicitFailureNamesMethod(t *testing.T) {
	env := &fakeSymbols{syms: []symbol{fn("greet"), {Name: "total", Callable: false}}}

	_, err := resolve("svc", []ServiceMethod{method("GREET"), method("TOTAL")}, env)
	require.ErrorIs(t, err, ErrBinding)

	var be *BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "svc", be.Service)
	assert.Equal(t, "TOTAL", be.Method)
	assert.Equal(t, "total", be.Symbol)
	assert.Contains(t, err.Error(), "function not found: total")
}

func TestResolve_ExplicitDuplicateKeyFails(t *testing.T) {
	env := &fakeSymbols{syms: []symbol{fn("getUser"), fn("getuser")}}

	_, err := resolve("svc", []ServiceMethod{method("getUser"), method("GETUSER")}, env)
	require.ErrorIs(t, err, ErrBinding)

	var be *BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "GETUSER", be.Method)
	assert.Equal(t, "getUser", be.Conflict)
	assert.Contains(t, err.Error(), "duplicates method getUser")
	assert.False(t, env.sealed)
}

func TestResolve_ImplicitSkipsValues(t *testing.T) {
	env := &fakeSymbols{syms: []symbol{
		fn("a"),
		fn("b", "x", "y"),
		{Name: "c", Callable: false},
	}}

	table, err := resolve("svc", nil, env)
	require.NoError(t, err)
	assert.True(t, table.Implicit())
	assert.Equal(t, []string{"a", "b"}, table.Methods())

	b, ok := table.Lookup("B")
	require.True(t, ok)
	assert.Equal(t, []Param{{Name: "x"}, {Name: "y"}}, b.Params)

	_, ok = table.Lookup("c")
	assert.False(t, ok)
}

func TestResolve_ImplicitFirstFoldedNameWins(t *testing.T) {
	env := &fakeSymbols{syms: []symbol{fn("run"), fn("RUN")}}

	table, err := resolve("svc", nil, env)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	b, ok := table.Lookup("Run")
	require.True(t, ok)
	assert.Equal(t, "run", b.Symbol)
}

func TestResolve_EmptyImplementation(t *testing.T) {
	table, err := resolve("svc", nil, &fakeSymbols{})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestBindingTable_LookupReturnsCopy(t *testing.T) {
	env := &fakeSymbols{syms: []symbol{fn("greet", "name")}}
	table, err := resolve("svc", nil, env)
	require.NoError(t, err)

	b, _ := table.Lookup("greet")
	b.Params[0].Name = "mutated"

	again, _ := table.Lookup("greet")
	assert.Equal(t, "name", again.Params[0].Name)
}

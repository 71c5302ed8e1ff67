package svcbridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binding(params ...Param) *Binding {
	return &Binding{Method: "M", Symbol: "m", Params: params}
}

func encoded(t *testing.T, args []any) string {
	t.Helper()
	b, err := json.Marshal(args)
	require.NoError(t, err)
	return string(b)
}

func TestNamedArgs_OrderAndMatching(t *testing.T) {
	b := binding(Param{Name: "FIRST"}, Param{Name: "second"}, Param{Name: "third"})

	args, err := namedArgs(b, map[string]any{
		"SECOND": 2,
		"first":  "one",
		"second": "exact",
	})
	require.NoError(t, err)
	assert.Equal(t, `["one","exact",null]`, encoded(t, args))
}

func TestNamedArgs_UnwrapsValues(t *testing.T) {
	b := binding(Param{Name: "A"}, Param{Name: "B", Type: TypeLong})

	args, err := namedArgs(b, map[string]any{"A": StringValue("x"), "B": Null})
	require.NoError(t, err)
	assert.Equal(t, `["x",null]`, encoded(t, args))
}

func TestSerializedArgs(t *testing.T) {
	b := binding(Param{Name: "NAME", Type: TypeString}, Param{Name: "COUNT", Type: TypeInt})

	tests := []struct {
		payload string
		want    string
	}{
		{``, `[]`},
		{`null`, `[]`},
		{`{"name":"zhh","count":"3"}`, `["zhh",3]`},
		{`{"COUNT":4}`, `[null,4]`},
		{`["a", 5, {"extra":true}]`, `["a",5,{"extra":true}]`},
		{`"solo"`, `["solo"]`},
		{`12345678901`, `["12345678901"]`},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			args, err := serializedArgs(b, tt.payload)
			require.NoError(t, err)
			if args == nil {
				args = []any{}
			}
			assert.Equal(t, tt.want, encoded(t, args))
		})
	}
}

func TestSerializedArgs_KeepsNestedJSON(t *testing.T) {
	b := binding(Param{Name: "DOC"})

	args, err := serializedArgs(b, `{"doc":{"k":[1,2,{"n":null}]}}`)
	require.NoError(t, err)
	assert.Equal(t, `[{"k":[1,2,{"n":null}]}]`, encoded(t, args))
}

func TestSerializedArgs_RejectsInvalidJSON(t *testing.T) {
	_, err := serializedArgs(binding(), `{"open":`)
	require.Error(t, err)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   any
		typ  Type
		want any
	}{
		{"string to int", "42", TypeInt, int64(42)},
		{"integral float to long", 7.0, TypeLong, int64(7)},
		{"json number to double", json.Number("2.5"), TypeDouble, 2.5},
		{"string to bool", "true", TypeBool, true},
		{"number to bool", 0, TypeBool, false},
		{"number to string", 12, TypeString, "12"},
		{"any passes through", []int{1}, TypeAny, []int{1}},
		{"nil stays nil", nil, TypeInt, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(tt.in, Param{Name: "P", Type: tt.typ})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Failures(t *testing.T) {
	tests := []struct {
		name string
		in   any
		typ  Type
	}{
		{"word to int", "many", TypeInt},
		{"fraction to int", 1.5, TypeInt},
		{"int overflow", int64(1) << 40, TypeInt},
		{"word to bool", "maybe", TypeBool},
		{"word to double", "pi", TypeDouble},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coerce(tt.in, Param{Name: "P", Type: tt.typ})
			var ae *ArgumentError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, "P", ae.Param)
			assert.Equal(t, tt.typ, ae.Type)
		})
	}
}

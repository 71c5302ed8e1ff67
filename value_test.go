package svcbridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"VARCHAR":        TypeString,
		"varchar(255)":   TypeString,
		" int ":          TypeInt,
		"BIGINT":         TypeLong,
		"double":         TypeDouble,
		"DECIMAL(10, 2)": TypeDouble,
		"boolean":        TypeBool,
		"BLOB":           TypeAny,
		"":               TypeAny,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseType(in), in)
	}
}

func TestType_TextRoundTrip(t *testing.T) {
	p := Param{Name: "N", Type: TypeLong}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"N","type":"BIGINT"}`, string(b))

	var back Param
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, p, back)
}

func TestValueOf(t *testing.T) {
	assert.Equal(t, Null, ValueOf(nil))
	assert.Equal(t, StringValue("x"), ValueOf("x"))
	assert.Equal(t, IntValue(3), ValueOf(int32(3)))
	assert.Equal(t, LongValue(3), ValueOf(3))
	assert.Equal(t, DoubleValue(1.5), ValueOf(1.5))
	assert.Equal(t, BoolValue(true), ValueOf(true))
	assert.Equal(t, StringValue("abc"), ValueOf([]byte("abc")))
	assert.Equal(t, StringValue("[1 2]"), ValueOf([]int{1, 2}))
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null))
	assert.False(t, IsNull(StringValue("")))
	assert.Equal(t, "NULL", Null.String())
	assert.Nil(t, Null.Object())
}

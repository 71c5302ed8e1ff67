package svcbridge

import (
	"strconv"
)

// Type is the declared type of a service parameter or return value.
type Type int

const (
	TypeAny Type = iota
	TypeString
	TypeInt
	TypeLong
	TypeDouble
	TypeBool
)

var typeNames = map[Type]string{
	TypeAny:    "ANY",
	TypeString: "VARCHAR",
	TypeInt:    "INT",
	TypeLong:   "BIGINT",
	TypeDouble: "DOUBLE",
	TypeBool:   "BOOLEAN",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType maps a declared type name to a Type. Unknown names map to
// TypeAny so catalogs can carry engine-specific types without failing.
func ParseType(name string) Type {
	switch normalizeTypeName(name) {
	case "VARCHAR", "CHAR", "TEXT", "STRING", "CLOB":
		return TypeString
	case "INT", "INTEGER", "SMALLINT", "TINYINT":
		return TypeInt
	case "BIGINT", "LONG":
		return TypeLong
	case "DOUBLE", "FLOAT", "REAL", "DECIMAL", "NUMERIC", "NUMBER":
		return TypeDouble
	case "BOOLEAN", "BOOL", "BIT":
		return TypeBool
	default:
		return TypeAny
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	*t = ParseType(string(b))
	return nil
}

// Value is an already-typed value in the caller's value model, as passed to
// and returned from ExecuteValues.
type Value interface {
	// Type reports the value's type; Null reports TypeAny.
	Type() Type
	// Object returns the value as a Go value suitable for JSON encoding.
	Object() any
	// String returns the textual form of the value.
	String() string
}

type nullValue struct{}

func (nullValue) Type() Type       { return TypeAny }
func (nullValue) Object() any      { return nil }
func (nullValue) String() string   { return "NULL" }
func (nullValue) GoString() string { return "svcbridge.Null" }

// Null is the sentinel returned by ExecuteValues when a function returns
// null or undefined.
var Null Value = nullValue{}

// IsNull reports whether v is nil or the Null sentinel.
func IsNull(v Value) bool {
	return v == nil || v == Null
}

// StringValue is a VARCHAR value.
type StringValue string

func (v StringValue) Type() Type     { return TypeString }
func (v StringValue) Object() any    { return string(v) }
func (v StringValue) String() string { return string(v) }

// IntValue is an INT value.
type IntValue int32

func (v IntValue) Type() Type     { return TypeInt }
func (v IntValue) Object() any    { return int32(v) }
func (v IntValue) String() string { return strconv.FormatInt(int64(v), 10) }

// LongValue is a BIGINT value.
type LongValue int64

func (v LongValue) Type() Type     { return TypeLong }
func (v LongValue) Object() any    { return int64(v) }
func (v LongValue) String() string { return strconv.FormatInt(int64(v), 10) }

// DoubleValue is a DOUBLE value.
type DoubleValue float64

func (v DoubleValue) Type() Type     { return TypeDouble }
func (v DoubleValue) Object() any    { return float64(v) }
func (v DoubleValue) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

// BoolValue is a BOOLEAN value.
type BoolValue bool

func (v BoolValue) Type() Type     { return TypeBool }
func (v BoolValue) Object() any    { return bool(v) }
func (v BoolValue) String() string { return strconv.FormatBool(bool(v)) }

// ValueOf converts a Go value to a Value. Unsupported kinds are rendered
// with their textual form.
func ValueOf(x any) Value {
	switch v := x.(type) {
	case nil:
		return Null
	case Value:
		return v
	case string:
		return StringValue(v)
	case int:
		return LongValue(v)
	case int32:
		return IntValue(v)
	case int64:
		return LongValue(v)
	case float32:
		return DoubleValue(v)
	case float64:
		return DoubleValue(v)
	case bool:
		return BoolValue(v)
	case []byte:
		return StringValue(v)
	default:
		return StringValue(stringOf(v))
	}
}

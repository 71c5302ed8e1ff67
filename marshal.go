package svcbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ArgumentError reports an argument that could not be converted to the
// declared parameter type. It is always returned as the Cause of an
// InvocationError.
type ArgumentError struct {
	Param string
	Type  Type
	Err   error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %s: cannot convert to %s: %v", e.Param, e.Type, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

var errNotNumber = errors.New("not a number")

func normalizeTypeName(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return name
}

func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// positionalArgs converts typed values to the JS argument list, coercing
// each to the declared type when one is known.
func positionalArgs(b *Binding, values []Value) ([]any, error) {
	args := make([]any, len(values))
	for i, v := range values {
		var obj any
		if !IsNull(v) {
			obj = v.Object()
		}
		if i < len(b.Params) {
			c, err := coerce(obj, b.Params[i])
			if err != nil {
				return nil, err
			}
			obj = c
		}
		args[i] = obj
	}
	return args, nil
}

// namedArgs orders a name-to-value map by the binding's parameter list.
// Names match exactly first, then case-insensitively; a parameter with no
// entry is passed as null.
func namedArgs(b *Binding, named map[string]any) ([]any, error) {
	folded := make(map[string]any, len(named))
	for k, v := range named {
		folded[strings.ToUpper(k)] = v
	}
	args := make([]any, len(b.Params))
	for i, p := range b.Params {
		v, ok := named[p.Name]
		if !ok {
			v = folded[strings.ToUpper(p.Name)]
		}
		c, err := coerce(v, p)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}
	return args, nil
}

// serializedArgs decodes a JSON payload. An object is matched by name like
// namedArgs, an array is taken positionally, and a lone scalar is the single
// argument of a one-parameter method. An empty payload or null means no
// arguments.
func serializedArgs(b *Binding, payload string) ([]any, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}
	if !gjson.Valid(payload) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	doc := gjson.Parse(payload)
	switch {
	case doc.Type == gjson.Null:
		return nil, nil
	case doc.IsObject():
		named := make(map[string]any)
		doc.ForEach(func(k, v gjson.Result) bool {
			named[k.String()] = jsonValue(v)
			return true
		})
		return namedArgs(b, named)
	case doc.IsArray():
		items := doc.Array()
		args := make([]any, len(items))
		for i, it := range items {
			v := jsonValue(it)
			if i < len(b.Params) {
				c, err := coerce(v, b.Params[i])
				if err != nil {
					return nil, err
				}
				v = c
			}
			args[i] = v
		}
		return args, nil
	default:
		v := jsonValue(doc)
		if len(b.Params) > 0 {
			c, err := coerce(v, b.Params[0])
			if err != nil {
				return nil, err
			}
			v = c
		}
		return []any{v}, nil
	}
}

// jsonValue converts a gjson result to a Go value, keeping integral numbers
// exact.
func jsonValue(r gjson.Result) any {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.Number:
		return json.Number(r.Raw)
	case gjson.JSON:
		return json.RawMessage(r.Raw)
	default:
		return r.Value()
	}
}

// coerce converts v to the declared type of p. TypeAny passes v through.
func coerce(v any, p Param) (any, error) {
	if v == nil {
		return nil, nil
	}
	if val, ok := v.(Value); ok {
		if IsNull(val) {
			return nil, nil
		}
		v = val.Object()
	}
	var (
		out any
		err error
	)
	switch p.Type {
	case TypeAny:
		return v, nil
	case TypeString:
		switch x := v.(type) {
		case json.RawMessage:
			out = string(x)
		default:
			out = stringOf(x)
		}
	case TypeInt:
		var n int64
		n, err = toInt(v)
		if err == nil && (n < math.MinInt32 || n > math.MaxInt32) {
			err = strconv.ErrRange
		}
		out = n
	case TypeLong:
		out, err = toInt(v)
	case TypeDouble:
		out, err = toFloat(v)
	case TypeBool:
		out, err = toBool(v)
	default:
		return v, nil
	}
	if err != nil {
		return nil, &ArgumentError{Param: p.Name, Type: p.Type, Err: err}
	}
	return out, nil
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not integral", x)
		}
		return int64(x), nil
	case float32:
		return toInt(float64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, err
		}
		return toInt(f)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errNotNumber
		}
		return toInt(f)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported value %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, errNotNumber
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return false, err
		}
		return f != 0, nil
	default:
		f, err := toFloat(v)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}

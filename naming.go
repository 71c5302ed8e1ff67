package svcbridge

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ToCamelFromUnderscore converts a declared method name to the name the
// implementation is expected to define: GET_USER_NAME and get_user_name
// become getUserName, HELLO becomes hello. A segment that already mixes
// cases keeps its inner casing, so getUserName is left unchanged.
func ToCamelFromUnderscore(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	first := true
	for _, seg := range strings.Split(name, "_") {
		if seg == "" {
			continue
		}
		if !mixedCase(seg) {
			seg = strings.ToLower(seg)
		}
		r, size := utf8.DecodeRuneInString(seg)
		if first {
			b.WriteRune(unicode.ToLower(r))
			first = false
		} else {
			b.WriteRune(unicode.ToUpper(r))
		}
		b.WriteString(seg[size:])
	}
	return b.String()
}

func mixedCase(s string) bool {
	var upper, lower bool
	for _, r := range s {
		upper = upper || unicode.IsUpper(r)
		lower = lower || unicode.IsLower(r)
	}
	return upper && lower
}

// bindingKey is the lookup key for a method name. Both discovery modes and
// every call site fold names this way, so lookups are case-insensitive.
func bindingKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

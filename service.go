package svcbridge

import "strings"

// LanguageJS is the implementation language served by this package's Factory.
const LanguageJS = "js"

// ServiceDescriptor describes a service and where its implementation lives.
// Descriptors are supplied by a catalog and treated as read-only.
type ServiceDescriptor struct {
	Name        string          `toml:"name" json:"name"`
	Language    string          `toml:"language" json:"language,omitempty"`
	ImplementBy string          `toml:"implement_by" json:"implementBy"`
	Methods     []ServiceMethod `toml:"methods" json:"methods,omitempty"`
}

// ServiceMethod is one declared operation of a service.
type ServiceMethod struct {
	Name       string  `toml:"name" json:"name"`
	Params     []Param `toml:"params" json:"params,omitempty"`
	ReturnType Type    `toml:"return_type" json:"returnType,omitempty"`
}

// Param is a positional parameter of a ServiceMethod.
type Param struct {
	Name string `toml:"name" json:"name"`
	Type Type   `toml:"type" json:"type,omitempty"`
}

// ParamNames returns the declared parameter names in order.
func (m ServiceMethod) ParamNames() []string {
	names := make([]string, len(m.Params))
	for i, p := range m.Params {
		names[i] = p.Name
	}
	return names
}

// LanguageOrDefault returns the descriptor's language, defaulting to js.
func (d ServiceDescriptor) LanguageOrDefault() string {
	if l := strings.TrimSpace(d.Language); l != "" {
		return strings.ToLower(l)
	}
	return LanguageJS
}

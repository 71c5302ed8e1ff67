package svcbridge

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

var stubTemplate = template.Must(template.New("stub").Funcs(template.FuncMap{
	"camel":  ToCamelFromUnderscore,
	"params": stubParams,
}).Parse(`// Implementation of service {{.Name}}.
{{- if not .Methods}}
//
// No methods are declared, so every top-level function defined here is
// callable by its own name.

function hello(name) {
	return "Hello " + name;
}
{{- end}}
{{range .Methods}}
/**
 * {{.Name}}
{{- range .Params}}
 * @param {{"{"}}{{.Type}}{{"}"}} {{camel .Name}}
{{- end}}
 * @returns {{"{"}}{{.ReturnType}}{{"}"}}
 */
function {{camel .Name}}({{params .Params}}) {
	return null;
}
{{end}}`))

// jsReserved holds words that cannot be used as parameter names.
var jsReserved = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "enum": true, "export": true, "extends": true,
	"false": true, "finally": true, "for": true, "function": true, "if": true,
	"import": true, "in": true, "instanceof": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true, "let": true, "static": true,
	"await": true,
}

func stubParams(params []Param) string {
	names := make([]string, len(params))
	for i, p := range params {
		n := ToCamelFromUnderscore(p.Name)
		if n == "" {
			n = "arg"
		}
		if jsReserved[n] {
			n += "_"
		}
		names[i] = n
	}
	return strings.Join(names, ", ")
}

// writeStub renders the starter implementation for desc and creates path
// with it, failing if the file already exists.
func writeStub(path string, desc ServiceDescriptor) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	}
	if err := stubTemplate.Execute(f, desc); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

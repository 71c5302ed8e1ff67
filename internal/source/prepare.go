// Package source turns a service implementation file into JavaScript that
// an embedded environment can evaluate.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// Kind tells the loader where an implementation's top-level symbols live.
type Kind int

const (
	// Script code is evaluated as-is; its new globals are the symbols.
	Script Kind = iota
	// Module code was bundled into an IIFE; its exports are the symbols.
	Module
)

func (k Kind) String() string {
	if k == Module {
		return "module"
	}
	return "script"
}

// Prepared is an implementation ready to be evaluated.
type Prepared struct {
	Path string
	Code string
	Kind Kind
}

var moduleSyntax = regexp.MustCompile(`(?m)^\s*(import\s*[{*"']|import\s+[\w$]|export\s*[{*]|export\s+[\w$])`)

// Prepare reads the implementation at path and converts it to plain
// JavaScript. ES module sources (import/export syntax, or a .mjs/.mts
// extension) are bundled with esbuild into an IIFE assigned to
// globalThis[moduleGlobal]; TypeScript scripts are stripped of types;
// everything else is returned unchanged. maxSizeKB bounds the prepared
// code; zero means unlimited.
func Prepare(path, moduleGlobal string, maxSizeKB int) (*Prepared, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading implementation: %w", err)
	}
	src := string(raw)
	ext := strings.ToLower(filepath.Ext(path))

	p := &Prepared{Path: path}
	switch {
	case ext == ".mjs" || ext == ".mts" || moduleSyntax.MatchString(src):
		code, err := bundle(path, moduleGlobal)
		if err != nil {
			return nil, err
		}
		p.Code, p.Kind = code, Module
	case ext == ".ts":
		code, err := stripTypes(src, path)
		if err != nil {
			return nil, err
		}
		p.Code, p.Kind = code, Script
	default:
		p.Code, p.Kind = src, Script
	}

	if maxSizeKB > 0 && len(p.Code) > maxSizeKB*1024 {
		return nil, fmt.Errorf("implementation is %d bytes, limit is %d KB", len(p.Code), maxSizeKB)
	}
	return p, nil
}

// bundle resolves the module's imports relative to its directory and emits
// a single script.
func bundle(path, moduleGlobal string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving implementation path: %w", err)
	}
	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{abs},
		AbsWorkingDir: filepath.Dir(abs),
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		GlobalName:    "globalThis." + moduleGlobal,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        esbuild.ES2020,
		TreeShaking:   esbuild.TreeShakingFalse,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("bundling %s: %s", filepath.Base(path), joinMessages(result.Errors))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling %s produced no output", filepath.Base(path))
	}
	return string(result.OutputFiles[0].Contents), nil
}

func stripTypes(src, path string) (string, error) {
	result := esbuild.Transform(src, esbuild.TransformOptions{
		Loader:     esbuild.LoaderTS,
		Sourcefile: filepath.Base(path),
		Target:     esbuild.ES2020,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("transforming %s: %s", filepath.Base(path), joinMessages(result.Errors))
	}
	return string(result.Code), nil
}

func joinMessages(msgs []esbuild.Message) string {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			texts = append(texts, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, "; ")
}

package svcbridge

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cryguy/svcbridge/internal/core"
	"github.com/cryguy/svcbridge/internal/source"
	"github.com/cryguy/svcbridge/internal/webapi"
)

// Factory creates Executors for services implemented in JavaScript or
// TypeScript.
type Factory struct {
	cfg EngineConfig
	log zerolog.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger used by the factory and the executors it
// creates. Script console output is logged through it as well.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Factory) { f.log = l }
}

// NewFactory returns a Factory. A zero cfg is replaced by
// DefaultEngineConfig.
func NewFactory(cfg EngineConfig, opts ...Option) *Factory {
	if cfg == (EngineConfig{}) {
		cfg = DefaultEngineConfig()
	}
	f := &Factory{cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Language returns the implementation language this factory serves.
func (f *Factory) Language() string { return LanguageJS }

// Config returns the factory's engine configuration.
func (f *Factory) Config() EngineConfig { return f.cfg }

// Create loads desc.ImplementBy into a fresh environment and binds the
// service's methods. On failure nothing is left running.
//
// Errors are a *SourceLoadError when the implementation cannot be read,
// prepared or evaluated, and a *BindingError when a declared method has no
// matching function.
func (f *Factory) Create(desc ServiceDescriptor) (*Executor, error) {
	if lang := desc.LanguageOrDefault(); lang != LanguageJS {
		return nil, fmt.Errorf("service %s: unsupported language %q", desc.Name, lang)
	}
	path := strings.TrimSpace(desc.ImplementBy)
	if path == "" {
		return nil, &SourceLoadError{Path: path, Err: fmt.Errorf("service %s has no implementation path", desc.Name)}
	}

	prepared, err := source.Prepare(path, webapi.ModuleGlobal, f.cfg.MaxScriptSizeKB)
	if err != nil {
		return nil, &SourceLoadError{Path: path, Err: err}
	}

	id := newExecutorID()
	log := f.log.With().
		Str("service", desc.Name).
		Str("executor", id).
		Logger()

	env, err := newEnvironment(f.cfg, prepared, consoleSink(log))
	if err != nil {
		return nil, &SourceLoadError{Path: path, Err: err}
	}

	table, err := resolve(desc.Name, desc.Methods, env)
	if err != nil {
		env.close()
		return nil, err
	}

	log.Debug().
		Str("path", path).
		Stringer("kind", prepared.Kind).
		Bool("implicit", table.Implicit()).
		Int("methods", table.Len()).
		Msg("executor created")

	return &Executor{
		id:      id,
		service: desc.Name,
		path:    path,
		table:   table,
		timeout: executionTimeout(f.cfg),
		log:     log,
		env:     env,
	}, nil
}

// SupportsCodeGeneration reports that GenerateCode is implemented.
func (f *Factory) SupportsCodeGeneration() bool { return true }

// GenerateCode writes a starter implementation for desc to
// desc.ImplementBy. An existing file is left untouched.
func (f *Factory) GenerateCode(desc ServiceDescriptor) error {
	path := strings.TrimSpace(desc.ImplementBy)
	if path == "" {
		return fmt.Errorf("service %s has no implementation path", desc.Name)
	}
	if _, err := os.Stat(path); err == nil {
		f.log.Debug().Str("service", desc.Name).Str("path", path).Msg("implementation exists, skipping generation")
		return nil
	}
	if err := writeStub(path, desc); err != nil {
		return fmt.Errorf("generating %s: %w", path, err)
	}
	f.log.Info().Str("service", desc.Name).Str("path", path).Msg("generated implementation stub")
	return nil
}

// consoleSink routes script console output to log.
func consoleSink(log zerolog.Logger) core.LogSink {
	return func(level, message string) {
		var ev *zerolog.Event
		switch level {
		case "error":
			ev = log.Error()
		case "warn":
			ev = log.Warn()
		case "debug", "trace":
			ev = log.Debug()
		default:
			ev = log.Info()
		}
		ev.Str("source", "console").Msg(message)
	}
}

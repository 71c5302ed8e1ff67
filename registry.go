package svcbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrServiceNotFound is returned by a Catalog that has no service with the
// requested name.
var ErrServiceNotFound = errors.New("service not found")

// Catalog supplies service descriptors.
type Catalog interface {
	// Service returns the descriptor named name, or an error wrapping
	// ErrServiceNotFound.
	Service(ctx context.Context, name string) (ServiceDescriptor, error)
	// Services lists every descriptor in the catalog.
	Services(ctx context.Context) ([]ServiceDescriptor, error)
}

// Registry creates executors on first use and keeps one per service. An
// executor that was closed, for example after a timeout destroyed its
// environment, is rebuilt on the next call. Services load independently:
// a slow implementation only holds up callers of that service.
type Registry struct {
	catalog Catalog
	factory *Factory
	log     zerolog.Logger

	mu        sync.Mutex
	executors map[string]*registryEntry
	closed    bool
}

// registryEntry is one service's executor. ready is closed once x or err
// is set.
type registryEntry struct {
	ready chan struct{}
	x     *Executor
	err   error
}

func (e *registryEntry) loaded() *Executor {
	select {
	case <-e.ready:
		return e.x
	default:
		return nil
	}
}

// NewRegistry returns a Registry backed by catalog. Executors are built by
// factory.
func NewRegistry(catalog Catalog, factory *Factory, log zerolog.Logger) *Registry {
	return &Registry{
		catalog:   catalog,
		factory:   factory,
		log:       log,
		executors: make(map[string]*registryEntry),
	}
}

// Executor returns the executor for service, creating it if needed.
// Concurrent callers for a service that is still loading wait for the same
// executor.
func (r *Registry) Executor(ctx context.Context, service string) (*Executor, error) {
	key := bindingKey(service)
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrExecutorClosed
		}
		e, ok := r.executors[key]
		if !ok {
			e = &registryEntry{ready: make(chan struct{})}
			r.executors[key] = e
		}
		r.mu.Unlock()
		if !ok {
			r.load(context.WithoutCancel(ctx), key, service, e)
		}

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		if !e.x.Closed() {
			return e.x, nil
		}

		r.mu.Lock()
		if r.executors[key] == e {
			delete(r.executors, key)
			r.log.Debug().Str("service", service).Str("executor", e.x.ID()).Msg("dropping closed executor")
		}
		r.mu.Unlock()
	}
}

// load builds the executor for e. An executor finished after its entry was
// invalidated, or after the registry closed, is closed at once.
func (r *Registry) load(ctx context.Context, key, service string, e *registryEntry) {
	desc, err := r.catalog.Service(ctx, service)
	if err != nil {
		e.err = fmt.Errorf("looking up service %s: %w", service, err)
	} else if e.x, e.err = r.factory.Create(desc); e.err != nil {
		r.log.Warn().Err(e.err).Str("service", service).Msg("creating executor failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(e.ready)
	current := r.executors[key] == e
	if e.err != nil {
		if current {
			delete(r.executors, key)
		}
		return
	}
	if r.closed || !current {
		e.x.Close()
	}
}

// ExecuteJSON looks up the executor for service and runs method with a JSON
// payload.
func (r *Registry) ExecuteJSON(ctx context.Context, service, method, payload string) (*string, error) {
	x, err := r.Executor(ctx, service)
	if err != nil {
		return nil, err
	}
	return x.ExecuteJSON(ctx, method, payload)
}

// Invalidate closes the executor for service, if any. The next call loads
// the implementation again.
func (r *Registry) Invalidate(service string) {
	key := bindingKey(service)
	r.mu.Lock()
	e, ok := r.executors[key]
	delete(r.executors, key)
	r.mu.Unlock()
	if !ok {
		return
	}
	// An entry still loading is closed by load once it sees it was dropped.
	if x := e.loaded(); x != nil {
		x.Close()
		r.log.Info().Str("service", service).Str("executor", x.ID()).Msg("executor invalidated")
	}
}

// GenerateAll writes starter implementations for every catalog service
// whose implementation file is missing.
func (r *Registry) GenerateAll(ctx context.Context) error {
	descs, err := r.catalog.Services(ctx)
	if err != nil {
		return fmt.Errorf("listing services: %w", err)
	}
	var errs []error
	for _, d := range descs {
		if d.LanguageOrDefault() != r.factory.Language() {
			continue
		}
		if err := r.factory.GenerateCode(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every executor. Later calls to Executor fail with
// ErrExecutorClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.executors
	r.executors = make(map[string]*registryEntry)
	r.closed = true
	r.mu.Unlock()
	for _, e := range entries {
		if x := e.loaded(); x != nil {
			x.Close()
		}
	}
}

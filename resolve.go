package svcbridge

import (
	"fmt"
	"slices"
)

// Binding is a resolved entry point: a service method bound to a function
// captured from the implementation.
type Binding struct {
	Method string  // declared method name, or the symbol name in implicit mode
	Symbol string  // name of the function in the implementation
	Params []Param // positional parameter order used for named arguments
	handle int
}

// BindingTable maps method lookup keys to bindings. It is built once when
// an executor is created and never modified afterwards, so it is safe for
// concurrent reads.
type BindingTable struct {
	service  string
	implicit bool
	entries  map[string]*Binding
	order    []string
}

// Lookup returns the binding for method. Method names are matched
// case-insensitively in both discovery modes.
func (t *BindingTable) Lookup(method string) (Binding, bool) {
	b, ok := t.entries[bindingKey(method)]
	if !ok {
		return Binding{}, false
	}
	cp := *b
	cp.Params = slices.Clone(b.Params)
	return cp, true
}

func (t *BindingTable) lookup(method string) (*Binding, bool) {
	b, ok := t.entries[bindingKey(method)]
	return b, ok
}

// Len returns the number of bound methods.
func (t *BindingTable) Len() int { return len(t.entries) }

// Methods returns the bound method names in binding order.
func (t *BindingTable) Methods() []string {
	out := make([]string, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.entries[k].Method)
	}
	return out
}

// Implicit reports whether the table was built by implicit discovery.
func (t *BindingTable) Implicit() bool { return t.implicit }

// symbol is a top-level name defined by a loaded implementation.
type symbol struct {
	Name     string   `json:"name"`
	Callable bool     `json:"callable"`
	Params   []string `json:"params"`
}

// symbolTable is the part of a loaded environment the resolver works on.
type symbolTable interface {
	// symbols lists the implementation's top-level names in definition order.
	symbols() ([]symbol, error)
	// bind captures the named function and returns its handle, or -1 when
	// the name is absent or not callable.
	bind(name string) (int, error)
	// seal freezes the captured handles.
	seal() error
}

// resolve builds the binding table for a service.
//
// With no declared methods every callable top-level symbol is bound under
// its own name (implicit discovery). Otherwise each declared method is bound
// to the function named by ToCamelFromUnderscore, and the first method
// without a callable match fails the whole resolution with a *BindingError.
// When two names fold to the same key the first one wins.
func resolve(service string, methods []ServiceMethod, env symbolTable) (*BindingTable, error) {
	t := &BindingTable{
		service:  service,
		implicit: len(methods) == 0,
		entries:  make(map[string]*Binding),
	}

	if t.implicit {
		syms, err := env.symbols()
		if err != nil {
			return nil, fmt.Errorf("listing symbols: %w", err)
		}
		for _, s := range syms {
			if !s.Callable {
				continue
			}
			key := bindingKey(s.Name)
			if _, dup := t.entries[key]; dup {
				continue
			}
			h, err := env.bind(s.Name)
			if err != nil {
				return nil, fmt.Errorf("binding %s: %w", s.Name, err)
			}
			if h < 0 {
				continue
			}
			params := make([]Param, len(s.Params))
			for i, p := range s.Params {
				params[i] = Param{Name: p}
			}
			t.add(key, &Binding{Method: s.Name, Symbol: s.Name, Params: params, handle: h})
		}
	} else {
		for _, m := range methods {
			key := bindingKey(m.Name)
			sym := ToCamelFromUnderscore(m.Name)
			if prev, dup := t.entries[key]; dup {
				return nil, &BindingError{Service: service, Method: m.Name, Symbol: sym, Conflict: prev.Method}
			}
			h, err := env.bind(sym)
			if err != nil {
				return nil, fmt.Errorf("binding %s: %w", sym, err)
			}
			if h < 0 {
				return nil, &BindingError{Service: service, Method: m.Name, Symbol: sym}
			}
			t.add(key, &Binding{Method: m.Name, Symbol: sym, Params: slices.Clone(m.Params), handle: h})
		}
	}

	if err := env.seal(); err != nil {
		return nil, fmt.Errorf("sealing handles: %w", err)
	}
	return t, nil
}

func (t *BindingTable) add(key string, b *Binding) {
	t.entries[key] = b
	t.order = append(t.order, key)
}

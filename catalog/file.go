// Package catalog provides service descriptor sources for a
// svcbridge.Registry: a TOML file and a SQLite database.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/cryguy/svcbridge"
)

// fileFormat is the on-disk layout of a TOML catalog:
//
//	[[services]]
//	name = "hello"
//	implement_by = "services/hello.js"
//
//	  [[services.methods]]
//	  name = "GREET"
//	  return_type = "VARCHAR"
//	  params = [{ name = "NAME", type = "VARCHAR" }]
type fileFormat struct {
	Services []svcbridge.ServiceDescriptor `toml:"services"`
}

// FileCatalog serves descriptors loaded from a TOML file. Relative
// implementation paths are resolved against the file's directory.
type FileCatalog struct {
	path string

	mu       sync.RWMutex
	services []svcbridge.ServiceDescriptor
}

// LoadFile reads and validates the catalog at path.
func LoadFile(path string) (*FileCatalog, error) {
	c := &FileCatalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload reads the file again. On error the previous contents are kept.
func (c *FileCatalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("catalog load failed (%s): %w", c.path, err)
	}
	var raw fileFormat
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("catalog parse failed (%s): %w", c.path, err)
	}
	base := filepath.Dir(c.path)
	for i := range raw.Services {
		d := &raw.Services[i]
		d.Name = strings.TrimSpace(d.Name)
		d.ImplementBy = strings.TrimSpace(d.ImplementBy)
		if d.ImplementBy != "" && !filepath.IsAbs(d.ImplementBy) {
			d.ImplementBy = filepath.Join(base, d.ImplementBy)
		}
	}
	if err := Validate(raw.Services); err != nil {
		return fmt.Errorf("catalog invalid (%s): %w", c.path, err)
	}

	c.mu.Lock()
	c.services = raw.Services
	c.mu.Unlock()
	return nil
}

// Path returns the catalog file path.
func (c *FileCatalog) Path() string { return c.path }

// Service returns the descriptor named name. Names match
// case-insensitively.
func (c *FileCatalog) Service(_ context.Context, name string) (svcbridge.ServiceDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.services {
		if strings.EqualFold(d.Name, strings.TrimSpace(name)) {
			return clone(d), nil
		}
	}
	return svcbridge.ServiceDescriptor{}, fmt.Errorf("%w: %s", svcbridge.ErrServiceNotFound, name)
}

// Services returns every descriptor in file order.
func (c *FileCatalog) Services(context.Context) ([]svcbridge.ServiceDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]svcbridge.ServiceDescriptor, len(c.services))
	for i, d := range c.services {
		out[i] = clone(d)
	}
	return out, nil
}

// Validate checks a set of descriptors: every service needs a unique name
// and an implementation path, and method names must be unique within a
// service. Uniqueness is case-insensitive.
func Validate(descs []svcbridge.ServiceDescriptor) error {
	seen := make(map[string]bool, len(descs))
	for i, d := range descs {
		if d.Name == "" {
			return fmt.Errorf("service[%d] missing name", i)
		}
		key := strings.ToUpper(d.Name)
		if seen[key] {
			return fmt.Errorf("duplicate service %q", d.Name)
		}
		seen[key] = true
		if d.ImplementBy == "" {
			return fmt.Errorf("service %q missing implement_by", d.Name)
		}
		methods := make(map[string]bool, len(d.Methods))
		for j, m := range d.Methods {
			name := strings.ToUpper(strings.TrimSpace(m.Name))
			if name == "" {
				return fmt.Errorf("service %q: method[%d] missing name", d.Name, j)
			}
			if methods[name] {
				return fmt.Errorf("service %q: duplicate method %q", d.Name, m.Name)
			}
			methods[name] = true
		}
	}
	return nil
}

func clone(d svcbridge.ServiceDescriptor) svcbridge.ServiceDescriptor {
	d.Methods = slices.Clone(d.Methods)
	for i := range d.Methods {
		d.Methods[i].Params = slices.Clone(d.Methods[i].Params)
	}
	return d
}

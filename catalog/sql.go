package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"

	"github.com/cryguy/svcbridge"
)

const schema = `
CREATE TABLE IF NOT EXISTS services (
	name         TEXT PRIMARY KEY COLLATE NOCASE,
	language     TEXT NOT NULL DEFAULT 'js',
	implement_by TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS service_methods (
	service     TEXT NOT NULL COLLATE NOCASE,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	params      TEXT NOT NULL DEFAULT '[]',
	return_type TEXT NOT NULL DEFAULT 'ANY',
	PRIMARY KEY (service, position)
);
`

// SQLCatalog stores descriptors in a SQLite database. Method parameters
// are kept as a JSON array of {name, type} objects.
type SQLCatalog struct {
	db *sql.DB
}

// OpenSQL opens (or creates) the catalog database at path.
func OpenSQL(path string) (*SQLCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database %q: %w", path, err)
	}
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	return newSQL(db)
}

// NewSQLMemory creates an in-memory catalog, mostly for tests.
func NewSQLMemory() (*SQLCatalog, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory catalog: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSQL(db)
}

func newSQL(db *sql.DB) (*SQLCatalog, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return &SQLCatalog{db: db}, nil
}

// Close closes the database.
func (c *SQLCatalog) Close() error {
	return c.db.Close()
}

// Put inserts or replaces a descriptor and its methods.
func (c *SQLCatalog) Put(ctx context.Context, d svcbridge.ServiceDescriptor) error {
	d.Name = strings.TrimSpace(d.Name)
	if err := Validate([]svcbridge.ServiceDescriptor{d}); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO services (name, language, implement_by) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET language = excluded.language, implement_by = excluded.implement_by`,
		d.Name, d.LanguageOrDefault(), d.ImplementBy); err != nil {
		return fmt.Errorf("storing service %s: %w", d.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM service_methods WHERE service = ?`, d.Name); err != nil {
		return fmt.Errorf("clearing methods of %s: %w", d.Name, err)
	}
	for i, m := range d.Methods {
		params := m.Params
		if params == nil {
			params = []svcbridge.Param{}
		}
		pj, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encoding params of %s.%s: %w", d.Name, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO service_methods (service, position, name, params, return_type) VALUES (?, ?, ?, ?, ?)`,
			d.Name, i, m.Name, string(pj), m.ReturnType.String()); err != nil {
			return fmt.Errorf("storing method %s.%s: %w", d.Name, m.Name, err)
		}
	}
	return tx.Commit()
}

// Delete removes a service and its methods. Deleting a missing service is
// not an error.
func (c *SQLCatalog) Delete(ctx context.Context, name string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM service_methods WHERE service = ?`, name); err != nil {
		return fmt.Errorf("deleting methods of %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM services WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting service %s: %w", name, err)
	}
	return tx.Commit()
}

// Service returns the descriptor named name. Names match
// case-insensitively.
func (c *SQLCatalog) Service(ctx context.Context, name string) (svcbridge.ServiceDescriptor, error) {
	var d svcbridge.ServiceDescriptor
	err := c.db.QueryRowContext(ctx,
		`SELECT name, language, implement_by FROM services WHERE name = ?`, strings.TrimSpace(name)).
		Scan(&d.Name, &d.Language, &d.ImplementBy)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("%w: %s", svcbridge.ErrServiceNotFound, name)
	}
	if err != nil {
		return d, fmt.Errorf("reading service %s: %w", name, err)
	}
	if d.Methods, err = c.methods(ctx, d.Name); err != nil {
		return svcbridge.ServiceDescriptor{}, err
	}
	return d, nil
}

// Services returns every descriptor ordered by name.
func (c *SQLCatalog) Services(ctx context.Context) ([]svcbridge.ServiceDescriptor, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, language, implement_by FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	var out []svcbridge.ServiceDescriptor
	for rows.Next() {
		var d svcbridge.ServiceDescriptor
		if err := rows.Scan(&d.Name, &d.Language, &d.ImplementBy); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning service: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing services: %w", err)
	}
	rows.Close()

	for i := range out {
		if out[i].Methods, err = c.methods(ctx, out[i].Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *SQLCatalog) methods(ctx context.Context, service string) ([]svcbridge.ServiceMethod, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, params, return_type FROM service_methods WHERE service = ? ORDER BY position`, service)
	if err != nil {
		return nil, fmt.Errorf("reading methods of %s: %w", service, err)
	}
	defer rows.Close()

	var out []svcbridge.ServiceMethod
	for rows.Next() {
		var (
			m          svcbridge.ServiceMethod
			params, rt string
		)
		if err := rows.Scan(&m.Name, &params, &rt); err != nil {
			return nil, fmt.Errorf("scanning method of %s: %w", service, err)
		}
		if err := json.Unmarshal([]byte(params), &m.Params); err != nil {
			return nil, fmt.Errorf("decoding params of %s.%s: %w", service, m.Name, err)
		}
		if len(m.Params) == 0 {
			m.Params = nil
		}
		m.ReturnType = svcbridge.ParseType(rt)
		out = append(out, m)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MultiConfig is the minimal configuration needed to create a multi-table repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type MultiConfig struct {
	Kind string
	DSN  string
}

// MultiRepository is a backend-agnostic interface for loading the normalized schema.
//
// Each backend implements these semantics in its own dialect (SQLite pragmas,
// Postgres DROP ... CASCADE, SQL Server OBJECT_ID guards, etc).
type MultiRepository interface {
	// Close releases backend resources. Treat it as "call once".
	Close()

	// EnsureTable creates a table from its spec. When dropFirst is set the table
	// is dropped (if it exists) before creation. A failed CREATE is returned as
	// a *SchemaError so callers can decide whether to tolerate it.
	EnsureTable(ctx context.Context, t TableSpec, dropFirst bool) error

	// DropTable drops a table if it exists.
	DropTable(ctx context.Context, table string) error

	// InsertRows inserts all rows inside a single transaction. Either every row
	// commits or none does.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// SelectAllKeyValue reads every row of table and maps the natural key
	// (keyColumns joined with a single space) to the valueColumn id.
	// Duplicate natural keys resolve to the last row read.
	SelectAllKeyValue(ctx context.Context, table string, keyColumns []string, valueColumn string) (map[string]int64, error)

	// ScanRows streams every row of table ordered by orderBy.
	ScanRows(ctx context.Context, table string, columns []string, orderBy string, fn func(row []any) error) error

	// CountOrphans counts rows of child whose fkColumn has no match in parent.parentColumn.
	CountOrphans(ctx context.Context, child, fkColumn, parent, parentColumn string) (int64, error)
}

// SchemaError reports a failed CREATE/DROP TABLE.
type SchemaError struct {
	Table string
	Op    string // "create" | "drop"
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s table %s: %v", e.Op, e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// IsSchemaError reports whether err wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// ---- multi factories ----

type multiFactory func(ctx context.Context, cfg MultiConfig) (MultiRepository, error)

var (
	multiMu        sync.RWMutex
	multiFactories = map[string]multiFactory{}
)

// RegisterMulti registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call it from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func RegisterMulti(kind string, f multiFactory) {
	multiMu.Lock()
	defer multiMu.Unlock()

	if kind == "" {
		panic("storage: RegisterMulti called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterMulti called with nil factory")
	}
	if _, exists := multiFactories[kind]; exists {
		panic(fmt.Sprintf("storage: multi factory already registered for kind=%q", kind))
	}

	multiFactories[kind] = f
}

// Registered reports whether a backend kind has been registered.
func Registered(kind string) bool {
	multiMu.RLock()
	defer multiMu.RUnlock()
	_, ok := multiFactories[kind]
	return ok
}

// NewMulti constructs a MultiRepository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func NewMulti(ctx context.Context, cfg MultiConfig) (MultiRepository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing multi.Kind")
	}

	multiMu.RLock()
	f := multiFactories[cfg.Kind]
	multiMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported multi storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

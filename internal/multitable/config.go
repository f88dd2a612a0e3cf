package multitable

import (
	"fmt"

	"salesetl/internal/storage"
)

// Config is everything one load run needs.
type Config struct {
	// Source is the path of the tab-delimited export.
	Source string

	// Storage selects the backend; Kind must be registered (see storage/all).
	Storage storage.MultiConfig

	// DropTables drops every table (children first) before the load and
	// passes dropFirst to each EnsureTable. Without it a second load into the
	// same store fails on CREATE TABLE.
	DropTables bool

	// TolerateSchemaErrors logs a failed CREATE TABLE and continues with the
	// step. Later inserts then fail on their own if the table is unusable.
	TolerateSchemaErrors bool
}

// Validate reports the first missing or unsupported setting.
func (c Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("multitable: source path is required")
	}
	if c.Storage.Kind == "" {
		return fmt.Errorf("multitable: storage.kind must be set")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("multitable: storage.dsn must be set")
	}
	return nil
}

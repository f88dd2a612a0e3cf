package postgres

import "salesetl/internal/storage"

func init() {
	// registers the multi-table backend factory
	storage.RegisterMulti("postgres", NewMulti)
}

package core

import (
	"fmt"

	"teammatch/internal/infra/persistence/postgres"
	"teammatch/internal/infra/persistence/sqlite"
	"teammatch/internal/infra/persistence/workbook"
)

// StorageDriver identifies a snapshot backend.
type StorageDriver string

const (
	StorageWorkbook StorageDriver = "workbook" // xlsx file with four sheets (default)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMemory   StorageDriver = "memory"   // in-process only (tests / ephemeral)
)

// StorageOptions selects and locates a snapshot backend.
type StorageOptions struct {
	Driver       StorageDriver
	WorkbookPath string
	SQLitePath   string
	PostgresDSN  string
}

// OpenSnapshotter constructs the configured snapshot backend. An empty driver
// selects the workbook backend.
func OpenSnapshotter(opts StorageOptions) (Snapshotter, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageWorkbook
	}
	switch driver {
	case StorageWorkbook:
		return workbook.New(opts.WorkbookPath), nil
	case StorageSQLite:
		return sqlite.Open(opts.SQLitePath)
	case StoragePostgres:
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		return postgres.Open(opts.PostgresDSN)
	case StorageMemory:
		return NewMemorySnapshotter(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

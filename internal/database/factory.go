package database

import (
	"fmt"
	"os"
	"path/filepath"

	"inkwell/internal/config"
	"inkwell/internal/database/migrations"
	"inkwell/internal/pipeline"
)

// NewLedgerFromConfig creates a ledger based on the ledger config type.
// File-backed ledgers are migrated to the latest schema version on open;
// in-memory ledgers get the schema applied directly.
func NewLedgerFromConfig(cfg config.LedgerConfig, instanceID string, clock pipeline.Clock) (*SQLiteLedger, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite ledger")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
		dbPath := filepath.Join(cfg.DataDir, instanceID+".db")
		ledger, err := NewSQLiteLedger(dbPath, clock)
		if err != nil {
			return nil, err
		}
		if err := migrations.MigrateUp(ledger.db); err != nil {
			ledger.Close()
			return nil, fmt.Errorf("migrating ledger: %w", err)
		}
		if err := ledger.CheckMigrations(); err != nil {
			ledger.Close()
			return nil, fmt.Errorf("ledger schema out of date: %w", err)
		}
		return ledger, nil
	case "memory":
		ledger, err := NewSQLiteLedger(":memory:", clock)
		if err != nil {
			return nil, err
		}
		if _, err := ledger.db.Exec(Schema); err != nil {
			ledger.Close()
			return nil, fmt.Errorf("applying schema to in-memory ledger: %w", err)
		}
		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown ledger type: %s", cfg.Type)
	}
}

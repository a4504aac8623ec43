package database

import (
	"testing"

	"inkwell/internal/config"
	"inkwell/internal/pipeline"
)

func TestNewLedgerFromConfig(t *testing.T) {
	clock := pipeline.RealClock{}

	t.Run("memory ledger", func(t *testing.T) {
		cfg := config.LedgerConfig{Type: "memory"}
		got, err := NewLedgerFromConfig(cfg, "instance-123", clock)
		if err != nil {
			t.Fatalf("NewLedgerFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		// The schema must be usable immediately.
		if _, err := got.CountByStatus(); err != nil {
			t.Errorf("CountByStatus() on fresh ledger: %v", err)
		}
	})

	t.Run("sqlite ledger migrates on open", func(t *testing.T) {
		cfg := config.LedgerConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}
		got, err := NewLedgerFromConfig(cfg, "instance-123", clock)
		if err != nil {
			t.Fatalf("NewLedgerFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() after open: %v", err)
		}
	})

	t.Run("sqlite ledger without data_dir", func(t *testing.T) {
		cfg := config.LedgerConfig{Type: "sqlite"}
		got, err := NewLedgerFromConfig(cfg, "instance-123", clock)
		if err == nil {
			got.Close()
			t.Error("NewLedgerFromConfig() expected error for missing data_dir, got nil")
		}
	})

	t.Run("unknown ledger type", func(t *testing.T) {
		cfg := config.LedgerConfig{Type: "unknown"}
		got, err := NewLedgerFromConfig(cfg, "instance-123", clock)
		if err == nil {
			got.Close()
			t.Error("NewLedgerFromConfig() expected error for unknown type, got nil")
		}
	})
}

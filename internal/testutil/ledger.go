package testutil

import (
	"testing"

	"inkwell/internal/database"
	"inkwell/internal/pipeline"
)

// NewTestLedger creates a new in-memory SQLite ledger with schema applied.
// The ledger is automatically closed when the test completes.
func NewTestLedger(t *testing.T, clock pipeline.Clock) *database.SQLiteLedger {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	ledger := database.NewSQLiteLedgerFromDB(sqlDB, clock)

	t.Cleanup(func() {
		ledger.Close()
	})

	return ledger
}

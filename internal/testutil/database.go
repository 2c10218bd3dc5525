// Package testutil provides shared test fixtures: an in-memory store
// with the schema applied, a scripted tool runner, and stub clocks and
// version providers.
package testutil

import (
	"testing"

	"toaster/internal/database"
)

// NewTestStore creates an in-memory SQLite store with the schema
// applied. The store is closed when the test completes.
func NewTestStore(t *testing.T) *database.Store {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	store := database.NewStoreFromDB(sqlDB)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

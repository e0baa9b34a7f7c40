package testutil

import (
	"testing"

	"pv-go/internal/database"
	"pv-go/internal/pv"
)

// NewTestIndex creates an in-memory SQLite index with migrations applied.
// The index is automatically closed when the test completes.
func NewTestIndex(t *testing.T, clock pv.Clock) pv.Index {
	t.Helper()

	idx, err := database.NewSQLiteIndex(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}

	t.Cleanup(func() {
		idx.Close()
	})

	return idx
}

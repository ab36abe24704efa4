// Package testdb opens throwaway in-memory SQLite databases for tests.
package testdb

import (
	"context"
	"testing"

	"github.com/codefuse-ai/modelcache/infrastructure/persistence"
	"github.com/codefuse-ai/modelcache/internal/database"
)

// New returns an in-memory SQLite database with the cache schema migrated.
// The connection is closed when the test ends.
func New(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewDatabase(context.Background(), "sqlite:///:memory:")
	if err != nil {
		t.Fatalf("testdb: open database: %v", err)
	}
	if err := persistence.AutoMigrate(db); err != nil {
		_ = db.Close()
		t.Fatalf("testdb: auto migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"testing"

	"github.com/d9705996/protestpro/internal/db"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// New returns a fresh, fully migrated in-memory database that is closed
// when the test ends. A single connection is used so every query sees the
// same in-memory database.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), db.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.MigrateSQLite(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

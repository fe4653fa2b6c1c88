// Package dbtest opens throwaway SQLite databases with the service schema for tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"

	"github.com/underpines/pines/internal/db"
)

// New returns a repository on a fresh in-memory database that is closed when t ends
func New(t testing.TB) *db.Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	d, err := db.Open(sqlite.Open(dsn), "silent")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db.NewRepository(d.DB)
}

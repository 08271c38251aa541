// Package storetest opens migrated in-memory sqlite stores for tests.
package storetest

import (
	"testing"

	"github.com/wantamink/pledgeservice/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func New(t testing.TB, opts ...store.Option) (*store.Store, *gorm.DB) {
	t.Helper()

	db, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store.New(db, zap.NewNop(), opts...), db
}

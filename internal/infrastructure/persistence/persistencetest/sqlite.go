// Package persistencetest provides an in-memory SQLite database with the
// ledger schema for tests that need real repositories.
package persistencetest

import (
	"testing"

	"github.com/ledgerly/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AllModels lists every model the ledger schema is made of
func AllModels() []any {
	return []any{
		&models.CustomerModel{},
		&models.LedgerEntryModel{},
		&models.PaymentModel{},
		&models.PaymentApplicationModel{},
		&models.AuditLogModel{},
	}
}

// NewSQLite opens a private in-memory database and migrates the ledger models.
// The pool is pinned to one connection so every query sees the same memory
// database; callers must not query the root handle from inside a transaction.
func NewSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(AllModels()...))
	return db
}

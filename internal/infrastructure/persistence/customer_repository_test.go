package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGormCustomerRepository_FindByID(t *testing.T) {
	t.Run("finds existing customer", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormCustomerRepository(db.DB)

		customerID := uuid.New()
		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at", "version", "name", "credit_limit", "current_balance", "active"}).
			AddRow(customerID, now, now, 4, "Acme Traders", "5000.00", "-120.50", true)

		mock.ExpectQuery(`SELECT \* FROM "customers" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(customerID, 1).
			WillReturnRows(rows)

		customer, err := repo.FindByID(context.Background(), customerID)

		require.NoError(t, err)
		assert.Equal(t, customerID, customer.ID)
		assert.Equal(t, 4, customer.Version)
		assert.Equal(t, "Acme Traders", customer.Name)
		assert.True(t, customer.CurrentBalance.Equal(decimal.RequireFromString("-120.50")))
		assert.True(t, customer.HasCreditLimit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps missing rows to NOT_FOUND", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormCustomerRepository(db.DB)

		customerID := uuid.New()
		mock.ExpectQuery(`SELECT \* FROM "customers" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(customerID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		customer, err := repo.FindByID(context.Background(), customerID)

		assert.Nil(t, customer)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Contains(t, err.Error(), "Customer")
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormCustomerRepository(db.DB)

		mock.ExpectQuery(`SELECT \* FROM "customers"`).WillReturnError(errors.New("connection reset"))

		_, err := repo.FindByID(context.Background(), uuid.New())

		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrNotFound)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestGormCustomerRepository_SaveWithLock(t *testing.T) {
	newCustomer := func(t *testing.T) *ledger.Customer {
		c, err := ledger.NewCustomer("Acme", decimal.NewFromInt(1000))
		require.NoError(t, err)
		c.Version = 3
		return c
	}

	t.Run("bumps version when the stored version matches", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormCustomerRepository(db.DB)
		c := newCustomer(t)

		mock.ExpectExec(`UPDATE "customers" SET .* WHERE .*version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SaveWithLock(context.Background(), c))
		assert.Equal(t, 4, c.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports a conflict and restores the version when no row matches", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormCustomerRepository(db.DB)
		c := newCustomer(t)

		mock.ExpectExec(`UPDATE "customers" SET .* WHERE .*version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), c)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 3, c.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("restores the version on driver errors", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormCustomerRepository(db.DB)
		c := newCustomer(t)

		mock.ExpectExec(`UPDATE "customers"`).WillReturnError(errors.New("deadlock detected"))

		err := repo.SaveWithLock(context.Background(), c)

		require.Error(t, err)
		assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 3, c.Version)
	})
}

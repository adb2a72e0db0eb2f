package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedPayment(t *testing.T, db *gorm.DB, customerID uuid.UUID, date time.Time, amount string, status ledger.PaymentStatus) *ledger.Payment {
	t.Helper()
	p, err := ledger.NewPayment(customerID, date, dec(amount), status, uuid.New())
	require.NoError(t, err)
	require.NoError(t, NewGormPaymentRepository(db).Save(context.Background(), p))
	return p
}

func TestGormPaymentRepository_Queries(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()

	c := seedCustomer(t, db, "0")
	older := seedPayment(t, db, c.ID, ledger.NewDate(2024, time.May, 1), "100", ledger.PaymentPending)
	partial := seedPayment(t, db, c.ID, ledger.NewDate(2024, time.May, 3), "80", ledger.PaymentPending)
	require.NoError(t, partial.ApplyAmount(dec("30")))
	require.NoError(t, repo.Save(ctx, partial))
	processed := seedPayment(t, db, c.ID, ledger.NewDate(2024, time.April, 1), "10", ledger.PaymentPending)
	require.NoError(t, processed.ApplyAmount(dec("10")))
	require.NoError(t, repo.Save(ctx, processed))
	disputed := seedPayment(t, db, c.ID, ledger.NewDate(2024, time.April, 2), "20", ledger.PaymentDisputed)

	t.Run("unapplied lists open payments oldest first", func(t *testing.T) {
		payments, err := repo.FindUnapplied(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, payments, 2)
		assert.Equal(t, older.ID, payments[0].ID)
		assert.Equal(t, partial.ID, payments[1].ID)
		assert.True(t, payments[1].UnappliedAmount().Equal(dec("50")))
		assert.Equal(t, ledger.PaymentPartial, payments[1].Status)
	})

	t.Run("counts by status", func(t *testing.T) {
		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, counts[ledger.PaymentPending])
		assert.EqualValues(t, 1, counts[ledger.PaymentPartial])
		assert.EqualValues(t, 1, counts[ledger.PaymentProcessed])
		assert.EqualValues(t, 1, counts[ledger.PaymentDisputed])
	})

	t.Run("find all filters and pages", func(t *testing.T) {
		status := ledger.PaymentDisputed
		payments, total, err := repo.FindAll(ctx, ledger.PaymentFilter{CustomerID: &c.ID, Status: &status})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, payments, 1)
		assert.Equal(t, disputed.ID, payments[0].ID)

		payments, total, err = repo.FindAll(ctx, ledger.PaymentFilter{Filter: shared.Filter{PageSize: 2}, CustomerID: &c.ID})
		require.NoError(t, err)
		assert.EqualValues(t, 4, total)
		require.Len(t, payments, 2)
		assert.Equal(t, partial.ID, payments[0].ID)
	})

	t.Run("overdue candidates need a past due date and an open status", func(t *testing.T) {
		today := ledger.NewDate(2024, time.June, 15)
		pastDue := today.AddDate(0, 0, -3)
		future := today.AddDate(0, 0, 3)

		older.SetDueDate(pastDue)
		require.NoError(t, repo.Save(ctx, older))
		partial.SetDueDate(future)
		require.NoError(t, repo.Save(ctx, partial))
		disputed.SetDueDate(pastDue)
		require.NoError(t, repo.Save(ctx, disputed))

		candidates, err := repo.FindOverdueCandidates(ctx, today)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, older.ID, candidates[0].ID)
	})
}

func TestGormPaymentRepository_Idempotency(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	c := seedCustomer(t, db, "0")

	p, err := ledger.NewPayment(c.ID, ledger.NewDate(2024, time.May, 1), dec("10"), "", uuid.New())
	require.NoError(t, err)
	p.IdempotencyKey = "order-77"
	require.NoError(t, repo.Save(ctx, p))

	// payments without a key do not collide on the unique index
	seedPayment(t, db, c.ID, ledger.NewDate(2024, time.May, 1), "1", "")
	seedPayment(t, db, c.ID, ledger.NewDate(2024, time.May, 1), "2", "")

	exists, err := repo.ExistsByIdempotencyKey(ctx, "order-77")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByIdempotencyKey(ctx, "order-78")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByIdempotencyKey(ctx, "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormPaymentRepository_SaveWithLock(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormPaymentRepository(db)
	ctx := context.Background()
	c := seedCustomer(t, db, "0")
	p := seedPayment(t, db, c.ID, ledger.NewDate(2024, time.May, 1), "10", "")

	stale, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, p.ApplyAmount(dec("4")))
	require.NoError(t, repo.SaveWithLock(ctx, p))
	assert.Equal(t, 2, p.Version)

	require.NoError(t, stale.ApplyAmount(dec("10")))
	err = repo.SaveWithLock(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.AppliedAmount.Equal(dec("4")))
	assert.Equal(t, ledger.PaymentPartial, got.Status)
}

func TestGormPaymentApplicationRepository(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormPaymentApplicationRepository(db)
	ctx := context.Background()

	paymentID := uuid.New()
	entryA, entryB := uuid.New(), uuid.New()
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

	a1 := ledger.NewPaymentApplication(paymentID, entryA, dec("10"), "first", uuid.New(), now)
	a2 := ledger.NewPaymentApplication(paymentID, entryB, dec("15.25"), "", uuid.New(), now.Add(time.Minute))
	a3 := ledger.NewPaymentApplication(uuid.New(), entryA, dec("5"), "", uuid.New(), now.Add(2*time.Minute))
	for _, a := range []*ledger.PaymentApplication{a1, a2, a3} {
		require.NoError(t, repo.Save(ctx, a))
	}

	require.NoError(t, a2.Reverse(uuid.New(), "wrong invoice", now.Add(time.Hour)))
	require.NoError(t, repo.Save(ctx, a2))

	t.Run("find by payment keeps reversed rows", func(t *testing.T) {
		apps, err := repo.FindByPayment(ctx, paymentID)
		require.NoError(t, err)
		require.Len(t, apps, 2)
		assert.Equal(t, a1.ID, apps[0].ID)
		assert.True(t, apps[1].Reversed)
		assert.Equal(t, "wrong invoice", apps[1].ReversalReason)
	})

	t.Run("effective sums skip reversed rows", func(t *testing.T) {
		sum, err := repo.SumEffectiveByPayment(ctx, paymentID)
		require.NoError(t, err)
		assert.True(t, sum.Equal(dec("10")), sum.String())

		byEntry, err := repo.SumEffectiveByEntries(ctx, []uuid.UUID{entryA, entryB})
		require.NoError(t, err)
		assert.True(t, byEntry[entryA].Equal(dec("15")))
		_, ok := byEntry[entryB]
		assert.False(t, ok)
	})

	t.Run("missing application is NOT_FOUND", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

//go:build integration

package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_SchemaMatchesModels(t *testing.T) {
	db := persistencetest.NewPostgres(t)
	ctx := context.Background()
	repos := NewRepositories(db)

	c, err := ledger.NewCustomer("Acme", dec("1000"))
	require.NoError(t, err)
	require.NoError(t, repos.Customers.Save(ctx, c))

	day := ledger.NewDate(2024, time.June, 10)
	debit, err := ledger.NewLedgerEntry(c.ID, day, ledger.TransactionDebit, dec("120.10"), "invoice", uuid.New())
	require.NoError(t, err)
	require.NoError(t, repos.Entries.Save(ctx, debit))
	credit, err := ledger.NewLedgerEntry(c.ID, day, ledger.TransactionCredit, dec("20.05"), "refund", uuid.New())
	require.NoError(t, err)
	require.NoError(t, repos.Entries.Save(ctx, credit))

	totals, err := repos.Entries.Totals(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, totals.Balance().Equal(dec("-100.05")), totals.Balance().String())

	p, err := ledger.NewPayment(c.ID, day, dec("50"), "", uuid.New())
	require.NoError(t, err)
	p.IdempotencyKey = "pg-1"
	require.NoError(t, repos.Payments.Save(ctx, p))

	app := ledger.NewPaymentApplication(p.ID, debit.ID, dec("50"), "", uuid.New(), time.Now())
	require.NoError(t, repos.Applications.Save(ctx, app))

	sums, err := repos.Applications.SumEffectiveByEntries(ctx, []uuid.UUID{debit.ID})
	require.NoError(t, err)
	assert.True(t, sums[debit.ID].Equal(dec("50")))

	exists, err := repos.Payments.ExistsByIdempotencyKey(ctx, "pg-1")
	require.NoError(t, err)
	assert.True(t, exists)

	audit := NewGormAuditLogRepository(db)
	require.NoError(t, audit.Append(ctx, ledger.AuditRecord{
		Action:      ledger.ActionRecordPayment,
		EntityType:  ledger.EntityPayment,
		EntityID:    &p.ID,
		NewSnapshot: `{"amount":"50.00"}`,
		ActorID:     uuid.New(),
		Outcome:     ledger.OutcomeSuccess,
		OccurredAt:  time.Now(),
	}))
}

func TestPostgres_ConcurrentVersionedWrites(t *testing.T) {
	db := persistencetest.NewPostgres(t)
	ctx := context.Background()
	repo := NewGormCustomerRepository(db)

	c, err := ledger.NewCustomer("Acme", dec("0"))
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loaded, err := repo.FindByID(ctx, c.ID)
			if !assert.NoError(t, err) {
				return
			}
			loaded.CurrentBalance = loaded.CurrentBalance.Add(dec("1"))
			err = repo.SaveWithLock(ctx, loaded)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, shared.ErrConcurrencyConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, succeeded+conflicts)
	assert.Equal(t, 1+succeeded, got.Version)
}

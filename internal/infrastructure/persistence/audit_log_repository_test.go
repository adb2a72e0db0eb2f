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
)

func TestGormAuditLogRepository(t *testing.T) {
	db := persistencetest.NewSQLite(t)
	repo := NewGormAuditLogRepository(db)
	ctx := context.Background()

	paymentID := uuid.New()
	actor := uuid.New()
	base := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, ledger.AuditRecord{
		Action:      ledger.ActionRecordPayment,
		EntityType:  ledger.EntityPayment,
		EntityID:    &paymentID,
		NewSnapshot: `{"amount":"100.00"}`,
		ActorID:     actor,
		Outcome:     ledger.OutcomeSuccess,
		OccurredAt:  base,
	}))
	require.NoError(t, repo.Append(ctx, ledger.AuditRecord{
		Action:       ledger.ActionApplyPayment,
		EntityType:   ledger.EntityPayment,
		EntityID:     &paymentID,
		ActorID:      actor,
		Outcome:      ledger.OutcomeViolation,
		RuleCode:     "INSUFFICIENT_PAYMENT",
		ErrorMessage: "only 10.00 remains unapplied",
		OccurredAt:   base.Add(time.Minute),
	}))
	require.NoError(t, repo.Append(ctx, ledger.AuditRecord{
		Action:     ledger.ActionOverdueCheckCompleted,
		EntityType: ledger.EntitySystem,
		ActorID:    actor,
		Outcome:    ledger.OutcomeSuccess,
		OccurredAt: base,
	}))

	trail, err := repo.FindByEntity(ctx, ledger.EntityPayment, paymentID, shared.Filter{})
	require.NoError(t, err)
	require.Len(t, trail, 2)

	assert.Equal(t, ledger.ActionApplyPayment, trail[0].Action)
	assert.Equal(t, ledger.OutcomeViolation, trail[0].Outcome)
	assert.Equal(t, "INSUFFICIENT_PAYMENT", trail[0].RuleCode)
	assert.Empty(t, trail[0].NewSnapshot)
	assert.NotEqual(t, uuid.Nil, trail[0].ID)

	assert.Equal(t, `{"amount":"100.00"}`, trail[1].NewSnapshot)

	page, err := repo.FindByEntity(ctx, ledger.EntityPayment, paymentID, shared.Filter{Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ledger.ActionRecordPayment, page[0].Action)
}

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/persistence"
	"github.com/ledgerly/backend/internal/infrastructure/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockAppender struct {
	mock.Mock
}

func (m *mockAppender) Append(ctx context.Context, rec ledger.AuditRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func testRecord(outcome ledger.Outcome) ledger.AuditRecord {
	id := uuid.New()
	return ledger.AuditRecord{
		ID:          uuid.New(),
		Action:      ledger.ActionRecordPayment,
		EntityType:  ledger.EntityPayment,
		EntityID:    &id,
		NewSnapshot: `{"amount":"10.00"}`,
		Description: "Recorded payment",
		ActorID:     uuid.New(),
		Outcome:     outcome,
		OccurredAt:  time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestDatabaseSink(t *testing.T) {
	t.Run("delegates to the appender", func(t *testing.T) {
		repo := new(mockAppender)
		rec := testRecord(ledger.OutcomeSuccess)
		repo.On("Append", mock.Anything, rec).Return(nil).Once()

		require.NoError(t, NewDatabaseSink(repo).Record(context.Background(), rec))
		repo.AssertExpectations(t)
	})

	t.Run("writes to audit_logs", func(t *testing.T) {
		db := persistencetest.NewSQLite(t)
		repo := persistence.NewGormAuditLogRepository(db)
		rec := testRecord(ledger.OutcomeSuccess)

		require.NoError(t, NewDatabaseSink(repo).Record(context.Background(), rec))

		trail, err := repo.FindByEntity(context.Background(), rec.EntityType, *rec.EntityID, shared.Filter{})
		require.NoError(t, err)
		require.Len(t, trail, 1)
		assert.Equal(t, rec.ID, trail[0].ID)
	})
}

func TestLogSink(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Record(context.Background(), testRecord(ledger.OutcomeSuccess)))

	violation := testRecord(ledger.OutcomeViolation)
	violation.RuleCode = ledger.CodeInsufficientBalance
	violation.ErrorMessage = "Insufficient balance"
	require.NoError(t, sink.Record(context.Background(), violation))

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, ledger.CodeInsufficientBalance, entries[1].ContextMap()["rule_code"])
	assert.Equal(t, violation.EntityID.String(), entries[1].ContextMap()["entity_id"])
}

func TestMultiSink(t *testing.T) {
	var got []string
	record := func(name string, err error) ledger.AuditSink {
		return ledger.AuditSinkFunc(func(context.Context, ledger.AuditRecord) error {
			got = append(got, name)
			return err
		})
	}
	panicking := ledger.AuditSinkFunc(func(context.Context, ledger.AuditRecord) error {
		got = append(got, "panic")
		panic("broken sink")
	})

	m := NewMultiSink(record("a", nil), panicking, record("b", errors.New("broker down")), record("c", nil))
	err := m.Record(context.Background(), testRecord(ledger.OutcomeSuccess))

	assert.Equal(t, []string{"a", "panic", "b", "c"}, got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken sink")
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, 4, m.Len())
}

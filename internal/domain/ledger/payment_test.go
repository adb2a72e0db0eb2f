package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T, amount string) *Payment {
	t.Helper()
	p, err := NewPayment(uuid.New(), fixedNow, dec(amount), "", uuid.New())
	require.NoError(t, err)
	return p
}

func TestNewPayment(t *testing.T) {
	p := newTestPayment(t, "60")
	assert.Equal(t, PaymentPending, p.Status)
	assert.True(t, p.AppliedAmount.IsZero())
	assert.True(t, p.RemainingAmount.Equal(dec("60")))
	assert.True(t, p.Active)
	assert.Equal(t, 1, p.Version)

	_, err := NewPayment(uuid.Nil, fixedNow, dec("1"), "", uuid.New())
	assert.Error(t, err)

	_, err = NewPayment(uuid.New(), fixedNow, dec("1"), PaymentStatus("NOPE"), uuid.New())
	assert.Error(t, err)

	custom, err := NewPayment(uuid.New(), fixedNow, dec("1"), PaymentPaid, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, custom.Status)
}

func TestPayment_ApplyAndReverse(t *testing.T) {
	p := newTestPayment(t, "100")

	require.NoError(t, p.ApplyAmount(dec("40")))
	assert.Equal(t, PaymentPartial, p.Status)
	assert.True(t, p.RemainingAmount.Equal(dec("60")))

	require.NoError(t, p.ApplyAmount(dec("60")))
	assert.Equal(t, PaymentProcessed, p.Status)
	assert.True(t, p.IsFullyApplied())

	err := p.ApplyAmount(dec("0.01"))
	requireViolation(t, err, CodeInsufficientPayment)

	require.NoError(t, p.ReverseApplication(dec("60")))
	assert.Equal(t, PaymentPartial, p.Status)
	assert.True(t, p.AppliedAmount.Equal(dec("40")))

	require.NoError(t, p.ReverseApplication(dec("40")))
	assert.Equal(t, PaymentPending, p.Status)
	assert.True(t, p.RemainingAmount.Equal(dec("100")))

	assert.Error(t, p.ReverseApplication(dec("1")))
}

func TestPayment_StatusOperations(t *testing.T) {
	actor := uuid.New()

	t.Run("mark paid stamps processed date", func(t *testing.T) {
		p := newTestPayment(t, "10")
		require.NoError(t, p.MarkPaid(actor, "cash", fixedNow))
		assert.Equal(t, PaymentPaid, p.Status)
		require.NotNil(t, p.ProcessedDate)
		assert.Equal(t, DateOf(fixedNow), *p.ProcessedDate)
		assert.Equal(t, "cash", p.StatusNotes)
		assert.Equal(t, actor, *p.StatusUpdatedBy)
	})

	t.Run("mark overdue records days", func(t *testing.T) {
		p := newTestPayment(t, "10")
		p.SetDueDate(fixedNow.AddDate(0, 0, -5))
		assert.True(t, p.IsOverdue(fixedNow))
		require.NoError(t, p.MarkOverdue(actor, fixedNow))
		assert.Equal(t, PaymentOverdue, p.Status)
		assert.Equal(t, 5, p.OverdueDays)
		assert.Equal(t, "Payment is 5 days overdue", p.StatusNotes)
		assert.False(t, p.IsOverdue(fixedNow))
	})

	t.Run("dispute and resolve", func(t *testing.T) {
		p := newTestPayment(t, "10")
		require.NoError(t, p.Dispute(actor, "wrong amount", "customer called", fixedNow))
		assert.Equal(t, PaymentDisputed, p.Status)
		assert.Equal(t, "wrong amount | Additional notes: customer called", p.DisputeReason)
		require.NotNil(t, p.DisputedBy)

		requireViolation(t, p.Dispute(actor, "again", "", fixedNow), CodeCannotDispute)

		require.NoError(t, p.ResolveDispute(actor, "refund issued", fixedNow))
		assert.Equal(t, PaymentPending, p.Status)
		assert.Equal(t, "Dispute resolved: refund issued", p.StatusNotes)
		assert.Nil(t, p.DisputeDate)
		assert.Empty(t, p.DisputeReason)

		requireViolation(t, p.ResolveDispute(actor, "again", fixedNow), CodeInvalidStatusTransition)
	})

	t.Run("processed payment cannot be updated", func(t *testing.T) {
		p := newTestPayment(t, "10")
		require.NoError(t, p.ApplyAmount(dec("10")))
		requireViolation(t, p.UpdateStatus(PaymentCancelled, actor, "", fixedNow), CodeInvalidStatusTransition)
		requireViolation(t, p.MarkPaid(actor, "", fixedNow), CodeCannotMarkPaid)
	})

	t.Run("overdue days are zero without due date", func(t *testing.T) {
		p := newTestPayment(t, "10")
		assert.Zero(t, p.CalculateOverdueDays(fixedNow))
		p.SetDueDate(fixedNow)
		assert.Zero(t, p.CalculateOverdueDays(fixedNow))
	})

	t.Run("reminders are counted", func(t *testing.T) {
		p := newTestPayment(t, "10")
		p.RecordReminder(fixedNow)
		p.RecordReminder(fixedNow.Add(24 * time.Hour))
		assert.Equal(t, 2, p.ReminderCount)
		assert.Equal(t, NewDate(2024, time.June, 16), *p.LastReminderSent)
	})
}

func TestPaymentApplication_Reverse(t *testing.T) {
	app := NewPaymentApplication(uuid.New(), uuid.New(), dec("25"), "", uuid.New(), fixedNow)
	assert.True(t, app.IsEffective())

	by := uuid.New()
	require.NoError(t, app.Reverse(by, "posted twice", fixedNow))
	assert.True(t, app.Reversed)
	assert.Equal(t, by, *app.ReversedBy)
	assert.False(t, app.IsEffective())

	requireViolation(t, app.Reverse(by, "", fixedNow), CodeApplicationReversed)
}

package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(t *testing.T, customerID uuid.UUID, date time.Time, txType TransactionType, amount string) LedgerEntry {
	t.Helper()
	e, err := NewLedgerEntry(customerID, date, txType, dec(amount), "", uuid.New())
	require.NoError(t, err)
	return *e
}

func TestTotalsOf(t *testing.T) {
	id := uuid.New()
	entries := []LedgerEntry{
		entry(t, id, fixedNow, TransactionOpeningBalance, "100"),
		entry(t, id, fixedNow, TransactionCredit, "50"),
		entry(t, id, fixedNow, TransactionDebit, "30"),
		entry(t, id, fixedNow, TransactionAdjustment, "999"),
		entry(t, id, fixedNow, TransactionDebit, "500"),
	}
	entries[4].Active = false

	totals := TotalsOf(entries)
	assert.True(t, totals.Credit.Equal(dec("150")))
	assert.True(t, totals.Debit.Equal(dec("30")))
	assert.EqualValues(t, 4, totals.Count)
	assert.True(t, BalanceOf(entries).Equal(dec("120")))
}

func TestEffectiveApplied(t *testing.T) {
	entryID := uuid.New()
	apps := []PaymentApplication{
		*NewPaymentApplication(uuid.New(), entryID, dec("10"), "", uuid.New(), fixedNow),
		*NewPaymentApplication(uuid.New(), entryID, dec("5"), "", uuid.New(), fixedNow),
	}
	require.NoError(t, apps[1].Reverse(uuid.New(), "", fixedNow))

	assert.True(t, EffectiveApplied(apps).Equal(dec("10")))
	assert.True(t, EffectiveAppliedByEntry(apps)[entryID].Equal(dec("10")))
}

func TestBuildOutstandingReport(t *testing.T) {
	c := activeCustomer("-90", "0")
	old := entry(t, c.ID, NewDate(2024, time.June, 5), TransactionDebit, "50")
	recent := entry(t, c.ID, NewDate(2024, time.June, 10), TransactionDebit, "40")
	paid := entry(t, c.ID, NewDate(2024, time.June, 1), TransactionDebit, "20")

	settled := map[uuid.UUID]decimal.Decimal{
		old.ID:  dec("10"),
		paid.ID: dec("20"),
	}

	pay, err := NewPayment(c.ID, NewDate(2024, time.June, 12), dec("25"), "", uuid.New())
	require.NoError(t, err)
	require.NoError(t, pay.ApplyAmount(dec("5")))
	fullyApplied, err := NewPayment(c.ID, NewDate(2024, time.June, 12), dec("5"), "", uuid.New())
	require.NoError(t, err)
	require.NoError(t, fullyApplied.ApplyAmount(dec("5")))

	r := BuildOutstandingReport(c, []LedgerEntry{old, recent, paid}, settled, []Payment{*pay, *fullyApplied}, fixedNow)

	assert.Equal(t, 2, r.OutstandingEntryCount)
	assert.True(t, r.TotalOutstanding.Equal(dec("80")))
	assert.True(t, r.TotalUnappliedPayments.Equal(dec("20")))
	assert.True(t, r.NetOutstanding.Equal(dec("60")))
	assert.Equal(t, 1, r.UnappliedPaymentCount)
	require.NotNil(t, r.OldestOutstandingDate)
	assert.Equal(t, NewDate(2024, time.June, 5), *r.OldestOutstandingDate)
	// 10 and 5 days outstanding, integer mean
	assert.Equal(t, 7, r.AverageDaysOutstanding)
}

func TestNewPaymentStatusSummary(t *testing.T) {
	s := NewPaymentStatusSummary(map[PaymentStatus]int64{
		PaymentPending:  5,
		PaymentOverdue:  2,
		PaymentDisputed: 1,
		PaymentFailed:   1,
		PaymentPaid:     1,
	})
	assert.EqualValues(t, 10, s.Total)
	assert.EqualValues(t, 4, s.ProblematicCount)
	assert.InDelta(t, 40.0, s.ProblematicPercentage, 0.0001)
	assert.Len(t, s.Counts, len(AllPaymentStatuses()))

	empty := NewPaymentStatusSummary(nil)
	assert.Zero(t, empty.ProblematicPercentage)
}

package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateFIFO(t *testing.T) {
	jan, feb, mar := uuid.New(), uuid.New(), uuid.New()
	targets := []AllocationTarget{
		{EntryID: mar, TransactionDate: NewDate(2024, time.March, 1), Outstanding: dec("40")},
		{EntryID: jan, TransactionDate: NewDate(2024, time.January, 1), Outstanding: dec("50")},
		{EntryID: feb, TransactionDate: NewDate(2024, time.February, 1), Outstanding: dec("30")},
	}

	t.Run("oldest debits are settled first", func(t *testing.T) {
		plan, err := AllocateFIFO(dec("60"), targets)
		require.NoError(t, err)
		require.Len(t, plan.Allocations, 2)
		assert.Equal(t, jan, plan.Allocations[0].EntryID)
		assert.True(t, plan.Allocations[0].Amount.Equal(dec("50")))
		assert.Equal(t, feb, plan.Allocations[1].EntryID)
		assert.True(t, plan.Allocations[1].Amount.Equal(dec("10")))
		assert.True(t, plan.Remaining.IsZero())
		assert.Equal(t, []uuid.UUID{jan}, plan.FullySettled)
		assert.Equal(t, []uuid.UUID{feb}, plan.PartiallySettled)
	})

	t.Run("settled targets are skipped", func(t *testing.T) {
		partly := []AllocationTarget{
			{EntryID: jan, TransactionDate: NewDate(2024, time.January, 1), Outstanding: dec("0")},
			{EntryID: feb, TransactionDate: NewDate(2024, time.February, 1), Outstanding: dec("20")},
		}
		plan, err := AllocateFIFO(dec("100"), partly)
		require.NoError(t, err)
		require.Len(t, plan.Allocations, 1)
		assert.Equal(t, feb, plan.Allocations[0].EntryID)
		assert.True(t, plan.TotalAllocated.Equal(dec("20")))
		assert.True(t, plan.Remaining.Equal(dec("80")))
	})

	t.Run("creation time breaks date ties", func(t *testing.T) {
		first, second := uuid.New(), uuid.New()
		day := NewDate(2024, time.May, 1)
		plan, err := AllocateFIFO(dec("5"), []AllocationTarget{
			{EntryID: second, TransactionDate: day, CreatedAt: day.Add(time.Hour), Outstanding: dec("5")},
			{EntryID: first, TransactionDate: day, CreatedAt: day, Outstanding: dec("5")},
		})
		require.NoError(t, err)
		assert.Equal(t, first, plan.Allocations[0].EntryID)
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		_, err := AllocateFIFO(dec("0"), targets)
		assert.Error(t, err)
	})

	t.Run("requests carry notes", func(t *testing.T) {
		plan, err := AllocateFIFO(dec("60"), targets)
		require.NoError(t, err)
		reqs := plan.Requests("auto")
		require.Len(t, reqs, 2)
		assert.Equal(t, "auto", reqs[1].Notes)
		assert.True(t, TotalRequested(reqs).Equal(dec("60")))
	})
}

package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AllocationTarget is a debit entry that can receive part of a payment
type AllocationTarget struct {
	EntryID         uuid.UUID
	TransactionDate time.Time
	CreatedAt       time.Time
	Outstanding     decimal.Decimal
}

// Allocation is the amount planned for one target
type Allocation struct {
	EntryID uuid.UUID
	Amount  decimal.Decimal
}

// AllocationPlan is the result of distributing an amount over targets
type AllocationPlan struct {
	Allocations      []Allocation
	TotalAllocated   decimal.Decimal
	Remaining        decimal.Decimal
	FullySettled     []uuid.UUID
	PartiallySettled []uuid.UUID
}

// Requests converts the plan to application requests carrying notes
func (p *AllocationPlan) Requests(notes string) []ApplicationRequest {
	reqs := make([]ApplicationRequest, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		reqs = append(reqs, ApplicationRequest{LedgerEntryID: a.EntryID, Amount: a.Amount, Notes: notes})
	}
	return reqs
}

// AllocateFIFO distributes amount over targets oldest transaction date first
// (creation time breaks ties). Each target receives at most its outstanding
// amount and targets with nothing outstanding are skipped.
func AllocateFIFO(amount decimal.Decimal, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError(CodeInvalidAmount, "Allocation amount must be positive")
	}

	sorted := make([]AllocationTarget, len(targets))
	copy(sorted, targets)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].TransactionDate.Equal(sorted[j].TransactionDate) {
			return sorted[i].TransactionDate.Before(sorted[j].TransactionDate)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	plan := &AllocationPlan{
		Allocations:      make([]Allocation, 0),
		TotalAllocated:   decimal.Zero,
		Remaining:        amount,
		FullySettled:     make([]uuid.UUID, 0),
		PartiallySettled: make([]uuid.UUID, 0),
	}
	for _, target := range sorted {
		if plan.Remaining.IsZero() {
			break
		}
		if target.Outstanding.LessThanOrEqual(decimal.Zero) {
			continue
		}

		alloc := decimal.Min(plan.Remaining, target.Outstanding)
		plan.Allocations = append(plan.Allocations, Allocation{EntryID: target.EntryID, Amount: alloc})
		plan.TotalAllocated = plan.TotalAllocated.Add(alloc)
		plan.Remaining = plan.Remaining.Sub(alloc)

		if alloc.GreaterThanOrEqual(target.Outstanding) {
			plan.FullySettled = append(plan.FullySettled, target.EntryID)
		} else {
			plan.PartiallySettled = append(plan.PartiallySettled, target.EntryID)
		}
	}
	return plan, nil
}

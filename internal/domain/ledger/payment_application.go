package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentApplication allocates part of a payment to one DEBIT entry.
// Applications are never deleted; a reversal only flags them.
type PaymentApplication struct {
	shared.BaseEntity
	PaymentID       uuid.UUID
	LedgerEntryID   uuid.UUID
	AppliedAmount   decimal.Decimal
	ApplicationDate time.Time
	Notes           string
	AppliedBy       uuid.UUID
	Reversed        bool
	ReversedAt      *time.Time
	ReversedBy      *uuid.UUID
	ReversalReason  string
}

// NewPaymentApplication records an allocation made today
func NewPaymentApplication(paymentID, entryID uuid.UUID, amount decimal.Decimal, notes string, by uuid.UUID, now time.Time) *PaymentApplication {
	return &PaymentApplication{
		BaseEntity:      shared.NewBaseEntity(),
		PaymentID:       paymentID,
		LedgerEntryID:   entryID,
		AppliedAmount:   amount,
		ApplicationDate: DateOf(now),
		Notes:           notes,
		AppliedBy:       by,
	}
}

// IsEffective reports whether the allocation still counts towards settlement
func (a *PaymentApplication) IsEffective() bool {
	return !a.Reversed
}

// Reverse flags the application as reversed
func (a *PaymentApplication) Reverse(by uuid.UUID, reason string, now time.Time) error {
	if a.Reversed {
		return NewRuleViolation(RulePayment, CodeApplicationReversed, "Payment application is already reversed")
	}
	a.Reversed = true
	a.ReversedAt = &now
	a.ReversedBy = &by
	a.ReversalReason = reason
	a.Touch()
	return nil
}

// ApplicationRequest asks for amount of a payment to be allocated to one entry
type ApplicationRequest struct {
	LedgerEntryID uuid.UUID
	Amount        decimal.Decimal
	Notes         string
}

// TotalRequested sums the amounts of a batch of requests
func TotalRequested(reqs []ApplicationRequest) decimal.Decimal {
	total := decimal.Zero
	for _, r := range reqs {
		total = total.Add(r.Amount)
	}
	return total
}

package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Payment is money received from a customer. AppliedAmount always equals the
// sum of its non-reversed applications and RemainingAmount is derived from it.
type Payment struct {
	shared.BaseAggregateRoot
	CustomerID       uuid.UUID
	PaymentDate      time.Time
	Amount           decimal.Decimal
	AppliedAmount    decimal.Decimal
	RemainingAmount  decimal.Decimal
	Description      string
	Notes            string
	ReferenceNumber  string
	PaymentMethod    string
	BankDetails      string
	CheckNumber      string
	Status           PaymentStatus
	ProcessedDate    *time.Time
	DueDate          *time.Time
	OverdueDays      int
	AdvancePayment   bool
	Active           bool
	IdempotencyKey   string
	StatusUpdatedAt  *time.Time
	StatusUpdatedBy  *uuid.UUID
	StatusNotes      string
	DisputeDate      *time.Time
	DisputeReason    string
	DisputedBy       *uuid.UUID
	ReminderCount    int
	LastReminderSent *time.Time
	CreatedBy        uuid.UUID
}

// NewPayment creates an unapplied payment in the given initial status
// (PENDING when empty)
func NewPayment(customerID uuid.UUID, date time.Time, amount decimal.Decimal, status PaymentStatus, createdBy uuid.UUID) (*Payment, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError(CodeInvalidCustomer, "Customer ID cannot be empty")
	}
	if status == "" {
		status = PaymentPending
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError(CodeInvalidPaymentStatus, "Unknown payment status: "+string(status))
	}
	return &Payment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CustomerID:        customerID,
		PaymentDate:       DateOf(date),
		Amount:            amount,
		AppliedAmount:     decimal.Zero,
		RemainingAmount:   amount,
		Status:            status,
		Active:            true,
		CreatedBy:         createdBy,
	}, nil
}

// UnappliedAmount is the portion not yet allocated to any debit
func (p *Payment) UnappliedAmount() decimal.Decimal {
	return p.Amount.Sub(p.AppliedAmount)
}

// IsFullyApplied reports whether nothing is left to allocate
func (p *Payment) IsFullyApplied() bool {
	return p.AppliedAmount.GreaterThanOrEqual(p.Amount)
}

// CanBeApplied reports whether amount fits in the unapplied portion
func (p *Payment) CanBeApplied(amount decimal.Decimal) bool {
	return p.UnappliedAmount().GreaterThanOrEqual(amount)
}

// AcceptsApplications reports whether allocations may be made from the payment
func (p *Payment) AcceptsApplications() bool {
	return p.Active && p.Status.AcceptsApplications()
}

// ApplyAmount allocates amount and moves the payment to PROCESSED or PARTIAL
func (p *Payment) ApplyAmount(amount decimal.Decimal) error {
	if !p.CanBeApplied(amount) {
		return NewRuleViolation(RulePayment, CodeInsufficientPayment,
			fmt.Sprintf("Cannot apply %s, only %s remains unapplied", amount.StringFixed(2), p.UnappliedAmount().StringFixed(2))).
			With("unapplied_amount", p.UnappliedAmount()).
			With("requested_amount", amount)
	}
	p.setApplied(p.AppliedAmount.Add(amount))
	if p.IsFullyApplied() {
		p.Status = PaymentProcessed
	} else {
		p.Status = PaymentPartial
	}
	p.Touch()
	return nil
}

// ReverseApplication gives back amount and moves the payment to PENDING or PARTIAL
func (p *Payment) ReverseApplication(amount decimal.Decimal) error {
	if p.AppliedAmount.LessThan(amount) {
		return shared.NewDomainError("INVALID_REVERSAL", "Cannot reverse more than the applied amount")
	}
	p.setApplied(p.AppliedAmount.Sub(amount))
	if p.AppliedAmount.IsZero() {
		p.Status = PaymentPending
	} else {
		p.Status = PaymentPartial
	}
	p.Touch()
	return nil
}

// SyncApplied overwrites the applied total with a value recomputed from
// application rows, leaving the status untouched
func (p *Payment) SyncApplied(applied decimal.Decimal) {
	p.setApplied(applied)
}

func (p *Payment) setApplied(applied decimal.Decimal) {
	p.AppliedAmount = applied
	p.RemainingAmount = p.Amount.Sub(applied)
}

// UpdateStatus moves the payment to status after checking the transition table
func (p *Payment) UpdateStatus(status PaymentStatus, by uuid.UUID, notes string, now time.Time) error {
	if err := ValidateTransition(p.Status, status); err != nil {
		return err
	}
	p.setStatus(status, by, notes, now)
	return nil
}

func (p *Payment) setStatus(status PaymentStatus, by uuid.UUID, notes string, now time.Time) {
	p.Status = status
	p.StatusUpdatedAt = &now
	p.StatusUpdatedBy = &by
	p.StatusNotes = notes
	p.Touch()
}

// MarkPaid moves the payment to PAID and stamps the processed date
func (p *Payment) MarkPaid(by uuid.UUID, notes string, now time.Time) error {
	if err := p.UpdateStatus(PaymentPaid, by, notes, now); err != nil {
		return err
	}
	d := DateOf(now)
	p.ProcessedDate = &d
	return nil
}

// MarkOverdue moves the payment to OVERDUE with the current day count
func (p *Payment) MarkOverdue(by uuid.UUID, now time.Time) error {
	days := p.CalculateOverdueDays(now)
	if err := p.UpdateStatus(PaymentOverdue, by, fmt.Sprintf("Payment is %d days overdue", days), now); err != nil {
		return err
	}
	p.OverdueDays = days
	return nil
}

// Dispute moves the payment to DISPUTED and records who raised it and why
func (p *Payment) Dispute(by uuid.UUID, reason, notes string, now time.Time) error {
	if !p.Status.CanBeDisputed() {
		return NewRuleViolation(RuleStatus, CodeCannotDispute, "Payment cannot be disputed from status "+p.Status.String())
	}
	reason = strings.TrimSpace(reason)
	if notes = strings.TrimSpace(notes); notes != "" {
		reason += " | Additional notes: " + notes
	}
	p.setStatus(PaymentDisputed, by, "Payment disputed", now)
	d := DateOf(now)
	p.DisputeDate = &d
	p.DisputeReason = reason
	p.DisputedBy = &by
	return nil
}

// ResolveDispute returns a disputed payment to PENDING
func (p *Payment) ResolveDispute(by uuid.UUID, resolution string, now time.Time) error {
	if p.Status != PaymentDisputed {
		return NewRuleViolation(RuleStatus, CodeInvalidStatusTransition, "Payment is not currently disputed")
	}
	p.setStatus(PaymentPending, by, "Dispute resolved: "+resolution, now)
	p.DisputeDate = nil
	p.DisputeReason = ""
	p.DisputedBy = nil
	return nil
}

// SetDueDate replaces the due date
func (p *Payment) SetDueDate(due time.Time) {
	d := DateOf(due)
	p.DueDate = &d
	p.Touch()
}

// IsOverdue reports whether a waiting payment is past its due date
func (p *Payment) IsOverdue(now time.Time) bool {
	if p.DueDate == nil {
		return false
	}
	return p.DueDate.Before(DateOf(now)) && (p.Status == PaymentPending || p.Status == PaymentPartial)
}

// CalculateOverdueDays returns whole days past the due date, zero if not past due
func (p *Payment) CalculateOverdueDays(now time.Time) int {
	today := DateOf(now)
	if p.DueDate == nil || !p.DueDate.Before(today) {
		return 0
	}
	return DaysBetween(*p.DueDate, today)
}

// RecordReminder counts a reminder sent today
func (p *Payment) RecordReminder(now time.Time) {
	p.ReminderCount++
	d := DateOf(now)
	p.LastReminderSent = &d
	p.Touch()
}

// Deactivate soft-deletes the payment
func (p *Payment) Deactivate() {
	p.Active = false
	p.Touch()
}

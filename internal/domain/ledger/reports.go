package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceSummary is a customer's balance position
type BalanceSummary struct {
	CustomerID        uuid.UUID       `json:"customer_id"`
	CustomerName      string          `json:"customer_name"`
	TotalCredit       decimal.Decimal `json:"total_credit"`
	TotalDebit        decimal.Decimal `json:"total_debit"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	TotalTransactions int64           `json:"total_transactions"`
	CreditLimit       decimal.Decimal `json:"credit_limit"`
	IsOverCreditLimit bool            `json:"is_over_credit_limit"`
}

// NewBalanceSummary builds a summary from fresh totals
func NewBalanceSummary(c *Customer, totals EntryTotals) BalanceSummary {
	balance := totals.Balance()
	return BalanceSummary{
		CustomerID:        c.ID,
		CustomerName:      c.Name,
		TotalCredit:       totals.Credit,
		TotalDebit:        totals.Debit,
		CurrentBalance:    balance,
		TotalTransactions: totals.Count,
		CreditLimit:       c.CreditLimit,
		IsOverCreditLimit: c.HasCreditLimit() && balance.GreaterThan(c.CreditLimit),
	}
}

// OutstandingEntry is one debit with an unsettled remainder
type OutstandingEntry struct {
	LedgerEntryID     uuid.UUID       `json:"ledger_entry_id"`
	TransactionDate   time.Time       `json:"transaction_date"`
	Description       string          `json:"description"`
	OriginalAmount    decimal.Decimal `json:"original_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	DaysOutstanding   int             `json:"days_outstanding"`
}

// UnappliedPayment is a payment with money left to allocate
type UnappliedPayment struct {
	PaymentID       uuid.UUID       `json:"payment_id"`
	PaymentDate     time.Time       `json:"payment_date"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	AppliedAmount   decimal.Decimal `json:"applied_amount"`
	UnappliedAmount decimal.Decimal `json:"unapplied_amount"`
	PaymentMethod   string          `json:"payment_method"`
}

// OutstandingBalanceReport aggregates what a customer owes against what
// they have paid but not yet allocated
type OutstandingBalanceReport struct {
	CustomerID             uuid.UUID          `json:"customer_id"`
	CustomerName           string             `json:"customer_name"`
	TotalOutstanding       decimal.Decimal    `json:"total_outstanding"`
	CurrentBalance         decimal.Decimal    `json:"current_balance"`
	TotalUnappliedPayments decimal.Decimal    `json:"total_unapplied_payments"`
	NetOutstanding         decimal.Decimal    `json:"net_outstanding"`
	OutstandingEntryCount  int                `json:"outstanding_entry_count"`
	UnappliedPaymentCount  int                `json:"unapplied_payment_count"`
	OldestOutstandingDate  *time.Time         `json:"oldest_outstanding_date,omitempty"`
	AverageDaysOutstanding int                `json:"average_days_outstanding"`
	OutstandingEntries     []OutstandingEntry `json:"outstanding_entries"`
	UnappliedPayments      []UnappliedPayment `json:"unapplied_payments"`
}

// BuildOutstandingReport computes the report from the customer's active
// debits, their settled sums and the customer's unapplied payments
func BuildOutstandingReport(c *Customer, debits []LedgerEntry, settled map[uuid.UUID]decimal.Decimal, payments []Payment, today time.Time) *OutstandingBalanceReport {
	r := &OutstandingBalanceReport{
		CustomerID:             c.ID,
		CustomerName:           c.Name,
		TotalOutstanding:       decimal.Zero,
		CurrentBalance:         c.CurrentBalance,
		TotalUnappliedPayments: decimal.Zero,
		OutstandingEntries:     make([]OutstandingEntry, 0),
		UnappliedPayments:      make([]UnappliedPayment, 0),
	}

	totalDays := 0
	for i := range debits {
		e := &debits[i]
		if !e.Active || !e.IsDebit() {
			continue
		}
		outstanding := OutstandingAmount(e, settled[e.ID])
		if !outstanding.IsPositive() {
			continue
		}
		days := DaysBetween(e.TransactionDate, today)
		r.OutstandingEntries = append(r.OutstandingEntries, OutstandingEntry{
			LedgerEntryID:     e.ID,
			TransactionDate:   e.TransactionDate,
			Description:       e.Description,
			OriginalAmount:    e.Amount,
			OutstandingAmount: outstanding,
			DaysOutstanding:   days,
		})
		r.TotalOutstanding = r.TotalOutstanding.Add(outstanding)
		totalDays += days
		if r.OldestOutstandingDate == nil || e.TransactionDate.Before(*r.OldestOutstandingDate) {
			d := e.TransactionDate
			r.OldestOutstandingDate = &d
		}
	}

	for i := range payments {
		p := &payments[i]
		unapplied := p.UnappliedAmount()
		if !unapplied.IsPositive() {
			continue
		}
		r.UnappliedPayments = append(r.UnappliedPayments, UnappliedPayment{
			PaymentID:       p.ID,
			PaymentDate:     p.PaymentDate,
			Description:     p.Description,
			Amount:          p.Amount,
			AppliedAmount:   p.AppliedAmount,
			UnappliedAmount: unapplied,
			PaymentMethod:   p.PaymentMethod,
		})
		r.TotalUnappliedPayments = r.TotalUnappliedPayments.Add(unapplied)
	}

	r.NetOutstanding = r.TotalOutstanding.Sub(r.TotalUnappliedPayments)
	r.OutstandingEntryCount = len(r.OutstandingEntries)
	r.UnappliedPaymentCount = len(r.UnappliedPayments)
	if r.OutstandingEntryCount > 0 {
		r.AverageDaysOutstanding = totalDays / r.OutstandingEntryCount
	}
	return r
}

// PaymentStatusSummary counts payments per status
type PaymentStatusSummary struct {
	Counts                map[PaymentStatus]int64 `json:"counts"`
	Total                 int64                   `json:"total"`
	ProblematicCount      int64                   `json:"problematic_count"`
	ProblematicPercentage float64                 `json:"problematic_percentage"`
}

// NewPaymentStatusSummary fills in every status and derives the problematic share
// from OVERDUE, DISPUTED and FAILED
func NewPaymentStatusSummary(counts map[PaymentStatus]int64) PaymentStatusSummary {
	s := PaymentStatusSummary{Counts: make(map[PaymentStatus]int64, len(paymentStatusInfo))}
	for _, status := range AllPaymentStatuses() {
		n := counts[status]
		s.Counts[status] = n
		s.Total += n
	}
	s.ProblematicCount = s.Counts[PaymentOverdue] + s.Counts[PaymentDisputed] + s.Counts[PaymentFailed]
	if s.Total > 0 {
		s.ProblematicPercentage = float64(s.ProblematicCount) / float64(s.Total) * 100
	}
	return s
}

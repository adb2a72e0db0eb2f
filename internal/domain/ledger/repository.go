package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LedgerEntrySearch defines filtering options for entry queries
type LedgerEntrySearch struct {
	shared.Filter
	CustomerID *uuid.UUID       // Filter by customer
	Type       *TransactionType // Filter by transaction type
	StartDate  *time.Time       // Transaction date range start (inclusive)
	EndDate    *time.Time       // Transaction date range end (inclusive)
	MinAmount  *decimal.Decimal // Filter by minimum amount
	MaxAmount  *decimal.Decimal // Filter by maximum amount
	Text       string           // Matches description, reference or invoice number
	Reconciled *bool            // Filter by reconciliation state
}

// EntryTotals aggregates a customer's active entries
type EntryTotals struct {
	Credit decimal.Decimal
	Debit  decimal.Decimal
	Count  int64
}

// Balance is credits minus debits
func (t EntryTotals) Balance() decimal.Decimal {
	return t.Credit.Sub(t.Debit)
}

// CustomerRepository defines persistence for customers
type CustomerRepository interface {
	// FindByID finds a customer by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)

	// Save creates or updates a customer without a version check
	Save(ctx context.Context, customer *Customer) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, customer *Customer) error
}

// LedgerEntryRepository defines persistence for ledger entries.
// Only active entries are returned unless a method says otherwise.
type LedgerEntryRepository interface {
	// FindByID finds an entry by ID, active or not
	FindByID(ctx context.Context, id uuid.UUID) (*LedgerEntry, error)

	// FindByIDs finds entries by ID, active or not
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]LedgerEntry, error)

	// FindByCustomer pages a customer's active entries
	FindByCustomer(ctx context.Context, customerID uuid.UUID, filter shared.Filter) ([]LedgerEntry, int64, error)

	// Search pages active entries matching every supplied criterion
	Search(ctx context.Context, search LedgerEntrySearch) ([]LedgerEntry, int64, error)

	// FindUnreconciled lists a customer's active unreconciled entries, oldest first
	FindUnreconciled(ctx context.Context, customerID uuid.UUID) ([]LedgerEntry, error)

	// FindOpenDebits lists active unreconciled DEBIT entries by transaction date ascending
	FindOpenDebits(ctx context.Context, customerID uuid.UUID) ([]LedgerEntry, error)

	// FindActiveDebits lists every active DEBIT entry by transaction date ascending
	FindActiveDebits(ctx context.Context, customerID uuid.UUID) ([]LedgerEntry, error)

	// Totals sums the customer's active credits and debits
	Totals(ctx context.Context, customerID uuid.UUID) (EntryTotals, error)

	// DailyTotal sums the amounts of the customer's active entries on date
	DailyTotal(ctx context.Context, customerID uuid.UUID, date time.Time) (decimal.Decimal, error)

	// Save creates or updates an entry
	Save(ctx context.Context, entry *LedgerEntry) error
}

// PaymentFilter defines filtering options for payment queries
type PaymentFilter struct {
	shared.Filter
	CustomerID *uuid.UUID
	Status     *PaymentStatus
}

// PaymentRepository defines persistence for payments
type PaymentRepository interface {
	// FindByID finds a payment by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindAll pages active payments matching the filter
	FindAll(ctx context.Context, filter PaymentFilter) ([]Payment, int64, error)

	// FindUnapplied lists PENDING/PARTIAL active payments with an unapplied
	// remainder, oldest payment date first
	FindUnapplied(ctx context.Context, customerID uuid.UUID) ([]Payment, error)

	// FindOverdueCandidates lists active PENDING/PARTIAL payments due before date
	FindOverdueCandidates(ctx context.Context, date time.Time) ([]Payment, error)

	// CountByStatus counts active payments per status
	CountByStatus(ctx context.Context) (map[PaymentStatus]int64, error)

	// ExistsByIdempotencyKey checks whether a payment was recorded under key
	ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error)

	// Save creates or updates a payment without a version check
	Save(ctx context.Context, payment *Payment) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, payment *Payment) error
}

// PaymentApplicationRepository defines persistence for payment applications.
// Applications are never deleted.
type PaymentApplicationRepository interface {
	// FindByID finds an application by ID
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentApplication, error)

	// FindByPayment lists a payment's applications, reversed ones included
	FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]PaymentApplication, error)

	// SumEffectiveByPayment sums a payment's non-reversed applications
	SumEffectiveByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error)

	// SumEffectiveByEntries sums non-reversed applications per entry
	SumEffectiveByEntries(ctx context.Context, entryIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)

	// Save creates or updates an application
	Save(ctx context.Context, application *PaymentApplication) error
}

// Repositories bundles the repositories bound to one unit of work
type Repositories struct {
	Customers    CustomerRepository
	Entries      LedgerEntryRepository
	Payments     PaymentRepository
	Applications PaymentApplicationRepository
}

// UnitOfWork runs fn atomically. Every write made through the supplied
// repositories commits together or not at all.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TransactionCredit         TransactionType = "CREDIT"
	TransactionDebit          TransactionType = "DEBIT"
	TransactionOpeningBalance TransactionType = "OPENING_BALANCE"
	TransactionAdjustment     TransactionType = "ADJUSTMENT"
	TransactionTransfer       TransactionType = "TRANSFER"
)

var transactionTypeInfo = map[TransactionType][2]string{
	TransactionCredit:         {"Credit", "Money received/incoming"},
	TransactionDebit:          {"Debit", "Money paid/outgoing"},
	TransactionOpeningBalance: {"Opening Balance", "Initial balance setup"},
	TransactionAdjustment:     {"Adjustment", "Manual adjustment entry"},
	TransactionTransfer:       {"Transfer", "Transfer between accounts"},
}

// IsValid reports whether t is a known transaction type
func (t TransactionType) IsValid() bool {
	_, ok := transactionTypeInfo[t]
	return ok
}

// DisplayName returns the human readable name
func (t TransactionType) DisplayName() string {
	return transactionTypeInfo[t][0]
}

// Description returns a short explanation of the type
func (t TransactionType) Description() string {
	return transactionTypeInfo[t][1]
}

// IsCredit reports whether entries of this type increase the balance
func (t TransactionType) IsCredit() bool {
	return t == TransactionCredit || t == TransactionOpeningBalance
}

// IsDebit reports whether entries of this type decrease the balance
func (t TransactionType) IsDebit() bool {
	return t == TransactionDebit
}

// Sign is +1 for credit types, -1 for DEBIT and 0 for balance-neutral types
func (t TransactionType) Sign() int {
	switch {
	case t.IsCredit():
		return 1
	case t.IsDebit():
		return -1
	default:
		return 0
	}
}

// LedgerEntry is one dated, typed movement against a customer account.
// Entries are soft-deleted via Active and never removed.
type LedgerEntry struct {
	shared.BaseEntity
	CustomerID              uuid.UUID
	TransactionDate         time.Time
	Type                    TransactionType
	Amount                  decimal.Decimal
	Description             string
	Notes                   string
	ReferenceNumber         string
	InvoiceNumber           string
	InvoiceDate             *time.Time
	PaymentMethod           string
	BalanceAfterTransaction decimal.Decimal
	Reconciled              bool
	ReconciledDate          *time.Time
	Active                  bool
	CreatedBy               uuid.UUID
	UpdatedBy               *uuid.UUID
}

// NewLedgerEntry creates an active, unreconciled entry
func NewLedgerEntry(customerID uuid.UUID, date time.Time, txType TransactionType, amount decimal.Decimal, description string, createdBy uuid.UUID) (*LedgerEntry, error) {
	if customerID == uuid.Nil {
		return nil, shared.NewDomainError(CodeInvalidCustomer, "Customer ID cannot be empty")
	}
	if !txType.IsValid() {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_TYPE", "Unknown transaction type: "+string(txType))
	}
	return &LedgerEntry{
		BaseEntity:      shared.NewBaseEntity(),
		CustomerID:      customerID,
		TransactionDate: DateOf(date),
		Type:            txType,
		Amount:          amount,
		Description:     strings.TrimSpace(description),
		Active:          true,
		CreatedBy:       createdBy,
	}, nil
}

// SignedAmount is the entry's contribution to the customer balance
func (e *LedgerEntry) SignedAmount() decimal.Decimal {
	return e.Amount.Mul(decimal.NewFromInt(int64(e.Type.Sign())))
}

// IsCredit reports whether the entry increases the balance
func (e *LedgerEntry) IsCredit() bool {
	return e.Type.IsCredit()
}

// IsDebit reports whether the entry decreases the balance
func (e *LedgerEntry) IsDebit() bool {
	return e.Type.IsDebit()
}

// IsSettleable reports whether payments may be applied to the entry
func (e *LedgerEntry) IsSettleable() bool {
	return e.Active && e.IsDebit()
}

// EntryChanges is a partial update. Nil fields are left untouched.
type EntryChanges struct {
	TransactionDate *time.Time
	Type            *TransactionType
	Amount          *decimal.Decimal
	Description     *string
	Notes           *string
	ReferenceNumber *string
	InvoiceNumber   *string
	InvoiceDate     *time.Time
	PaymentMethod   *string
	Reconciled      *bool
	ReconciledDate  *time.Time
	Active          *bool
}

// TouchesFinancials reports whether the change set names amount or type
func (c EntryChanges) TouchesFinancials() bool {
	return c.Amount != nil || c.Type != nil
}

// Apply writes the change set onto the entry and reports whether the
// entry's balance contribution (amount, type or active flag) changed
func (e *LedgerEntry) Apply(c EntryChanges, today time.Time, by uuid.UUID) (balanceChanged bool) {
	if c.TransactionDate != nil {
		e.TransactionDate = DateOf(*c.TransactionDate)
	}
	if c.Type != nil && *c.Type != e.Type {
		e.Type = *c.Type
		balanceChanged = true
	}
	if c.Amount != nil && !c.Amount.Equal(e.Amount) {
		e.Amount = *c.Amount
		balanceChanged = true
	}
	if c.Description != nil {
		e.Description = strings.TrimSpace(*c.Description)
	}
	if c.Notes != nil {
		e.Notes = *c.Notes
	}
	if c.ReferenceNumber != nil {
		e.ReferenceNumber = *c.ReferenceNumber
	}
	if c.InvoiceNumber != nil {
		e.InvoiceNumber = *c.InvoiceNumber
	}
	if c.InvoiceDate != nil {
		d := DateOf(*c.InvoiceDate)
		e.InvoiceDate = &d
	}
	if c.PaymentMethod != nil {
		e.PaymentMethod = *c.PaymentMethod
	}
	if c.Reconciled != nil {
		e.Reconciled = *c.Reconciled
		if e.Reconciled {
			d := DateOf(today)
			if c.ReconciledDate != nil {
				d = DateOf(*c.ReconciledDate)
			}
			e.ReconciledDate = &d
		} else {
			e.ReconciledDate = nil
		}
	}
	if c.Active != nil && *c.Active != e.Active {
		e.Active = *c.Active
		balanceChanged = true
	}
	e.UpdatedBy = &by
	e.Touch()
	return balanceChanged
}

// SoftDelete deactivates the entry
func (e *LedgerEntry) SoftDelete(by uuid.UUID) {
	e.Active = false
	e.UpdatedBy = &by
	e.Touch()
}

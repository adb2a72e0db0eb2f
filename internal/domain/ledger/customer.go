package ledger

import (
	"strings"

	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Customer is the account holder every ledger entry and payment belongs to.
// CurrentBalance is a cache of the signed sum of active entries and is only
// written through RefreshBalance inside the same unit of work as the change
// that moved it.
type Customer struct {
	shared.BaseAggregateRoot
	Name           string
	Email          string
	Phone          string
	BusinessName   string
	CreditLimit    decimal.Decimal
	CurrentBalance decimal.Decimal
	Active         bool
}

// NewCustomer creates an active customer with a zero balance
func NewCustomer(name string, creditLimit decimal.Decimal) (*Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Customer name cannot be empty")
	}
	if creditLimit.IsNegative() {
		return nil, shared.NewDomainError("INVALID_CREDIT_LIMIT", "Credit limit cannot be negative")
	}
	return &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		CreditLimit:       creditLimit,
		CurrentBalance:    decimal.Zero,
		Active:            true,
	}, nil
}

// HasCreditLimit reports whether a credit cap applies (zero means unlimited)
func (c *Customer) HasCreditLimit() bool {
	return c.CreditLimit.GreaterThan(decimal.Zero)
}

// IsOverCreditLimit reports whether the cached balance already exceeds the cap
func (c *Customer) IsOverCreditLimit() bool {
	return c.HasCreditLimit() && c.CurrentBalance.GreaterThan(c.CreditLimit)
}

// CanAcceptCredit reports whether a credit of amount keeps the balance within the cap
func (c *Customer) CanAcceptCredit(amount decimal.Decimal) bool {
	if !c.HasCreditLimit() {
		return true
	}
	return c.CurrentBalance.Add(amount).LessThanOrEqual(c.CreditLimit)
}

// HasSufficientBalance reports whether a debit of amount leaves a non-negative balance
func (c *Customer) HasSufficientBalance(amount decimal.Decimal) bool {
	return c.CurrentBalance.Sub(amount).GreaterThanOrEqual(decimal.Zero)
}

// RefreshBalance stores a freshly recomputed balance
func (c *Customer) RefreshBalance(balance decimal.Decimal) {
	c.CurrentBalance = balance
	c.Touch()
}

// Deactivate blocks new transactions for the customer
func (c *Customer) Deactivate() {
	c.Active = false
	c.Touch()
}

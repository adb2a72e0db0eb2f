package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RuleConfig holds the process-wide business-rule thresholds
type RuleConfig struct {
	AllowNegativeBalance        bool
	MaxTransactionAmount        decimal.Decimal
	MinTransactionAmount        decimal.Decimal
	MaxDailyTransactionLimit    decimal.Decimal
	RequireFutureDateValidation bool
}

// DefaultRuleConfig returns the stock thresholds
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		AllowNegativeBalance:        false,
		MaxTransactionAmount:        decimal.NewFromInt(1000000),
		MinTransactionAmount:        decimal.New(1, -2),
		MaxDailyTransactionLimit:    decimal.NewFromInt(100000),
		RequireFutureDateValidation: true,
	}
}

const (
	maxEntryAgeYears    = 1
	deletionWindowDays  = 30
	maxFractionalDigits = 2
)

// RuleValidator checks ledger writes against the business rules. It never
// mutates state; callers supply the balance and daily totals they read
// inside their unit of work.
type RuleValidator struct {
	cfg RuleConfig
	now func() time.Time
}

// ValidatorOption configures a RuleValidator
type ValidatorOption func(*RuleValidator)

// WithClock overrides the time source used for date rules
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *RuleValidator) {
		v.now = now
	}
}

// NewRuleValidator creates a validator over cfg
func NewRuleValidator(cfg RuleConfig, opts ...ValidatorOption) *RuleValidator {
	v := &RuleValidator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Config returns a copy of the active thresholds
func (v *RuleValidator) Config() RuleConfig {
	return v.cfg
}

// Today returns the current calendar date
func (v *RuleValidator) Today() time.Time {
	return DateOf(v.now())
}

// Now returns the current instant from the validator's clock
func (v *RuleValidator) Now() time.Time {
	return v.now()
}

// ValidateAmount checks sign, bounds and precision, in that order
func (v *RuleValidator) ValidateAmount(amount decimal.Decimal) error {
	switch {
	case amount.LessThanOrEqual(decimal.Zero):
		return NewRuleViolation(RuleAmount, CodeNegativeOrZeroAmount, "Transaction amount must be greater than zero").
			With("amount", amount)
	case amount.LessThan(v.cfg.MinTransactionAmount):
		return NewRuleViolation(RuleAmount, CodeBelowMinAmount,
			fmt.Sprintf("Transaction amount must be at least %s", v.cfg.MinTransactionAmount.String())).
			With("amount", amount)
	case amount.GreaterThan(v.cfg.MaxTransactionAmount):
		return NewRuleViolation(RuleAmount, CodeAboveMaxAmount,
			fmt.Sprintf("Transaction amount cannot exceed %s", v.cfg.MaxTransactionAmount.String())).
			With("amount", amount)
	case !amount.Equal(amount.Round(maxFractionalDigits)):
		return NewRuleViolation(RuleAmount, CodeInvalidDecimalPlaces, "Transaction amount cannot have more than 2 decimal places").
			With("amount", amount)
	}
	return nil
}

// ValidateDate rejects missing, future (when configured) and stale dates
func (v *RuleValidator) ValidateDate(date time.Time) error {
	if date.IsZero() {
		return NewRuleViolation(RuleDate, CodeInvalidDate, "Transaction date is required")
	}
	date = DateOf(date)
	today := v.Today()
	if v.cfg.RequireFutureDateValidation && date.After(today) {
		return NewRuleViolation(RuleDate, CodeFutureDateNotAllowed, "Transaction date cannot be in the future")
	}
	if date.Before(today.AddDate(-maxEntryAgeYears, 0, 0)) {
		return NewRuleViolation(RuleDate, CodeDateTooOld, "Transaction date cannot be more than 1 year in the past")
	}
	return nil
}

// ValidateCustomer requires an existing, active customer
func (v *RuleValidator) ValidateCustomer(c *Customer) error {
	if c == nil {
		return NewRuleViolation(RuleCustomer, CodeInvalidCustomer, "Customer is required")
	}
	if !c.Active {
		return NewRuleViolation(RuleCustomer, CodeInactiveCustomer, "Cannot create transactions for inactive customers")
	}
	return nil
}

// ValidateSufficientBalance checks that debiting amount from balance stays non-negative
func (v *RuleValidator) ValidateSufficientBalance(balance, amount decimal.Decimal) error {
	if v.cfg.AllowNegativeBalance {
		return nil
	}
	if balance.Sub(amount).IsNegative() {
		return NewInsufficientBalance(balance, amount)
	}
	return nil
}

// HasSufficientBalance is the boolean form of ValidateSufficientBalance
func (v *RuleValidator) HasSufficientBalance(balance, amount decimal.Decimal) bool {
	return v.ValidateSufficientBalance(balance, amount) == nil
}

// ValidateCreditLimit checks that crediting amount keeps balance within the customer's cap
func (v *RuleValidator) ValidateCreditLimit(c *Customer, balance, amount decimal.Decimal) error {
	if !c.HasCreditLimit() {
		return nil
	}
	newBalance := balance.Add(amount)
	if newBalance.GreaterThan(c.CreditLimit) {
		return NewRuleViolation(RuleCreditLimit, CodeCreditLimitExceeded,
			fmt.Sprintf("Credit limit of %s would be exceeded. New balance would be %s",
				c.CreditLimit.StringFixed(2), newBalance.StringFixed(2))).
			With("credit_limit", c.CreditLimit).
			With("current_balance", balance).
			With("requested_amount", amount).
			With("resulting_balance", newBalance)
	}
	return nil
}

// CanAcceptCredit is the boolean form of ValidateCreditLimit
func (v *RuleValidator) CanAcceptCredit(c *Customer, balance, amount decimal.Decimal) bool {
	return v.ValidateCreditLimit(c, balance, amount) == nil
}

// ValidateDailyLimit checks the day's running total plus amount against the cap
func (v *RuleValidator) ValidateDailyLimit(dailyTotal, amount decimal.Decimal) error {
	newTotal := dailyTotal.Add(amount)
	if newTotal.GreaterThan(v.cfg.MaxDailyTransactionLimit) {
		return NewRuleViolation(RuleDailyLimit, CodeDailyLimitExceeded,
			fmt.Sprintf("Daily transaction limit of %s would be exceeded. Today's total would be %s",
				v.cfg.MaxDailyTransactionLimit.StringFixed(2), newTotal.StringFixed(2))).
			With("daily_limit", v.cfg.MaxDailyTransactionLimit).
			With("daily_total", newTotal)
	}
	return nil
}

// EntryCheck is the state a new entry is validated against
type EntryCheck struct {
	Customer   *Customer
	Balance    decimal.Decimal
	DailyTotal decimal.Decimal
}

// ValidateNewEntry runs the creation rules in order and returns the first violation
func (v *RuleValidator) ValidateNewEntry(e *LedgerEntry, chk EntryCheck) error {
	if err := v.ValidateAmount(e.Amount); err != nil {
		return err
	}
	if err := v.ValidateDate(e.TransactionDate); err != nil {
		return err
	}
	if err := v.ValidateCustomer(chk.Customer); err != nil {
		return err
	}
	if e.IsDebit() {
		if err := v.ValidateSufficientBalance(chk.Balance, e.Amount); err != nil {
			return err
		}
	}
	if e.IsCredit() {
		if err := v.ValidateCreditLimit(chk.Customer, chk.Balance, e.Amount); err != nil {
			return err
		}
	}
	return v.ValidateDailyLimit(chk.DailyTotal, e.Amount)
}

// UpdateCheck is the state a change set is validated against
type UpdateCheck struct {
	Actor   Actor
	Balance decimal.Decimal
	// Settled is the sum of non-reversed applications against the entry
	Settled decimal.Decimal
}

// ValidateUpdate checks a change set against an existing entry. Only the
// increment of a growing debit is checked against balance. Deactivating
// through an update runs the deletion guard.
func (v *RuleValidator) ValidateUpdate(existing *LedgerEntry, c EntryChanges, chk UpdateCheck) error {
	if !existing.Active {
		return NewRuleViolation(RuleUpdate, CodeInactiveLedgerEntry, "Cannot modify an inactive ledger entry")
	}
	if c.Amount != nil && !c.Amount.Equal(existing.Amount) {
		if err := v.ValidateAmount(*c.Amount); err != nil {
			return err
		}
		diff := c.Amount.Sub(existing.Amount)
		if existing.IsDebit() && diff.IsPositive() {
			if err := v.ValidateSufficientBalance(chk.Balance, diff); err != nil {
				return err
			}
		}
	}
	if c.Type != nil && !c.Type.IsValid() {
		return NewRuleViolation(RuleUpdate, "INVALID_TRANSACTION_TYPE", "Unknown transaction type: "+string(*c.Type))
	}
	if c.TransactionDate != nil {
		if err := v.ValidateDate(*c.TransactionDate); err != nil {
			return err
		}
	}
	if existing.Reconciled && c.TouchesFinancials() {
		return NewRuleViolation(RuleUpdate, CodeReconciledModification, "Cannot modify amount or type of reconciled entries")
	}
	if c.Active != nil && !*c.Active {
		if err := v.ValidateDeletion(existing, chk.Actor); err != nil {
			return err
		}
	}
	return v.ValidateSettlement(existing, c, chk.Settled)
}

// ValidateSettlement keeps a debit with applied payments covering them: its
// amount may not drop below the settled sum, and it may not change type or
// be deactivated while anything is settled against it
func (v *RuleValidator) ValidateSettlement(existing *LedgerEntry, c EntryChanges, settled decimal.Decimal) error {
	if !existing.IsDebit() || !settled.IsPositive() {
		return nil
	}
	switch {
	case c.Active != nil && !*c.Active:
		return NewSettledModification(RuleDeletion,
			fmt.Sprintf("Cannot delete a debit with %s in applied payments", settled.StringFixed(2)), settled)
	case c.Type != nil && *c.Type != existing.Type:
		return NewSettledModification(RuleUpdate,
			fmt.Sprintf("Cannot change the type of a debit with %s in applied payments", settled.StringFixed(2)), settled)
	case c.Amount != nil && c.Amount.LessThan(settled):
		return NewSettledModification(RuleUpdate,
			fmt.Sprintf("Amount %s is below the %s already applied", c.Amount.StringFixed(2), settled.StringFixed(2)), settled).
			With("requested_amount", *c.Amount)
	}
	return nil
}

// ValidateDeletion guards reconciled entries and, for non-administrators,
// entries dated more than 30 days ago
func (v *RuleValidator) ValidateDeletion(e *LedgerEntry, actor Actor) error {
	if !e.Active {
		return NewRuleViolation(RuleDeletion, CodeInactiveLedgerEntry, "Ledger entry is already deleted")
	}
	if e.Reconciled {
		return NewRuleViolation(RuleDeletion, CodeReconciledDeletion, "Cannot delete reconciled entries")
	}
	cutoff := v.Today().AddDate(0, 0, -deletionWindowDays)
	if DateOf(e.TransactionDate).Before(cutoff) && !actor.IsAdmin() {
		return NewRuleViolation(RuleDeletion, CodeOldEntryDeletion, "Only administrators can delete entries older than 30 days")
	}
	return nil
}

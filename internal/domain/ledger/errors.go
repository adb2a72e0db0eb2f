package ledger

import (
	"errors"
	"fmt"

	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Rule codes surfaced to callers. These strings are part of the external contract.
const (
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeNegativeOrZeroAmount   = "NEGATIVE_OR_ZERO_AMOUNT"
	CodeBelowMinAmount         = "BELOW_MIN_AMOUNT"
	CodeAboveMaxAmount         = "ABOVE_MAX_AMOUNT"
	CodeInvalidDecimalPlaces   = "INVALID_DECIMAL_PLACES"
	CodeInvalidDate            = "INVALID_DATE"
	CodeFutureDateNotAllowed   = "FUTURE_DATE_NOT_ALLOWED"
	CodeDateTooOld             = "DATE_TOO_OLD"
	CodeInvalidCustomer        = "INVALID_CUSTOMER"
	CodeInactiveCustomer       = "INACTIVE_CUSTOMER"
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeCreditLimitExceeded    = "CREDIT_LIMIT_EXCEEDED"
	CodeDailyLimitExceeded     = "DAILY_LIMIT_EXCEEDED"
	CodeReconciledModification = "RECONCILED_ENTRY_MODIFICATION"
	CodeReconciledDeletion     = "RECONCILED_ENTRY_DELETION"
	CodeOldEntryDeletion       = "OLD_ENTRY_DELETION"
	CodeSettledModification    = "SETTLED_ENTRY_MODIFICATION"

	CodeInvalidStatusTransition  = "INVALID_STATUS_TRANSITION"
	CodeCannotMarkPaid           = "CANNOT_MARK_PAID"
	CodeCannotDispute            = "CANNOT_DISPUTE"
	CodeInvalidPaymentStatus     = "INVALID_PAYMENT_STATUS"
	CodeInsufficientPayment      = "INSUFFICIENT_PAYMENT_AMOUNT"
	CodeCustomerMismatch         = "CUSTOMER_MISMATCH"
	CodeInactiveLedgerEntry      = "INACTIVE_LEDGER_ENTRY"
	CodeInvalidLedgerEntryType   = "INVALID_LEDGER_ENTRY_TYPE"
	CodeExceedsOutstandingAmount = "EXCEEDS_OUTSTANDING_AMOUNT"
	CodePaymentFullyApplied      = "PAYMENT_FULLY_APPLIED"
	CodeNoOutstandingEntries     = "NO_OUTSTANDING_ENTRIES"
	CodeNoApplicableAmount       = "NO_APPLICABLE_AMOUNT"
	CodeApplicationReversed      = "APPLICATION_ALREADY_REVERSED"
)

// Rule families, used as the audit action of a violation record
const (
	RuleAmount      = "AMOUNT_VALIDATION"
	RuleDate        = "DATE_VALIDATION"
	RuleCustomer    = "CUSTOMER_VALIDATION"
	RuleBalance     = "BALANCE_VALIDATION"
	RuleCreditLimit = "CREDIT_LIMIT_VALIDATION"
	RuleDailyLimit  = "DAILY_LIMIT_VALIDATION"
	RuleUpdate      = "UPDATE_VALIDATION"
	RuleDeletion    = "DELETION_VALIDATION"
	RulePayment     = "PAYMENT_VALIDATION"
	RuleStatus      = "STATUS_VALIDATION"
)

// RuleViolation is a recoverable business-rule failure. It unwraps to a
// *shared.DomainError carrying the stable rule code.
type RuleViolation struct {
	*shared.DomainError
	Rule    string
	Details map[string]string
}

// Unwrap exposes the underlying domain error
func (v *RuleViolation) Unwrap() error {
	return v.DomainError
}

// NewRuleViolation creates a violation for the given rule family and code
func NewRuleViolation(rule, code, message string) *RuleViolation {
	return &RuleViolation{
		DomainError: shared.NewDomainError(code, message),
		Rule:        rule,
		Details:     map[string]string{},
	}
}

// With attaches a decimal context value
func (v *RuleViolation) With(key string, value decimal.Decimal) *RuleViolation {
	v.Details[key] = value.String()
	return v
}

// Detail returns a context value as a decimal; missing keys yield zero
func (v *RuleViolation) Detail(key string) decimal.Decimal {
	d, err := decimal.NewFromString(v.Details[key])
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AsRuleViolation unwraps err to a *RuleViolation if it is one
func AsRuleViolation(err error) (*RuleViolation, bool) {
	var v *RuleViolation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// NewInsufficientBalance builds the INSUFFICIENT_BALANCE violation with its balance triple
func NewInsufficientBalance(current, requested decimal.Decimal) *RuleViolation {
	resulting := current.Sub(requested)
	return NewRuleViolation(RuleBalance, CodeInsufficientBalance,
		fmt.Sprintf("Insufficient balance. Current: %s, Requested: %s, Resulting: %s",
			current.StringFixed(2), requested.StringFixed(2), resulting.StringFixed(2))).
		With("current_balance", current).
		With("requested_amount", requested).
		With("resulting_balance", resulting)
}

// NewSettledModification builds the SETTLED_ENTRY_MODIFICATION violation for
// a change that would leave applied payments uncovered
func NewSettledModification(rule, message string, settled decimal.Decimal) *RuleViolation {
	return NewRuleViolation(rule, CodeSettledModification, message).
		With("settled_amount", settled)
}

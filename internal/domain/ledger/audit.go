package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies an audited operation
type Outcome string

const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeFailure   Outcome = "FAILURE"
	OutcomeViolation Outcome = "VIOLATION"
)

// Entity types named in audit records
const (
	EntityCustomer           = "CUSTOMER"
	EntityLedgerEntry        = "LEDGER_ENTRY"
	EntityPayment            = "PAYMENT"
	EntityPaymentApplication = "PAYMENT_APPLICATION"
	EntitySystem             = "SYSTEM"
)

// Audit actions
const (
	ActionCreateLedgerEntry     = "CREATE_LEDGER_ENTRY"
	ActionUpdateLedgerEntry     = "UPDATE_LEDGER_ENTRY"
	ActionDeleteLedgerEntry     = "DELETE_LEDGER_ENTRY"
	ActionRecordPayment         = "RECORD_PAYMENT"
	ActionApplyPayment          = "APPLY_PAYMENT"
	ActionAutoApplyPayment      = "AUTO_APPLY_PAYMENT"
	ActionReverseApplication    = "REVERSE_PAYMENT_APPLICATION"
	ActionUpdatePaymentStatus   = "UPDATE_PAYMENT_STATUS"
	ActionDisputePayment        = "DISPUTE_PAYMENT"
	ActionResolveDispute        = "RESOLVE_DISPUTE"
	ActionRecordReminder        = "RECORD_PAYMENT_REMINDER"
	ActionAutoMarkOverdue       = "AUTO_MARK_OVERDUE"
	ActionOverdueCheckCompleted = "OVERDUE_CHECK_COMPLETED"
	ActionOverdueCheckFailed    = "OVERDUE_CHECK_FAILED"
)

// AuditRecord is one entry on the audit side-channel
type AuditRecord struct {
	ID           uuid.UUID
	Action       string
	EntityType   string
	EntityID     *uuid.UUID
	OldSnapshot  string
	NewSnapshot  string
	Description  string
	ActorID      uuid.UUID
	ActorName    string
	Outcome      Outcome
	RuleCode     string
	ErrorMessage string
	OccurredAt   time.Time
}

// AuditSink receives audit records. Implementations must not block the
// caller for long; delivery errors never affect the audited operation.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// AuditSinkFunc adapts a function to AuditSink
type AuditSinkFunc func(ctx context.Context, rec AuditRecord) error

// Record calls f
func (f AuditSinkFunc) Record(ctx context.Context, rec AuditRecord) error {
	return f(ctx, rec)
}

// NopAuditSink discards every record
var NopAuditSink AuditSink = AuditSinkFunc(func(context.Context, AuditRecord) error { return nil })

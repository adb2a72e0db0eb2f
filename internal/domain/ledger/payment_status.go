package ledger

// PaymentStatus is the lifecycle state of a payment
type PaymentStatus string

const (
	PaymentPending      PaymentStatus = "PENDING"
	PaymentPartial      PaymentStatus = "PARTIAL"
	PaymentProcessed    PaymentStatus = "PROCESSED"
	PaymentPaid         PaymentStatus = "PAID"
	PaymentOverdue      PaymentStatus = "OVERDUE"
	PaymentDisputed     PaymentStatus = "DISPUTED"
	PaymentCancelled    PaymentStatus = "CANCELLED"
	PaymentFailed       PaymentStatus = "FAILED"
	PaymentRefunded     PaymentStatus = "REFUNDED"
	PaymentInCollection PaymentStatus = "IN_COLLECTION"
	PaymentWrittenOff   PaymentStatus = "WRITTEN_OFF"
)

// StatusCategory groups statuses for reporting
type StatusCategory string

const (
	CategoryWaiting     StatusCategory = "WAITING"
	CategoryCompleted   StatusCategory = "COMPLETED"
	CategoryProblematic StatusCategory = "PROBLEMATIC"
)

type statusInfo struct {
	display     string
	description string
	category    StatusCategory
}

var paymentStatusInfo = map[PaymentStatus]statusInfo{
	PaymentPending:      {"Pending", "Payment is pending processing", CategoryWaiting},
	PaymentPartial:      {"Partial", "Payment is partially applied", CategoryWaiting},
	PaymentProcessed:    {"Processed", "Payment has been fully applied", CategoryCompleted},
	PaymentPaid:         {"Paid", "Payment has been received in full", CategoryCompleted},
	PaymentOverdue:      {"Overdue", "Payment is past its due date", CategoryProblematic},
	PaymentDisputed:     {"Disputed", "Payment is under dispute", CategoryProblematic},
	PaymentCancelled:    {"Cancelled", "Payment has been cancelled", CategoryCompleted},
	PaymentFailed:       {"Failed", "Payment processing failed", CategoryProblematic},
	PaymentRefunded:     {"Refunded", "Payment has been refunded", CategoryCompleted},
	PaymentInCollection: {"In Collection", "Payment has been sent to collection", CategoryProblematic},
	PaymentWrittenOff:   {"Written Off", "Payment has been written off", CategoryCompleted},
}

// AllPaymentStatuses returns every status in declaration order
func AllPaymentStatuses() []PaymentStatus {
	return []PaymentStatus{
		PaymentPending, PaymentPartial, PaymentProcessed, PaymentPaid,
		PaymentOverdue, PaymentDisputed, PaymentCancelled, PaymentFailed,
		PaymentRefunded, PaymentInCollection, PaymentWrittenOff,
	}
}

// IsValid reports whether s is a known status
func (s PaymentStatus) IsValid() bool {
	_, ok := paymentStatusInfo[s]
	return ok
}

// String returns the string representation
func (s PaymentStatus) String() string {
	return string(s)
}

// DisplayName returns the human readable name
func (s PaymentStatus) DisplayName() string {
	return paymentStatusInfo[s].display
}

// Description returns a short explanation of the status
func (s PaymentStatus) Description() string {
	return paymentStatusInfo[s].description
}

// Category returns the reporting group of the status
func (s PaymentStatus) Category() StatusCategory {
	return paymentStatusInfo[s].category
}

// IsProblematic reports whether the status needs attention
func (s PaymentStatus) IsProblematic() bool {
	return s.Category() == CategoryProblematic
}

// AcceptsApplications reports whether allocations may be made from a payment in this status
func (s PaymentStatus) AcceptsApplications() bool {
	return s != PaymentCancelled && s != PaymentFailed
}

// Source sets for the guarded transitions
var (
	updatableFrom  = statusSet(PaymentPending, PaymentPartial, PaymentDisputed)
	disputableFrom = statusSet(PaymentPending, PaymentPartial, PaymentOverdue)
	payableFrom    = statusSet(PaymentPending, PaymentPartial, PaymentOverdue, PaymentDisputed)
)

func statusSet(statuses ...PaymentStatus) map[PaymentStatus]bool {
	set := make(map[PaymentStatus]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}

type transition struct {
	from PaymentStatus
	to   PaymentStatus
}

// statusTransitions maps every (current, requested) pair to the rule code
// that rejects it. An empty code means the transition is allowed.
var statusTransitions = buildStatusTransitions()

func buildStatusTransitions() map[transition]string {
	table := make(map[transition]string)
	for _, from := range AllPaymentStatuses() {
		for _, to := range AllPaymentStatuses() {
			var code string
			switch {
			case to == PaymentPaid:
				if !payableFrom[from] {
					code = CodeCannotMarkPaid
				}
			case to == PaymentDisputed:
				if !disputableFrom[from] {
					code = CodeCannotDispute
				}
			case from == to:
			case !updatableFrom[from]:
				code = CodeInvalidStatusTransition
			}
			table[transition{from, to}] = code
		}
	}
	return table
}

// TransitionCode returns the rule code rejecting from -> to, or "" when allowed
func TransitionCode(from, to PaymentStatus) string {
	code, ok := statusTransitions[transition{from, to}]
	if !ok {
		return CodeInvalidPaymentStatus
	}
	return code
}

// CanTransition reports whether from -> to is an allowed explicit transition
func CanTransition(from, to PaymentStatus) bool {
	return TransitionCode(from, to) == ""
}

// CanBeUpdated reports whether the status accepts a general explicit update
func (s PaymentStatus) CanBeUpdated() bool {
	return updatableFrom[s]
}

// CanBeDisputed reports whether the status may move to DISPUTED
func (s PaymentStatus) CanBeDisputed() bool {
	return disputableFrom[s]
}

// CanBePaid reports whether the status may move to PAID
func (s PaymentStatus) CanBePaid() bool {
	return payableFrom[s]
}

// ValidateTransition returns a status rule violation when from -> to is not allowed
func ValidateTransition(from, to PaymentStatus) error {
	code := TransitionCode(from, to)
	if code == "" {
		return nil
	}
	var msg string
	switch code {
	case CodeCannotMarkPaid:
		msg = "Payment cannot be marked as paid from status " + from.String()
	case CodeCannotDispute:
		msg = "Payment cannot be disputed from status " + from.String()
	case CodeInvalidPaymentStatus:
		msg = "Unknown payment status " + to.String()
	default:
		msg = "Cannot change payment status from " + from.String() + " to " + to.String()
	}
	return NewRuleViolation(RuleStatus, code, msg)
}

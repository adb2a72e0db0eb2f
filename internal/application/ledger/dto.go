package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CreateEntryRequest is the input for creating a ledger entry
type CreateEntryRequest struct {
	CustomerID      uuid.UUID              `json:"customer_id" validate:"required"`
	TransactionDate time.Time              `json:"transaction_date" validate:"required"`
	Type            ledger.TransactionType `json:"type" validate:"required,oneof=CREDIT DEBIT OPENING_BALANCE ADJUSTMENT TRANSFER"`
	Amount          decimal.Decimal        `json:"amount"`
	Description     string                 `json:"description" validate:"max=500"`
	Notes           string                 `json:"notes" validate:"max=2000"`
	ReferenceNumber string                 `json:"reference_number" validate:"max=100"`
	InvoiceNumber   string                 `json:"invoice_number" validate:"max=100"`
	InvoiceDate     *time.Time             `json:"invoice_date"`
	PaymentMethod   string                 `json:"payment_method" validate:"max=50"`
}

// UpdateEntryRequest is a partial update of a ledger entry. Nil fields are
// left untouched.
type UpdateEntryRequest struct {
	TransactionDate *time.Time              `json:"transaction_date"`
	Type            *ledger.TransactionType `json:"type" validate:"omitempty,oneof=CREDIT DEBIT OPENING_BALANCE ADJUSTMENT TRANSFER"`
	Amount          *decimal.Decimal        `json:"amount"`
	Description     *string                 `json:"description" validate:"omitempty,max=500"`
	Notes           *string                 `json:"notes" validate:"omitempty,max=2000"`
	ReferenceNumber *string                 `json:"reference_number" validate:"omitempty,max=100"`
	InvoiceNumber   *string                 `json:"invoice_number" validate:"omitempty,max=100"`
	InvoiceDate     *time.Time              `json:"invoice_date"`
	PaymentMethod   *string                 `json:"payment_method" validate:"omitempty,max=50"`
	Reconciled      *bool                   `json:"reconciled"`
	ReconciledDate  *time.Time              `json:"reconciled_date"`
	Active          *bool                   `json:"active"`
}

// Changes converts the request to a domain change set
func (r UpdateEntryRequest) Changes() ledger.EntryChanges {
	return ledger.EntryChanges{
		TransactionDate: r.TransactionDate,
		Type:            r.Type,
		Amount:          r.Amount,
		Description:     r.Description,
		Notes:           r.Notes,
		ReferenceNumber: r.ReferenceNumber,
		InvoiceNumber:   r.InvoiceNumber,
		InvoiceDate:     r.InvoiceDate,
		PaymentMethod:   r.PaymentMethod,
		Reconciled:      r.Reconciled,
		ReconciledDate:  r.ReconciledDate,
		Active:          r.Active,
	}
}

// SearchEntriesRequest holds the entry search criteria
type SearchEntriesRequest struct {
	CustomerID *uuid.UUID              `json:"customer_id"`
	Type       *ledger.TransactionType `json:"type" validate:"omitempty,oneof=CREDIT DEBIT OPENING_BALANCE ADJUSTMENT TRANSFER"`
	StartDate  *time.Time              `json:"start_date"`
	EndDate    *time.Time              `json:"end_date"`
	MinAmount  *decimal.Decimal        `json:"min_amount"`
	MaxAmount  *decimal.Decimal        `json:"max_amount"`
	Text       string                  `json:"text" validate:"max=200"`
	Reconciled *bool                   `json:"reconciled"`
	Page       int                     `json:"page" validate:"omitempty,min=1"`
	PageSize   int                     `json:"page_size" validate:"omitempty,min=1,max=200"`
	OrderBy    string                  `json:"order_by" validate:"omitempty,oneof=transaction_date amount created_at"`
	OrderDir   string                  `json:"order_dir" validate:"omitempty,oneof=asc desc"`
}

func (r SearchEntriesRequest) search() ledger.LedgerEntrySearch {
	return ledger.LedgerEntrySearch{
		Filter:     shared.Filter{Page: r.Page, PageSize: r.PageSize, OrderBy: r.OrderBy, OrderDir: r.OrderDir},
		CustomerID: r.CustomerID,
		Type:       r.Type,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		MinAmount:  r.MinAmount,
		MaxAmount:  r.MaxAmount,
		Text:       r.Text,
		Reconciled: r.Reconciled,
	}
}

// RecordPaymentRequest is the input for recording a received payment
type RecordPaymentRequest struct {
	CustomerID      uuid.UUID            `json:"customer_id" validate:"required"`
	PaymentDate     time.Time            `json:"payment_date" validate:"required"`
	Amount          decimal.Decimal      `json:"amount"`
	Status          ledger.PaymentStatus `json:"status"`
	DueDate         *time.Time           `json:"due_date"`
	Description     string               `json:"description" validate:"max=500"`
	Notes           string               `json:"notes" validate:"max=2000"`
	ReferenceNumber string               `json:"reference_number" validate:"max=100"`
	PaymentMethod   string               `json:"payment_method" validate:"max=50"`
	BankDetails     string               `json:"bank_details" validate:"max=255"`
	CheckNumber     string               `json:"check_number" validate:"max=50"`
	AdvancePayment  bool                 `json:"advance_payment"`
	IdempotencyKey  string               `json:"idempotency_key" validate:"max=128"`
}

// ApplicationItem asks for part of a payment to settle one debit entry
type ApplicationItem struct {
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Notes         string          `json:"notes" validate:"max=500"`
}

// ApplyPaymentRequest lists the entries a payment should settle
type ApplyPaymentRequest struct {
	Items []ApplicationItem `json:"items" validate:"required,min=1,dive"`
}

func (r ApplyPaymentRequest) requests() []ledger.ApplicationRequest {
	reqs := make([]ledger.ApplicationRequest, 0, len(r.Items))
	for _, item := range r.Items {
		reqs = append(reqs, ledger.ApplicationRequest{LedgerEntryID: item.LedgerEntryID, Amount: item.Amount, Notes: item.Notes})
	}
	return reqs
}

// UpdateStatusRequest changes a payment's status
type UpdateStatusRequest struct {
	Status  ledger.PaymentStatus `json:"status" validate:"required"`
	Notes   string               `json:"notes" validate:"max=1000"`
	DueDate *time.Time           `json:"due_date"`
}

// DisputeRequest opens a dispute on a payment
type DisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
	Notes  string `json:"notes" validate:"max=1000"`
}

// ResolveDisputeRequest closes a dispute
type ResolveDisputeRequest struct {
	Resolution string `json:"resolution" validate:"required,max=1000"`
}

// ReverseApplicationRequest undoes one allocation
type ReverseApplicationRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// EntryResponse is the external view of a ledger entry
type EntryResponse struct {
	ID                      uuid.UUID              `json:"id"`
	CustomerID              uuid.UUID              `json:"customer_id"`
	TransactionDate         time.Time              `json:"transaction_date"`
	Type                    ledger.TransactionType `json:"type"`
	TypeName                string                 `json:"type_name"`
	Amount                  decimal.Decimal        `json:"amount"`
	Description             string                 `json:"description"`
	Notes                   string                 `json:"notes,omitempty"`
	ReferenceNumber         string                 `json:"reference_number,omitempty"`
	InvoiceNumber           string                 `json:"invoice_number,omitempty"`
	InvoiceDate             *time.Time             `json:"invoice_date,omitempty"`
	PaymentMethod           string                 `json:"payment_method,omitempty"`
	BalanceAfterTransaction decimal.Decimal        `json:"balance_after_transaction"`
	Reconciled              bool                   `json:"reconciled"`
	ReconciledDate          *time.Time             `json:"reconciled_date,omitempty"`
	Active                  bool                   `json:"active"`
	CreatedBy               uuid.UUID              `json:"created_by"`
	UpdatedBy               *uuid.UUID             `json:"updated_by,omitempty"`
	CreatedAt               time.Time              `json:"created_at"`
	UpdatedAt               time.Time              `json:"updated_at"`
}

// ToEntryResponse converts a domain entry
func ToEntryResponse(e *ledger.LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:                      e.ID,
		CustomerID:              e.CustomerID,
		TransactionDate:         e.TransactionDate,
		Type:                    e.Type,
		TypeName:                e.Type.DisplayName(),
		Amount:                  e.Amount,
		Description:             e.Description,
		Notes:                   e.Notes,
		ReferenceNumber:         e.ReferenceNumber,
		InvoiceNumber:           e.InvoiceNumber,
		InvoiceDate:             e.InvoiceDate,
		PaymentMethod:           e.PaymentMethod,
		BalanceAfterTransaction: e.BalanceAfterTransaction,
		Reconciled:              e.Reconciled,
		ReconciledDate:          e.ReconciledDate,
		Active:                  e.Active,
		CreatedBy:               e.CreatedBy,
		UpdatedBy:               e.UpdatedBy,
		CreatedAt:               e.CreatedAt,
		UpdatedAt:               e.UpdatedAt,
	}
}

// ToEntryResponses converts a slice of domain entries
func ToEntryResponses(entries []ledger.LedgerEntry) []EntryResponse {
	out := make([]EntryResponse, len(entries))
	for i := range entries {
		out[i] = ToEntryResponse(&entries[i])
	}
	return out
}

// PaymentResponse is the external view of a payment
type PaymentResponse struct {
	ID               uuid.UUID             `json:"id"`
	CustomerID       uuid.UUID             `json:"customer_id"`
	PaymentDate      time.Time             `json:"payment_date"`
	Amount           decimal.Decimal       `json:"amount"`
	AppliedAmount    decimal.Decimal       `json:"applied_amount"`
	RemainingAmount  decimal.Decimal       `json:"remaining_amount"`
	Status           ledger.PaymentStatus  `json:"status"`
	StatusName       string                `json:"status_name"`
	Description      string                `json:"description,omitempty"`
	Notes            string                `json:"notes,omitempty"`
	ReferenceNumber  string                `json:"reference_number,omitempty"`
	PaymentMethod    string                `json:"payment_method,omitempty"`
	BankDetails      string                `json:"bank_details,omitempty"`
	CheckNumber      string                `json:"check_number,omitempty"`
	AdvancePayment   bool                  `json:"advance_payment"`
	ProcessedDate    *time.Time            `json:"processed_date,omitempty"`
	DueDate          *time.Time            `json:"due_date,omitempty"`
	OverdueDays      int                   `json:"overdue_days"`
	StatusUpdatedAt  *time.Time            `json:"status_updated_at,omitempty"`
	StatusUpdatedBy  *uuid.UUID            `json:"status_updated_by,omitempty"`
	StatusNotes      string                `json:"status_notes,omitempty"`
	DisputeDate      *time.Time            `json:"dispute_date,omitempty"`
	DisputeReason    string                `json:"dispute_reason,omitempty"`
	DisputedBy       *uuid.UUID            `json:"disputed_by,omitempty"`
	ReminderCount    int                   `json:"reminder_count"`
	LastReminderSent *time.Time            `json:"last_reminder_sent,omitempty"`
	Active           bool                  `json:"active"`
	IdempotencyKey   string                `json:"idempotency_key,omitempty"`
	CreatedBy        uuid.UUID             `json:"created_by"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
	Version          int                   `json:"version"`
	Applications     []ApplicationResponse `json:"applications,omitempty"`
}

// ToPaymentResponse converts a domain payment without its applications
func ToPaymentResponse(p *ledger.Payment) PaymentResponse {
	return PaymentResponse{
		ID:               p.ID,
		CustomerID:       p.CustomerID,
		PaymentDate:      p.PaymentDate,
		Amount:           p.Amount,
		AppliedAmount:    p.AppliedAmount,
		RemainingAmount:  p.RemainingAmount,
		Status:           p.Status,
		StatusName:       p.Status.DisplayName(),
		Description:      p.Description,
		Notes:            p.Notes,
		ReferenceNumber:  p.ReferenceNumber,
		PaymentMethod:    p.PaymentMethod,
		BankDetails:      p.BankDetails,
		CheckNumber:      p.CheckNumber,
		AdvancePayment:   p.AdvancePayment,
		ProcessedDate:    p.ProcessedDate,
		DueDate:          p.DueDate,
		OverdueDays:      p.OverdueDays,
		StatusUpdatedAt:  p.StatusUpdatedAt,
		StatusUpdatedBy:  p.StatusUpdatedBy,
		StatusNotes:      p.StatusNotes,
		DisputeDate:      p.DisputeDate,
		DisputeReason:    p.DisputeReason,
		DisputedBy:       p.DisputedBy,
		ReminderCount:    p.ReminderCount,
		LastReminderSent: p.LastReminderSent,
		Active:           p.Active,
		IdempotencyKey:   p.IdempotencyKey,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		Version:          p.Version,
	}
}

// ToPaymentResponses converts a slice of domain payments
func ToPaymentResponses(payments []ledger.Payment) []PaymentResponse {
	out := make([]PaymentResponse, len(payments))
	for i := range payments {
		out[i] = ToPaymentResponse(&payments[i])
	}
	return out
}

// ApplicationResponse is the external view of a payment application
type ApplicationResponse struct {
	ID              uuid.UUID       `json:"id"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	LedgerEntryID   uuid.UUID       `json:"ledger_entry_id"`
	AppliedAmount   decimal.Decimal `json:"applied_amount"`
	ApplicationDate time.Time       `json:"application_date"`
	Notes           string          `json:"notes,omitempty"`
	AppliedBy       uuid.UUID       `json:"applied_by"`
	AppliedAt       time.Time       `json:"applied_at"`
	Reversed        bool            `json:"reversed"`
	ReversedAt      *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy      *uuid.UUID      `json:"reversed_by,omitempty"`
	ReversalReason  string          `json:"reversal_reason,omitempty"`
}

// ToApplicationResponse converts a domain application
func ToApplicationResponse(a *ledger.PaymentApplication) ApplicationResponse {
	return ApplicationResponse{
		ID:              a.ID,
		PaymentID:       a.PaymentID,
		LedgerEntryID:   a.LedgerEntryID,
		AppliedAmount:   a.AppliedAmount,
		ApplicationDate: a.ApplicationDate,
		Notes:           a.Notes,
		AppliedBy:       a.AppliedBy,
		AppliedAt:       a.CreatedAt,
		Reversed:        a.Reversed,
		ReversedAt:      a.ReversedAt,
		ReversedBy:      a.ReversedBy,
		ReversalReason:  a.ReversalReason,
	}
}

// ToApplicationResponses converts a slice of domain applications
func ToApplicationResponses(apps []ledger.PaymentApplication) []ApplicationResponse {
	out := make([]ApplicationResponse, len(apps))
	for i := range apps {
		out[i] = ToApplicationResponse(&apps[i])
	}
	return out
}

// ApplyResult is the outcome of a manual or automatic application
type ApplyResult struct {
	Payment          PaymentResponse       `json:"payment"`
	Applications     []ApplicationResponse `json:"applications"`
	TotalApplied     decimal.Decimal       `json:"total_applied"`
	FullySettled     []uuid.UUID           `json:"fully_settled,omitempty"`
	PartiallySettled []uuid.UUID           `json:"partially_settled,omitempty"`
}

// ReversalResult is the outcome of reversing an application
type ReversalResult struct {
	Application ApplicationResponse `json:"application"`
	Payment     PaymentResponse     `json:"payment"`
}

// ConfigurationResponse is the read-only view of the business-rule thresholds
type ConfigurationResponse struct {
	AllowNegativeBalance        bool            `json:"allow_negative_balance"`
	MaxTransactionAmount        decimal.Decimal `json:"max_transaction_amount"`
	MinTransactionAmount        decimal.Decimal `json:"min_transaction_amount"`
	MaxDailyTransactionLimit    decimal.Decimal `json:"max_daily_transaction_limit"`
	RequireFutureDateValidation bool            `json:"require_future_date_validation"`
}

// OverdueCheckResult summarizes one overdue sweep
type OverdueCheckResult struct {
	RunDate  time.Time   `json:"run_date"`
	Checked  int         `json:"checked"`
	Marked   []uuid.UUID `json:"marked"`
	Failures int         `json:"failures"`
}

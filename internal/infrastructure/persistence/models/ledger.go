package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// CustomerModel is the persistence model for the Customer aggregate root.
type CustomerModel struct {
	AggregateModel
	Name           string          `gorm:"type:varchar(200);not null"`
	Email          string          `gorm:"type:varchar(200)"`
	Phone          string          `gorm:"type:varchar(50)"`
	BusinessName   string          `gorm:"type:varchar(200)"`
	CreditLimit    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Active         bool            `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer.
func (m *CustomerModel) ToDomain() *ledger.Customer {
	return &ledger.Customer{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Name:              m.Name,
		Email:             m.Email,
		Phone:             m.Phone,
		BusinessName:      m.BusinessName,
		CreditLimit:       m.CreditLimit,
		CurrentBalance:    m.CurrentBalance,
		Active:            m.Active,
	}
}

// FromDomain populates the persistence model from a domain Customer.
func (m *CustomerModel) FromDomain(c *ledger.Customer) {
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	m.Name = c.Name
	m.Email = c.Email
	m.Phone = c.Phone
	m.BusinessName = c.BusinessName
	m.CreditLimit = c.CreditLimit
	m.CurrentBalance = c.CurrentBalance
	m.Active = c.Active
}

// CustomerModelFromDomain creates a persistence model from a domain Customer.
func CustomerModelFromDomain(c *ledger.Customer) *CustomerModel {
	m := &CustomerModel{}
	m.FromDomain(c)
	return m
}

// LedgerEntryModel is the persistence model for LedgerEntry.
type LedgerEntryModel struct {
	BaseModel
	CustomerID              uuid.UUID              `gorm:"type:uuid;not null;index:idx_entries_customer_date,priority:1"`
	TransactionDate         time.Time              `gorm:"type:date;not null;index:idx_entries_customer_date,priority:2"`
	Type                    ledger.TransactionType `gorm:"column:transaction_type;type:varchar(20);not null;index"`
	Amount                  decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	Description             string                 `gorm:"type:varchar(500)"`
	Notes                   string                 `gorm:"type:text"`
	ReferenceNumber         string                 `gorm:"type:varchar(100);index"`
	InvoiceNumber           string                 `gorm:"type:varchar(100);index"`
	InvoiceDate             *time.Time             `gorm:"type:date"`
	PaymentMethod           string                 `gorm:"type:varchar(50)"`
	BalanceAfterTransaction decimal.Decimal        `gorm:"type:decimal(18,2);not null;default:0"`
	Reconciled              bool                   `gorm:"not null;default:false;index"`
	ReconciledDate          *time.Time             `gorm:"type:date"`
	Active                  bool                   `gorm:"not null;default:true;index"`
	CreatedBy               uuid.UUID              `gorm:"type:uuid;not null"`
	UpdatedBy               *uuid.UUID             `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry.
func (m *LedgerEntryModel) ToDomain() *ledger.LedgerEntry {
	return &ledger.LedgerEntry{
		BaseEntity:              m.BaseModel.ToDomain(),
		CustomerID:              m.CustomerID,
		TransactionDate:         ledger.DateOf(m.TransactionDate),
		Type:                    m.Type,
		Amount:                  m.Amount,
		Description:             m.Description,
		Notes:                   m.Notes,
		ReferenceNumber:         m.ReferenceNumber,
		InvoiceNumber:           m.InvoiceNumber,
		InvoiceDate:             m.InvoiceDate,
		PaymentMethod:           m.PaymentMethod,
		BalanceAfterTransaction: m.BalanceAfterTransaction,
		Reconciled:              m.Reconciled,
		ReconciledDate:          m.ReconciledDate,
		Active:                  m.Active,
		CreatedBy:               m.CreatedBy,
		UpdatedBy:               m.UpdatedBy,
	}
}

// FromDomain populates the persistence model from a domain LedgerEntry.
func (m *LedgerEntryModel) FromDomain(e *ledger.LedgerEntry) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.CustomerID = e.CustomerID
	m.TransactionDate = e.TransactionDate
	m.Type = e.Type
	m.Amount = e.Amount
	m.Description = e.Description
	m.Notes = e.Notes
	m.ReferenceNumber = e.ReferenceNumber
	m.InvoiceNumber = e.InvoiceNumber
	m.InvoiceDate = e.InvoiceDate
	m.PaymentMethod = e.PaymentMethod
	m.BalanceAfterTransaction = e.BalanceAfterTransaction
	m.Reconciled = e.Reconciled
	m.ReconciledDate = e.ReconciledDate
	m.Active = e.Active
	m.CreatedBy = e.CreatedBy
	m.UpdatedBy = e.UpdatedBy
}

// LedgerEntryModelFromDomain creates a persistence model from a domain LedgerEntry.
func LedgerEntryModelFromDomain(e *ledger.LedgerEntry) *LedgerEntryModel {
	m := &LedgerEntryModel{}
	m.FromDomain(e)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root.
type PaymentModel struct {
	AggregateModel
	CustomerID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	PaymentDate      time.Time            `gorm:"type:date;not null;index"`
	Amount           decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	AppliedAmount    decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	RemainingAmount  decimal.Decimal      `gorm:"type:decimal(18,2);not null;default:0"`
	Description      string               `gorm:"type:varchar(500)"`
	Notes            string               `gorm:"type:text"`
	ReferenceNumber  string               `gorm:"type:varchar(100);index"`
	PaymentMethod    string               `gorm:"type:varchar(50)"`
	BankDetails      string               `gorm:"type:varchar(500)"`
	CheckNumber      string               `gorm:"type:varchar(50)"`
	Status           ledger.PaymentStatus `gorm:"column:payment_status;type:varchar(30);not null;default:'PENDING';index"`
	ProcessedDate    *time.Time           `gorm:"type:date"`
	DueDate          *time.Time           `gorm:"type:date;index"`
	OverdueDays      int                  `gorm:"not null;default:0"`
	AdvancePayment   bool                 `gorm:"not null;default:false"`
	Active           bool                 `gorm:"not null;default:true;index"`
	IdempotencyKey   *string              `gorm:"type:varchar(100);uniqueIndex"`
	StatusUpdatedAt  *time.Time
	StatusUpdatedBy  *uuid.UUID `gorm:"type:uuid"`
	StatusNotes      string     `gorm:"type:text"`
	DisputeDate      *time.Time
	DisputeReason    string     `gorm:"type:text"`
	DisputedBy       *uuid.UUID `gorm:"type:uuid"`
	ReminderCount    int        `gorm:"not null;default:0"`
	LastReminderSent *time.Time
	CreatedBy        uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *ledger.Payment {
	return &ledger.Payment{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		CustomerID:        m.CustomerID,
		PaymentDate:       ledger.DateOf(m.PaymentDate),
		Amount:            m.Amount,
		AppliedAmount:     m.AppliedAmount,
		RemainingAmount:   m.RemainingAmount,
		Description:       m.Description,
		Notes:             m.Notes,
		ReferenceNumber:   m.ReferenceNumber,
		PaymentMethod:     m.PaymentMethod,
		BankDetails:       m.BankDetails,
		CheckNumber:       m.CheckNumber,
		Status:            m.Status,
		ProcessedDate:     m.ProcessedDate,
		DueDate:           m.DueDate,
		OverdueDays:       m.OverdueDays,
		AdvancePayment:    m.AdvancePayment,
		Active:            m.Active,
		IdempotencyKey:    derefString(m.IdempotencyKey),
		StatusUpdatedAt:   m.StatusUpdatedAt,
		StatusUpdatedBy:   m.StatusUpdatedBy,
		StatusNotes:       m.StatusNotes,
		DisputeDate:       m.DisputeDate,
		DisputeReason:     m.DisputeReason,
		DisputedBy:        m.DisputedBy,
		ReminderCount:     m.ReminderCount,
		LastReminderSent:  m.LastReminderSent,
		CreatedBy:         m.CreatedBy,
	}
}

// FromDomain populates the persistence model from a domain Payment.
func (m *PaymentModel) FromDomain(p *ledger.Payment) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.CustomerID = p.CustomerID
	m.PaymentDate = p.PaymentDate
	m.Amount = p.Amount
	m.AppliedAmount = p.AppliedAmount
	m.RemainingAmount = p.RemainingAmount
	m.Description = p.Description
	m.Notes = p.Notes
	m.ReferenceNumber = p.ReferenceNumber
	m.PaymentMethod = p.PaymentMethod
	m.BankDetails = p.BankDetails
	m.CheckNumber = p.CheckNumber
	m.Status = p.Status
	m.ProcessedDate = p.ProcessedDate
	m.DueDate = p.DueDate
	m.OverdueDays = p.OverdueDays
	m.AdvancePayment = p.AdvancePayment
	m.Active = p.Active
	m.IdempotencyKey = nullableString(p.IdempotencyKey)
	m.StatusUpdatedAt = p.StatusUpdatedAt
	m.StatusUpdatedBy = p.StatusUpdatedBy
	m.StatusNotes = p.StatusNotes
	m.DisputeDate = p.DisputeDate
	m.DisputeReason = p.DisputeReason
	m.DisputedBy = p.DisputedBy
	m.ReminderCount = p.ReminderCount
	m.LastReminderSent = p.LastReminderSent
	m.CreatedBy = p.CreatedBy
}

// PaymentModelFromDomain creates a persistence model from a domain Payment.
func PaymentModelFromDomain(p *ledger.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// PaymentApplicationModel is the persistence model for PaymentApplication.
// Rows are never deleted; reversal flips Reversed.
type PaymentApplicationModel struct {
	BaseModel
	PaymentID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	LedgerEntryID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	AppliedAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	ApplicationDate time.Time       `gorm:"not null"`
	Notes           string          `gorm:"type:text"`
	AppliedBy       uuid.UUID       `gorm:"type:uuid;not null"`
	Reversed        bool            `gorm:"not null;default:false;index"`
	ReversedAt      *time.Time
	ReversedBy      *uuid.UUID `gorm:"type:uuid"`
	ReversalReason  string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PaymentApplicationModel) TableName() string {
	return "payment_applications"
}

// ToDomain converts the persistence model to a domain PaymentApplication.
func (m *PaymentApplicationModel) ToDomain() *ledger.PaymentApplication {
	return &ledger.PaymentApplication{
		BaseEntity:      m.BaseModel.ToDomain(),
		PaymentID:       m.PaymentID,
		LedgerEntryID:   m.LedgerEntryID,
		AppliedAmount:   m.AppliedAmount,
		ApplicationDate: m.ApplicationDate,
		Notes:           m.Notes,
		AppliedBy:       m.AppliedBy,
		Reversed:        m.Reversed,
		ReversedAt:      m.ReversedAt,
		ReversedBy:      m.ReversedBy,
		ReversalReason:  m.ReversalReason,
	}
}

// FromDomain populates the persistence model from a domain PaymentApplication.
func (m *PaymentApplicationModel) FromDomain(a *ledger.PaymentApplication) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.PaymentID = a.PaymentID
	m.LedgerEntryID = a.LedgerEntryID
	m.AppliedAmount = a.AppliedAmount
	m.ApplicationDate = a.ApplicationDate
	m.Notes = a.Notes
	m.AppliedBy = a.AppliedBy
	m.Reversed = a.Reversed
	m.ReversedAt = a.ReversedAt
	m.ReversedBy = a.ReversedBy
	m.ReversalReason = a.ReversalReason
}

// PaymentApplicationModelFromDomain creates a persistence model from a domain PaymentApplication.
func PaymentApplicationModelFromDomain(a *ledger.PaymentApplication) *PaymentApplicationModel {
	m := &PaymentApplicationModel{}
	m.FromDomain(a)
	return m
}

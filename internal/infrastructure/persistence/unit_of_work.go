package persistence

import (
	"context"

	"github.com/ledgerly/backend/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormUnitOfWork runs ledger writes inside one database transaction
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// Do runs fn with repositories bound to a fresh transaction. The transaction
// commits when fn returns nil and rolls back otherwise, including on panic.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos ledger.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewRepositories(tx))
	})
}

// Repositories returns repositories bound to the non-transactional handle,
// for reads outside a unit of work
func (u *GormUnitOfWork) Repositories() ledger.Repositories {
	return NewRepositories(u.db)
}

// NewRepositories builds the ledger repositories over db
func NewRepositories(db *gorm.DB) ledger.Repositories {
	return ledger.Repositories{
		Customers:    NewGormCustomerRepository(db),
		Entries:      NewGormLedgerEntryRepository(db),
		Payments:     NewGormPaymentRepository(db),
		Applications: NewGormPaymentApplicationRepository(db),
	}
}

// Ensure GormUnitOfWork implements UnitOfWork
var _ ledger.UnitOfWork = (*GormUnitOfWork)(nil)

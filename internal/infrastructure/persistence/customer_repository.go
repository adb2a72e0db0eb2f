package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCustomerRepository implements CustomerRepository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer by ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Customer")
		}
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return model.ToDomain(), nil
}

// Save creates or updates a customer without a version check
func (r *GormCustomerRepository) Save(ctx context.Context, customer *ledger.Customer) error {
	if err := r.db.WithContext(ctx).Save(models.CustomerModelFromDomain(customer)).Error; err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

// SaveWithLock bumps the version and updates the row only if the stored
// version still matches the one the customer was loaded with.
func (r *GormCustomerRepository) SaveWithLock(ctx context.Context, customer *ledger.Customer) error {
	expected := customer.Version
	customer.Version++
	customer.UpdatedAt = time.Now()

	model := models.CustomerModelFromDomain(customer)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("*").
		Omit("id", "created_at").
		Where("id = ? AND version = ?", customer.ID, expected).
		Updates(model)

	if result.Error != nil {
		customer.Version = expected
		return fmt.Errorf("failed to save customer: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		customer.Version = expected
		return shared.NewDomainError(shared.ErrConcurrencyConflict.Code, "The customer record has been modified by another transaction")
	}
	return nil
}

// Ensure GormCustomerRepository implements CustomerRepository
var _ ledger.CustomerRepository = (*GormCustomerRepository)(nil)

package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormPaymentApplicationRepository implements PaymentApplicationRepository using GORM
type GormPaymentApplicationRepository struct {
	db *gorm.DB
}

// NewGormPaymentApplicationRepository creates a new GormPaymentApplicationRepository
func NewGormPaymentApplicationRepository(db *gorm.DB) *GormPaymentApplicationRepository {
	return &GormPaymentApplicationRepository{db: db}
}

// FindByID finds an application by ID
func (r *GormPaymentApplicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.PaymentApplication, error) {
	var model models.PaymentApplicationModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Payment application")
		}
		return nil, fmt.Errorf("failed to load payment application: %w", err)
	}
	return model.ToDomain(), nil
}

// FindByPayment lists a payment's applications, reversed ones included
func (r *GormPaymentApplicationRepository) FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]ledger.PaymentApplication, error) {
	var rows []models.PaymentApplicationModel
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("application_date ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load payment applications: %w", err)
	}

	apps := make([]ledger.PaymentApplication, len(rows))
	for i := range rows {
		apps[i] = *rows[i].ToDomain()
	}
	return apps, nil
}

// SumEffectiveByPayment sums a payment's non-reversed applications
func (r *GormPaymentApplicationRepository) SumEffectiveByPayment(ctx context.Context, paymentID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.PaymentApplicationModel{}).
		Select("COALESCE(SUM(applied_amount), 0)").
		Where("payment_id = ? AND reversed = ?", paymentID, false).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payment applications: %w", err)
	}
	return total.Round(2), nil
}

// SumEffectiveByEntries sums non-reversed applications per entry. Entries
// without applications are absent from the result.
func (r *GormPaymentApplicationRepository) SumEffectiveByEntries(ctx context.Context, entryIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	sums := make(map[uuid.UUID]decimal.Decimal, len(entryIDs))
	if len(entryIDs) == 0 {
		return sums, nil
	}

	var rows []struct {
		LedgerEntryID uuid.UUID
		Total         decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.PaymentApplicationModel{}).
		Select("ledger_entry_id, COALESCE(SUM(applied_amount), 0) AS total").
		Where("ledger_entry_id IN ? AND reversed = ?", entryIDs, false).
		Group("ledger_entry_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum entry applications: %w", err)
	}

	for _, row := range rows {
		sums[row.LedgerEntryID] = row.Total.Round(2)
	}
	return sums, nil
}

// Save creates or updates an application
func (r *GormPaymentApplicationRepository) Save(ctx context.Context, application *ledger.PaymentApplication) error {
	if err := r.db.WithContext(ctx).Save(models.PaymentApplicationModelFromDomain(application)).Error; err != nil {
		return fmt.Errorf("failed to save payment application: %w", err)
	}
	return nil
}

// Ensure GormPaymentApplicationRepository implements PaymentApplicationRepository
var _ ledger.PaymentApplicationRepository = (*GormPaymentApplicationRepository)(nil)

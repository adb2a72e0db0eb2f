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

var openPaymentStatuses = []ledger.PaymentStatus{ledger.PaymentPending, ledger.PaymentPartial}

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Payment")
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return model.ToDomain(), nil
}

// FindAll pages active payments matching the filter
func (r *GormPaymentRepository) FindAll(ctx context.Context, filter ledger.PaymentFilter) ([]ledger.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{}).Where("active = ?", true)
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("payment_status = ?", *filter.Status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	page := filter.Filter.Normalize()
	var rows []models.PaymentModel
	err := query.
		Order(orderClause(page, PaymentSortFields, "payment_date")).
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return toPayments(rows), total, nil
}

// FindUnapplied lists PENDING/PARTIAL active payments with an unapplied
// remainder, oldest payment date first
func (r *GormPaymentRepository) FindUnapplied(ctx context.Context, customerID uuid.UUID) ([]ledger.Payment, error) {
	var rows []models.PaymentModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND active = ? AND payment_status IN ? AND applied_amount < amount",
			customerID, true, openPaymentStatuses).
		Order("payment_date ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load unapplied payments: %w", err)
	}
	return toPayments(rows), nil
}

// FindOverdueCandidates lists active PENDING/PARTIAL payments due before date
func (r *GormPaymentRepository) FindOverdueCandidates(ctx context.Context, date time.Time) ([]ledger.Payment, error) {
	var rows []models.PaymentModel
	err := r.db.WithContext(ctx).
		Where("active = ? AND payment_status IN ? AND due_date IS NOT NULL AND due_date < ?",
			true, openPaymentStatuses, ledger.DateOf(date)).
		Order("due_date ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load overdue candidates: %w", err)
	}
	return toPayments(rows), nil
}

// CountByStatus counts active payments per status
func (r *GormPaymentRepository) CountByStatus(ctx context.Context) (map[ledger.PaymentStatus]int64, error) {
	var rows []struct {
		PaymentStatus ledger.PaymentStatus
		Count         int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Select("payment_status, COUNT(*) AS count").
		Where("active = ?", true).
		Group("payment_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count payments by status: %w", err)
	}

	counts := make(map[ledger.PaymentStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.PaymentStatus] = row.Count
	}
	return counts, nil
}

// ExistsByIdempotencyKey checks whether a payment was recorded under key
func (r *GormPaymentRepository) ExistsByIdempotencyKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("idempotency_key = ?", key).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return count > 0, nil
}

// Save creates or updates a payment without a version check
func (r *GormPaymentRepository) Save(ctx context.Context, payment *ledger.Payment) error {
	if err := r.db.WithContext(ctx).Save(models.PaymentModelFromDomain(payment)).Error; err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

// SaveWithLock bumps the version and updates the row only if the stored
// version still matches the one the payment was loaded with.
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, payment *ledger.Payment) error {
	expected := payment.Version
	payment.Version++
	payment.UpdatedAt = time.Now()

	model := models.PaymentModelFromDomain(payment)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("*").
		Omit("id", "created_at").
		Where("id = ? AND version = ?", payment.ID, expected).
		Updates(model)

	if result.Error != nil {
		payment.Version = expected
		return fmt.Errorf("failed to save payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		payment.Version = expected
		return shared.NewDomainError(shared.ErrConcurrencyConflict.Code, "The payment has been modified by another transaction")
	}
	return nil
}

func toPayments(rows []models.PaymentModel) []ledger.Payment {
	payments := make([]ledger.Payment, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments
}

// Ensure GormPaymentRepository implements PaymentRepository
var _ ledger.PaymentRepository = (*GormPaymentRepository)(nil)

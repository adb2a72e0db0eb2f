package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var creditTypes = []ledger.TransactionType{
	ledger.TransactionCredit,
	ledger.TransactionOpeningBalance,
}

// GormLedgerEntryRepository implements LedgerEntryRepository using GORM
type GormLedgerEntryRepository struct {
	db *gorm.DB
}

// NewGormLedgerEntryRepository creates a new GormLedgerEntryRepository
func NewGormLedgerEntryRepository(db *gorm.DB) *GormLedgerEntryRepository {
	return &GormLedgerEntryRepository{db: db}
}

// FindByID finds an entry by ID, active or not
func (r *GormLedgerEntryRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.LedgerEntry, error) {
	var model models.LedgerEntryModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Ledger entry")
		}
		return nil, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	return model.ToDomain(), nil
}

// FindByIDs finds entries by ID, active or not
func (r *GormLedgerEntryRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]ledger.LedgerEntry, error) {
	if len(ids) == 0 {
		return []ledger.LedgerEntry{}, nil
	}
	var rows []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	return toEntries(rows), nil
}

// FindByCustomer pages a customer's active entries
func (r *GormLedgerEntryRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID, filter shared.Filter) ([]ledger.LedgerEntry, int64, error) {
	return r.Search(ctx, ledger.LedgerEntrySearch{Filter: filter, CustomerID: &customerID})
}

// Search pages active entries matching every supplied criterion
func (r *GormLedgerEntryRepository) Search(ctx context.Context, search ledger.LedgerEntrySearch) ([]ledger.LedgerEntry, int64, error) {
	query := r.applySearch(r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}), search).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	filter := search.Filter.Normalize()
	var rows []models.LedgerEntryModel
	err := query.
		Order(orderClause(filter, LedgerEntrySortFields, "created_at")).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search ledger entries: %w", err)
	}
	return toEntries(rows), total, nil
}

func (r *GormLedgerEntryRepository) applySearch(query *gorm.DB, s ledger.LedgerEntrySearch) *gorm.DB {
	query = query.Where("active = ?", true)
	if s.CustomerID != nil {
		query = query.Where("customer_id = ?", *s.CustomerID)
	}
	if s.Type != nil {
		query = query.Where("transaction_type = ?", *s.Type)
	}
	if s.StartDate != nil {
		query = query.Where("transaction_date >= ?", ledger.DateOf(*s.StartDate))
	}
	if s.EndDate != nil {
		query = query.Where("transaction_date <= ?", ledger.DateOf(*s.EndDate))
	}
	if s.MinAmount != nil {
		query = query.Where("amount >= ?", *s.MinAmount)
	}
	if s.MaxAmount != nil {
		query = query.Where("amount <= ?", *s.MaxAmount)
	}
	if s.Reconciled != nil {
		query = query.Where("reconciled = ?", *s.Reconciled)
	}
	if s.Text != "" {
		pattern := "%" + escapeLikePattern(s.Text) + "%"
		query = query.Where(`(LOWER(description) LIKE LOWER(?) ESCAPE '\' OR LOWER(reference_number) LIKE LOWER(?) ESCAPE '\' OR LOWER(invoice_number) LIKE LOWER(?) ESCAPE '\')`,
			pattern, pattern, pattern)
	}
	return query
}

// FindUnreconciled lists a customer's active unreconciled entries, oldest first
func (r *GormLedgerEntryRepository) FindUnreconciled(ctx context.Context, customerID uuid.UUID) ([]ledger.LedgerEntry, error) {
	return r.findOrdered(r.db.WithContext(ctx).
		Where("customer_id = ? AND active = ? AND reconciled = ?", customerID, true, false))
}

// FindOpenDebits lists active unreconciled DEBIT entries by transaction date ascending
func (r *GormLedgerEntryRepository) FindOpenDebits(ctx context.Context, customerID uuid.UUID) ([]ledger.LedgerEntry, error) {
	return r.findOrdered(r.db.WithContext(ctx).
		Where("customer_id = ? AND active = ? AND reconciled = ? AND transaction_type = ?",
			customerID, true, false, ledger.TransactionDebit))
}

// FindActiveDebits lists every active DEBIT entry by transaction date ascending
func (r *GormLedgerEntryRepository) FindActiveDebits(ctx context.Context, customerID uuid.UUID) ([]ledger.LedgerEntry, error) {
	return r.findOrdered(r.db.WithContext(ctx).
		Where("customer_id = ? AND active = ? AND transaction_type = ?", customerID, true, ledger.TransactionDebit))
}

func (r *GormLedgerEntryRepository) findOrdered(query *gorm.DB) ([]ledger.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := query.Order("transaction_date ASC, created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	return toEntries(rows), nil
}

// Totals sums the customer's active credits and debits
func (r *GormLedgerEntryRepository) Totals(ctx context.Context, customerID uuid.UUID) (ledger.EntryTotals, error) {
	var row struct {
		Credit decimal.Decimal
		Debit  decimal.Decimal
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Select(
			"COALESCE(SUM(CASE WHEN transaction_type IN ? THEN amount ELSE 0 END), 0) AS credit, "+
				"COALESCE(SUM(CASE WHEN transaction_type = ? THEN amount ELSE 0 END), 0) AS debit, "+
				"COUNT(*) AS count",
			creditTypes, ledger.TransactionDebit,
		).
		Where("customer_id = ? AND active = ?", customerID, true).
		Scan(&row).Error
	if err != nil {
		return ledger.EntryTotals{}, fmt.Errorf("failed to total ledger entries: %w", err)
	}
	return ledger.EntryTotals{
		Credit: row.Credit.Round(2),
		Debit:  row.Debit.Round(2),
		Count:  row.Count,
	}, nil
}

// DailyTotal sums the amounts of the customer's active entries on date
func (r *GormLedgerEntryRepository) DailyTotal(ctx context.Context, customerID uuid.UUID, date time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntryModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("customer_id = ? AND active = ? AND transaction_date = ?", customerID, true, ledger.DateOf(date)).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to total daily ledger entries: %w", err)
	}
	return total.Round(2), nil
}

// Save creates or updates an entry
func (r *GormLedgerEntryRepository) Save(ctx context.Context, entry *ledger.LedgerEntry) error {
	if err := r.db.WithContext(ctx).Save(models.LedgerEntryModelFromDomain(entry)).Error; err != nil {
		return fmt.Errorf("failed to save ledger entry: %w", err)
	}
	return nil
}

func toEntries(rows []models.LedgerEntryModel) []ledger.LedgerEntry {
	entries := make([]ledger.LedgerEntry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return entries
}

// Ensure GormLedgerEntryRepository implements LedgerEntryRepository
var _ ledger.LedgerEntryRepository = (*GormLedgerEntryRepository)(nil)

// escapeLikePattern escapes special characters in LIKE patterns
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAuditLogRepository appends and reads audit records
type GormAuditLogRepository struct {
	db *gorm.DB
}

// NewGormAuditLogRepository creates a new GormAuditLogRepository
func NewGormAuditLogRepository(db *gorm.DB) *GormAuditLogRepository {
	return &GormAuditLogRepository{db: db}
}

// Append inserts one record. Records are never updated.
func (r *GormAuditLogRepository) Append(ctx context.Context, rec ledger.AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(models.AuditLogModelFromDomain(rec)).Error; err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// FindByEntity lists an entity's audit trail, newest first
func (r *GormAuditLogRepository) FindByEntity(ctx context.Context, entityType string, entityID uuid.UUID, filter shared.Filter) ([]ledger.AuditRecord, error) {
	page := filter.Normalize()
	var rows []models.AuditLogModel
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}

	records := make([]ledger.AuditRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}

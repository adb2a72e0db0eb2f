package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
)

// AuditLogModel is the append-only persistence model for audit records.
// Snapshots are JSON documents; empty snapshots are stored as NULL.
type AuditLogModel struct {
	ID           uuid.UUID      `gorm:"type:uuid;primary_key"`
	Action       string         `gorm:"type:varchar(60);not null;index"`
	EntityType   string         `gorm:"type:varchar(40);not null;index:idx_audit_entity,priority:1"`
	EntityID     *uuid.UUID     `gorm:"type:uuid;index:idx_audit_entity,priority:2"`
	OldSnapshot  *string        `gorm:"type:jsonb"`
	NewSnapshot  *string        `gorm:"type:jsonb"`
	Description  string         `gorm:"type:text"`
	ActorID      uuid.UUID      `gorm:"type:uuid;not null;index"`
	ActorName    string         `gorm:"type:varchar(200)"`
	Outcome      ledger.Outcome `gorm:"type:varchar(20);not null;index"`
	RuleCode     string         `gorm:"type:varchar(60)"`
	ErrorMessage string         `gorm:"type:text"`
	OccurredAt   time.Time      `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// ToDomain converts the persistence model to a domain AuditRecord.
func (m *AuditLogModel) ToDomain() ledger.AuditRecord {
	return ledger.AuditRecord{
		ID:           m.ID,
		Action:       m.Action,
		EntityType:   m.EntityType,
		EntityID:     m.EntityID,
		OldSnapshot:  derefString(m.OldSnapshot),
		NewSnapshot:  derefString(m.NewSnapshot),
		Description:  m.Description,
		ActorID:      m.ActorID,
		ActorName:    m.ActorName,
		Outcome:      m.Outcome,
		RuleCode:     m.RuleCode,
		ErrorMessage: m.ErrorMessage,
		OccurredAt:   m.OccurredAt,
	}
}

// AuditLogModelFromDomain creates a persistence model from a domain AuditRecord.
func AuditLogModelFromDomain(rec ledger.AuditRecord) *AuditLogModel {
	return &AuditLogModel{
		ID:           rec.ID,
		Action:       rec.Action,
		EntityType:   rec.EntityType,
		EntityID:     rec.EntityID,
		OldSnapshot:  nullableString(rec.OldSnapshot),
		NewSnapshot:  nullableString(rec.NewSnapshot),
		Description:  rec.Description,
		ActorID:      rec.ActorID,
		ActorName:    rec.ActorName,
		Outcome:      rec.Outcome,
		RuleCode:     rec.RuleCode,
		ErrorMessage: rec.ErrorMessage,
		OccurredAt:   rec.OccurredAt,
	}
}

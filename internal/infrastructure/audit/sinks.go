// Package audit delivers ledger audit records to their destinations. Every
// sink here satisfies ledger.AuditSink; the Dispatcher decouples delivery
// from the request path.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerly/backend/internal/domain/ledger"
	"go.uber.org/zap"
)

// Appender persists audit records
type Appender interface {
	Append(ctx context.Context, rec ledger.AuditRecord) error
}

// DatabaseSink writes records to the audit_logs table
type DatabaseSink struct {
	repo Appender
}

// NewDatabaseSink creates a sink over repo
func NewDatabaseSink(repo Appender) *DatabaseSink {
	return &DatabaseSink{repo: repo}
}

// Record appends rec
func (s *DatabaseSink) Record(ctx context.Context, rec ledger.AuditRecord) error {
	return s.repo.Append(ctx, rec)
}

// LogSink writes records as structured log lines. Violations and failures
// log at warn so they stand out from routine successes.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink writing to logger
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Record logs rec
func (s *LogSink) Record(_ context.Context, rec ledger.AuditRecord) error {
	fields := []zap.Field{
		zap.String("action", rec.Action),
		zap.String("entity_type", rec.EntityType),
		zap.String("outcome", string(rec.Outcome)),
		zap.String("actor_id", rec.ActorID.String()),
		zap.Time("occurred_at", rec.OccurredAt),
	}
	if rec.EntityID != nil {
		fields = append(fields, zap.String("entity_id", rec.EntityID.String()))
	}
	if rec.RuleCode != "" {
		fields = append(fields, zap.String("rule_code", rec.RuleCode))
	}
	if rec.ErrorMessage != "" {
		fields = append(fields, zap.String("error_message", rec.ErrorMessage))
	}

	if rec.Outcome == ledger.OutcomeSuccess {
		s.logger.Info(rec.Description, fields...)
	} else {
		s.logger.Warn(rec.Description, fields...)
	}
	return nil
}

// MultiSink fans a record out to every sink. One sink failing or panicking
// does not stop delivery to the others.
type MultiSink struct {
	sinks []ledger.AuditSink
}

// NewMultiSink creates a fan-out over sinks
func NewMultiSink(sinks ...ledger.AuditSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Record delivers rec to every sink and joins their errors
func (m *MultiSink) Record(ctx context.Context, rec ledger.AuditRecord) error {
	var errs []error
	for i, sink := range m.sinks {
		if err := safeRecord(ctx, sink, rec); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of sinks
func (m *MultiSink) Len() int {
	return len(m.sinks)
}

func safeRecord(ctx context.Context, sink ledger.AuditSink, rec ledger.AuditRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit sink panicked: %v", r)
		}
	}()
	return sink.Record(ctx, rec)
}

var (
	_ ledger.AuditSink = (*DatabaseSink)(nil)
	_ ledger.AuditSink = (*LogSink)(nil)
	_ ledger.AuditSink = (*MultiSink)(nil)
)

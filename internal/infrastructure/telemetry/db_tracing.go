package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bound variables in db.statement (dev only)
	SlowQueryThresh time.Duration // default: 200ms
	DBName          string        // default: "ledger"
}

// DBTracingPlugin installs otelgorm and annotates its spans with row counts
// and a slow-query event.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a database tracing plugin
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBName == "" {
		cfg.DBName = "ledger"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type queryStartKey struct{}

// Name implements gorm.Plugin
func (p *DBTracingPlugin) Name() string {
	return "ledger_tracing"
}

// Initialize implements gorm.Plugin
func (p *DBTracingPlugin) Initialize(db *gorm.DB) error {
	return p.Register(db)
}

// Register installs the plugin on db. It is a no-op when disabled.
func (p *DBTracingPlugin) Register(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	// annotate must run before otelgorm's after callback ends the span, so
	// these are registered first
	cb := db.Callback()
	processors := []struct {
		op     string
		before func(string) error
		after  func(string) error
	}{
		{"create", hook(cb.Create().Before("gorm:create"), p.markStart), hook(cb.Create().After("gorm:create"), p.annotate)},
		{"query", hook(cb.Query().Before("gorm:query"), p.markStart), hook(cb.Query().After("gorm:query"), p.annotate)},
		{"update", hook(cb.Update().Before("gorm:update"), p.markStart), hook(cb.Update().After("gorm:update"), p.annotate)},
		{"delete", hook(cb.Delete().Before("gorm:delete"), p.markStart), hook(cb.Delete().After("gorm:delete"), p.annotate)},
		{"row", hook(cb.Row().Before("gorm:row"), p.markStart), hook(cb.Row().After("gorm:row"), p.annotate)},
		{"raw", hook(cb.Raw().Before("gorm:raw"), p.markStart), hook(cb.Raw().After("gorm:raw"), p.annotate)},
	}
	for _, proc := range processors {
		if err := proc.before("ledger_tracing:before_" + proc.op); err != nil {
			return err
		}
		if err := proc.after("ledger_tracing:after_" + proc.op); err != nil {
			return err
		}
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBName)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

func hook(r registrar, fn func(*gorm.DB)) func(string) error {
	return func(name string) error {
		return r.Register(name, fn)
	}
}

func (p *DBTracingPlugin) markStart(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (p *DBTracingPlugin) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		RecordError(span, db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(attribute.Bool("db.slow_query", true))
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}

var _ gorm.Plugin = (*DBTracingPlugin)(nil)

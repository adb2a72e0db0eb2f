package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID     uint `gorm:"primaryKey"`
	Amount string
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func TestDBTracingPlugin_Disabled(t *testing.T) {
	db := openSQLite(t)
	p := NewDBTracingPlugin(DBTracingConfig{}, zap.NewNop())
	require.NoError(t, p.Register(db))

	_, ok := db.Plugins["otelgorm"]
	assert.False(t, ok)
}

func TestDBTracingPlugin_AnnotatesSpans(t *testing.T) {
	sr := setupTestTracer(t)
	db := openSQLite(t)

	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: time.Nanosecond}, zap.NewNop())
	require.NoError(t, p.Register(db))

	ctx, parent := StartSpan(context.Background(), "test.parent")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Amount: "10.00"}).Error)
	var rows []tracedRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	err := db.WithContext(ctx).Table("missing_table").Find(&rows).Error
	require.Error(t, err)
	parent.End()

	var dbSpans int
	var sawSlow, sawError bool
	for _, s := range sr.Ended() {
		if s.Name() == "test.parent" {
			continue
		}
		dbSpans++
		attrs := attrMap(s.Attributes())
		if attrs["db.slow_query"] == "true" {
			sawSlow = true
		}
		if s.Status().Description != "" {
			sawError = true
		}
		assert.Equal(t, parent.SpanContext().TraceID(), s.SpanContext().TraceID())
	}
	assert.GreaterOrEqual(t, dbSpans, 3)
	assert.True(t, sawSlow)
	assert.True(t, sawError)
}

func TestDBTracingPlugin_Defaults(t *testing.T) {
	p := NewDBTracingPlugin(DBTracingConfig{Enabled: true}, zap.NewNop())
	assert.Equal(t, 200*time.Millisecond, p.config.SlowQueryThresh)
	assert.Equal(t, "ledger", p.config.DBName)
}

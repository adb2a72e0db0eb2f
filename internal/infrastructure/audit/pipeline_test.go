package audit

import (
	"context"
	"testing"

	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewPipeline(t *testing.T) {
	t.Run("database and log sinks", func(t *testing.T) {
		repo := new(mockAppender)
		repo.On("Append", mock.Anything, mock.Anything).Return(nil).Once()

		p, err := NewPipeline(config.AuditConfig{Sinks: []string{"database", " LOG "}, QueueSize: 8}, repo, zap.NewNop())
		require.NoError(t, err)
		assert.Nil(t, p.kafka)

		p.Start()
		require.NoError(t, p.Record(context.Background(), testRecord(ledger.OutcomeSuccess)))
		require.NoError(t, p.Stop(context.Background()))
		require.NoError(t, p.Close())
		repo.AssertExpectations(t)
	})

	t.Run("kafka sink", func(t *testing.T) {
		p, err := NewPipeline(config.AuditConfig{
			Sinks:        []string{"kafka"},
			KafkaBrokers: []string{"localhost:9092"},
			KafkaTopic:   "ledger.audit",
		}, nil, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, p.kafka)
		assert.NoError(t, p.Close())
	})

	t.Run("no sinks falls back to log", func(t *testing.T) {
		p, err := NewPipeline(config.AuditConfig{}, nil, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, p.Dispatcher)
	})

	errorCases := []struct {
		name string
		cfg  config.AuditConfig
	}{
		{"unknown sink", config.AuditConfig{Sinks: []string{"s3"}}},
		{"database without repository", config.AuditConfig{Sinks: []string{"database"}}},
		{"kafka without brokers", config.AuditConfig{Sinks: []string{"kafka"}, KafkaTopic: "t"}},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPipeline(tc.cfg, nil, zap.NewNop())
			assert.Error(t, err)
		})
	}
}

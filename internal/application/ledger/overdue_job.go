package ledger

import (
	"context"

	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/infrastructure/logger"
	"github.com/ledgerly/backend/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// OverdueSweepExecutor runs the overdue payment check as a scheduler job
// under a fixed service identity
type OverdueSweepExecutor struct {
	service *PaymentStatusService
	actor   ledger.Actor
	logger  *zap.Logger
}

// NewOverdueSweepExecutor creates an executor acting as actor
func NewOverdueSweepExecutor(service *PaymentStatusService, actor ledger.Actor, log *zap.Logger) *OverdueSweepExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &OverdueSweepExecutor{service: service, actor: actor, logger: log}
}

// Execute implements scheduler.JobExecutor
func (e *OverdueSweepExecutor) Execute(ctx context.Context, job *scheduler.Job) error {
	result, err := e.service.CheckOverduePayments(ctx, e.actor)
	if err != nil {
		return err
	}
	logger.WithLogger(ctx, e.logger).Info("Overdue sweep job finished",
		zap.String("job_id", job.ID.String()),
		zap.Time("run_date", job.RunDate),
		zap.Int("checked", result.Checked),
		zap.Int("marked", len(result.Marked)),
	)
	return nil
}

var _ scheduler.JobExecutor = (*OverdueSweepExecutor)(nil)

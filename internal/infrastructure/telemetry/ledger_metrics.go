package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a nil meter is provided
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Metric attribute keys
var (
	AttrKeyOperation       = attribute.Key("operation")
	AttrKeyOutcome         = attribute.Key("outcome")
	AttrKeyTransactionType = attribute.Key("transaction_type")
	AttrKeyPaymentStatus   = attribute.Key("payment_status")
	AttrKeyRuleCode        = attribute.Key("rule_code")
)

// AuditStats exposes the audit dispatcher counters for observation
type AuditStats interface {
	Pending() int
	Dropped() int64
	Failed() int64
}

// LedgerMetrics holds the ledger engine's instruments
type LedgerMetrics struct {
	operations     metric.Int64Counter
	duration       metric.Float64Histogram
	violations     metric.Int64Counter
	entryAmount    metric.Float64Counter
	paymentAmount  metric.Float64Counter
	conflictRetry  metric.Int64Counter
	overdueMarked  metric.Int64Counter
	auditRegistrar metric.Registration
}

// NewLedgerMetrics creates the instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &LedgerMetrics{}
	var err error

	if m.operations, err = meter.Int64Counter("ledger_operations_total",
		metric.WithDescription("Ledger write operations by outcome"),
		metric.WithUnit("{operations}")); err != nil {
		return nil, instrumentError("ledger_operations_total", err)
	}
	if m.duration, err = meter.Float64Histogram("ledger_operation_duration_seconds",
		metric.WithDescription("Ledger write operation latency including lock wait"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5)); err != nil {
		return nil, instrumentError("ledger_operation_duration_seconds", err)
	}
	if m.violations, err = meter.Int64Counter("ledger_rule_violations_total",
		metric.WithDescription("Business rule violations by rule code"),
		metric.WithUnit("{violations}")); err != nil {
		return nil, instrumentError("ledger_rule_violations_total", err)
	}
	if m.entryAmount, err = meter.Float64Counter("ledger_entry_amount_total",
		metric.WithDescription("Sum of ledger entry amounts by transaction type"),
		metric.WithUnit("{currency}")); err != nil {
		return nil, instrumentError("ledger_entry_amount_total", err)
	}
	if m.paymentAmount, err = meter.Float64Counter("ledger_payment_amount_total",
		metric.WithDescription("Sum of recorded payment amounts"),
		metric.WithUnit("{currency}")); err != nil {
		return nil, instrumentError("ledger_payment_amount_total", err)
	}
	if m.conflictRetry, err = meter.Int64Counter("ledger_concurrency_retries_total",
		metric.WithDescription("Writes retried after an optimistic lock conflict"),
		metric.WithUnit("{retries}")); err != nil {
		return nil, instrumentError("ledger_concurrency_retries_total", err)
	}
	if m.overdueMarked, err = meter.Int64Counter("ledger_payments_marked_overdue_total",
		metric.WithDescription("Payments moved to OVERDUE by the sweep"),
		metric.WithUnit("{payments}")); err != nil {
		return nil, instrumentError("ledger_payments_marked_overdue_total", err)
	}
	return m, nil
}

// ObserveAudit registers gauges reading the dispatcher counters at collection
func (m *LedgerMetrics) ObserveAudit(meter metric.Meter, stats AuditStats) error {
	pending, err := meter.Int64ObservableGauge("ledger_audit_queue_pending",
		metric.WithDescription("Audit records waiting for delivery"))
	if err != nil {
		return instrumentError("ledger_audit_queue_pending", err)
	}
	dropped, err := meter.Int64ObservableCounter("ledger_audit_dropped_total",
		metric.WithDescription("Audit records dropped before delivery"))
	if err != nil {
		return instrumentError("ledger_audit_dropped_total", err)
	}
	failed, err := meter.Int64ObservableCounter("ledger_audit_failed_total",
		metric.WithDescription("Audit deliveries rejected by a sink"))
	if err != nil {
		return instrumentError("ledger_audit_failed_total", err)
	}

	m.auditRegistrar, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(pending, int64(stats.Pending()))
		o.ObserveInt64(dropped, stats.Dropped())
		o.ObserveInt64(failed, stats.Failed())
		return nil
	}, pending, dropped, failed)
	if err != nil {
		return fmt.Errorf("failed to register audit metrics callback: %w", err)
	}
	return nil
}

// Stop unregisters observable callbacks
func (m *LedgerMetrics) Stop() {
	if m != nil && m.auditRegistrar != nil {
		_ = m.auditRegistrar.Unregister()
	}
}

// RecordOperation counts one write operation and its latency. outcome is
// SUCCESS, VIOLATION or FAILURE.
func (m *LedgerMetrics) RecordOperation(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrKeyOperation.String(operation), AttrKeyOutcome.String(outcome))
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordViolation counts a rule violation
func (m *LedgerMetrics) RecordViolation(ctx context.Context, operation, ruleCode string) {
	if m == nil {
		return
	}
	m.violations.Add(ctx, 1, metric.WithAttributes(AttrKeyOperation.String(operation), AttrKeyRuleCode.String(ruleCode)))
}

// RecordEntry adds a created entry's amount
func (m *LedgerMetrics) RecordEntry(ctx context.Context, transactionType string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.entryAmount.Add(ctx, amount.InexactFloat64(), metric.WithAttributes(AttrKeyTransactionType.String(transactionType)))
}

// RecordPayment adds a recorded payment's amount
func (m *LedgerMetrics) RecordPayment(ctx context.Context, status string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentAmount.Add(ctx, amount.InexactFloat64(), metric.WithAttributes(AttrKeyPaymentStatus.String(status)))
}

// RecordConflictRetry counts one optimistic lock retry
func (m *LedgerMetrics) RecordConflictRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.conflictRetry.Add(ctx, 1, metric.WithAttributes(AttrKeyOperation.String(operation)))
}

// RecordOverdueMarked counts payments moved to OVERDUE
func (m *LedgerMetrics) RecordOverdueMarked(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.overdueMarked.Add(ctx, int64(n))
}

func instrumentError(name string, err error) error {
	return fmt.Errorf("failed to create instrument %s: %w", name, err)
}

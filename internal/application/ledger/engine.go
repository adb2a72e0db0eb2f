// Package ledger holds the ledger application services: entry bookkeeping,
// payment recording and allocation, and the payment status workflow.
//
// Every write follows the same path: take the per-customer lock, open a
// unit of work, reload and mutate the rows, recompute derived amounts from
// the rows, save under an optimistic version check and commit. A version
// conflict rolls the unit of work back and replays it. Each mutating call
// emits exactly one audit record once its outcome is known.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/domain/shared"
	"github.com/ledgerly/backend/internal/infrastructure/lock"
	"github.com/ledgerly/backend/internal/infrastructure/logger"
	"github.com/ledgerly/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Locker serializes work per key
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

const (
	defaultMaxRetries     = 3
	defaultIdempotencyTTL = 24 * time.Hour
)

// Engine carries the collaborators shared by the ledger services
type Engine struct {
	uow            ledger.UnitOfWork
	reads          ledger.Repositories
	locker         Locker
	rules          *ledger.RuleValidator
	audit          ledger.AuditSink
	metrics        *telemetry.LedgerMetrics
	logger         *zap.Logger
	maxRetries     int
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithAuditSink sets the audit destination (default: discard)
func WithAuditSink(sink ledger.AuditSink) EngineOption {
	return func(e *Engine) {
		if sink != nil {
			e.audit = sink
		}
	}
}

// WithMetrics sets the ledger instruments
func WithMetrics(m *telemetry.LedgerMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxRetries sets how often a write is replayed after a version conflict
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithIdempotencyStore enables idempotency keys on payment recording
func WithIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.idempotency = store
		if ttl > 0 {
			e.idempotencyTTL = ttl
		}
	}
}

// NewEngine creates an Engine. reads are repositories outside any unit of
// work, used for queries and for resolving which customer a write locks.
func NewEngine(uow ledger.UnitOfWork, reads ledger.Repositories, locker Locker, rules *ledger.RuleValidator, opts ...EngineOption) *Engine {
	e := &Engine{
		uow:            uow,
		reads:          reads,
		locker:         locker,
		rules:          rules,
		audit:          ledger.NopAuditSink,
		logger:         zap.NewNop(),
		maxRetries:     defaultMaxRetries,
		idempotencyTTL: defaultIdempotencyTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the validator the engine checks writes with
func (e *Engine) Rules() *ledger.RuleValidator {
	return e.rules
}

// operation tracks one audited call from begin to finish
type operation struct {
	name        string
	action      string
	entityType  string
	entityID    *uuid.UUID
	actor       ledger.Actor
	before      any
	after       any
	description string
	span        trace.Span
	started     time.Time
}

func (op *operation) target(id uuid.UUID) {
	op.entityID = &id
}

// begin opens the span for a mutating call
func (e *Engine) begin(ctx context.Context, service, method, action, entityType string, actor ledger.Actor) (context.Context, *operation) {
	ctx, span := telemetry.StartServiceSpan(ctx, service, method,
		telemetry.WithAttribute(telemetry.AttrActorID, actor.ID),
	)
	ctx, _ = logger.WithActorID(ctx, e.logger, actor.ID.String())
	return ctx, &operation{
		name:       service + "." + method,
		action:     action,
		entityType: entityType,
		actor:      actor,
		span:       span,
		started:    time.Now(),
	}
}

// finish records metrics, emits the audit record and ends the span
func (e *Engine) finish(ctx context.Context, op *operation, err error) {
	outcome := ledger.OutcomeSuccess
	if err != nil {
		outcome = ledger.OutcomeFailure
		if _, ok := ledger.AsRuleViolation(err); ok {
			outcome = ledger.OutcomeViolation
		}
	}

	e.metrics.RecordOperation(ctx, op.name, string(outcome), time.Since(op.started))
	if outcome == ledger.OutcomeViolation {
		e.metrics.RecordViolation(ctx, op.name, shared.ErrorCode(err))
		telemetry.SetAttributes(op.span, telemetry.AttrRuleCode, shared.ErrorCode(err))
	}

	rec := ledger.AuditRecord{
		Action:      op.action,
		EntityType:  op.entityType,
		EntityID:    op.entityID,
		Description: op.description,
		Outcome:     outcome,
	}
	if err == nil {
		rec.OldSnapshot = snapshot(op.before)
		rec.NewSnapshot = snapshot(op.after)
	} else {
		rec.RuleCode = shared.ErrorCode(err)
		rec.ErrorMessage = err.Error()
	}
	e.record(ctx, op.actor, rec)

	telemetry.EndSpan(op.span, &err)
}

// record stamps and emits one audit record. Sink failures are logged only.
func (e *Engine) record(ctx context.Context, actor ledger.Actor, rec ledger.AuditRecord) {
	rec.ID = uuid.New()
	rec.ActorID = actor.ID
	rec.ActorName = actor.Name
	rec.OccurredAt = e.rules.Now()
	if err := e.audit.Record(ctx, rec); err != nil {
		logger.WithLogger(ctx, e.logger).Warn("Failed to record audit event",
			zap.String("action", rec.Action),
			zap.String("entity_type", rec.EntityType),
			zap.Error(err),
		)
	}
}

func snapshot(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// write runs fn in a unit of work while holding the customer's lock and
// replays it on optimistic version conflicts. fn must reload everything it
// mutates since it may run more than once.
func (e *Engine) write(ctx context.Context, op *operation, customerID uuid.UUID, fn func(ctx context.Context, repos ledger.Repositories) error) error {
	ctx, _ = logger.WithCustomerID(ctx, e.logger, customerID.String())
	return e.locker.WithLock(ctx, lock.CustomerKey(customerID), func(ctx context.Context) error {
		for attempt := 0; ; attempt++ {
			err := e.uow.Do(ctx, fn)
			if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= e.maxRetries {
				return err
			}
			e.metrics.RecordConflictRetry(ctx, op.name)
			telemetry.AddEvent(op.span, "concurrency_retry", telemetry.AttrAttempt, attempt+1)
			logger.WithLogger(ctx, e.logger).Warn("Retrying ledger write after version conflict",
				zap.String("operation", op.name),
				zap.String("customer_id", customerID.String()),
				zap.Int("attempt", attempt+1),
			)
		}
	})
}

// refreshBalance recomputes the customer's balance from its active entries
// and saves it under the version check
func refreshBalance(ctx context.Context, repos ledger.Repositories, c *ledger.Customer) (ledger.EntryTotals, error) {
	totals, err := repos.Entries.Totals(ctx, c.ID)
	if err != nil {
		return totals, err
	}
	c.RefreshBalance(totals.Balance())
	if err := repos.Customers.SaveWithLock(ctx, c); err != nil {
		return totals, err
	}
	return totals, nil
}

// settledAgainst sums the non-reversed applications against one entry
func settledAgainst(ctx context.Context, repos ledger.Repositories, entryID uuid.UUID) (decimal.Decimal, error) {
	sums, err := repos.Applications.SumEffectiveByEntries(ctx, []uuid.UUID{entryID})
	if err != nil {
		return decimal.Zero, err
	}
	return sums[entryID], nil
}

func requireActor(actor ledger.Actor) error {
	if actor.IsZero() {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "An acting identity is required")
	}
	return nil
}

// query runs a read under a span
func query[T any](ctx context.Context, service, method string, fn func(ctx context.Context) (T, error)) (result T, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, service, method)
	defer telemetry.EndSpan(span, &err)
	return fn(ctx)
}

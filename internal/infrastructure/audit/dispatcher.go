package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgerly/backend/internal/domain/ledger"
	"go.uber.org/zap"
)

// DispatcherConfig configures the asynchronous dispatcher
type DispatcherConfig struct {
	// QueueSize bounds the number of records waiting for delivery
	QueueSize int
	// DeliveryTimeout bounds a single delivery to the downstream sink
	DeliveryTimeout time.Duration
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:       1024,
		DeliveryTimeout: 5 * time.Second,
	}
}

type queued struct {
	ctx context.Context
	rec ledger.AuditRecord
}

// Dispatcher is an AuditSink that queues records and delivers them to the
// downstream sink from a background goroutine. A full queue drops the record
// and logs it; Record never blocks the caller.
type Dispatcher struct {
	sink    ledger.AuditSink
	config  DispatcherConfig
	logger  *zap.Logger
	onDrop  func(ledger.AuditRecord)
	queue   chan queued
	dropped atomic.Int64
	failed  atomic.Int64

	mu       sync.RWMutex
	stopped  bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDropHandler registers fn to be called for each record that could not
// be queued or delivered
func WithDropHandler(fn func(ledger.AuditRecord)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onDrop = fn
	}
}

// NewDispatcher creates a dispatcher delivering to sink. Call Start before use.
func NewDispatcher(sink ledger.AuditSink, config DispatcherConfig, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	def := DefaultDispatcherConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = def.DeliveryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sink:   sink,
		config: config,
		logger: logger,
		onDrop: func(ledger.AuditRecord) {},
		queue:  make(chan queued, config.QueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the delivery goroutine
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.deliverLoop()
	d.logger.Info("audit dispatcher started", zap.Int("queue_size", d.config.QueueSize))
}

// Record queues rec for delivery. The caller's context values (trace and
// request ids) are kept but its cancellation is not.
func (d *Dispatcher) Record(ctx context.Context, rec ledger.AuditRecord) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.drop(rec, "dispatcher stopped")
		return nil
	}
	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), rec: rec}:
	default:
		d.drop(rec, "queue full")
	}
	return nil
}

// Stop stops accepting records and waits for queued ones to be delivered,
// or for ctx to end
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("audit dispatcher stopped",
			zap.Int64("dropped", d.dropped.Load()),
			zap.Int64("failed", d.failed.Load()),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many records were discarded because the queue was full
// or the dispatcher was stopped
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Failed returns how many deliveries the downstream sink rejected
func (d *Dispatcher) Failed() int64 {
	return d.failed.Load()
}

// Pending returns the number of queued records
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) deliverLoop() {
	defer d.wg.Done()
	for item := range d.queue {
		d.deliver(item)
	}
}

func (d *Dispatcher) deliver(item queued) {
	ctx, cancel := context.WithTimeout(item.ctx, d.config.DeliveryTimeout)
	defer cancel()

	if err := safeRecord(ctx, d.sink, item.rec); err != nil {
		d.failed.Add(1)
		d.onDrop(item.rec)
		d.logger.Error("failed to deliver audit record",
			zap.String("action", item.rec.Action),
			zap.String("entity_type", item.rec.EntityType),
			zap.String("outcome", string(item.rec.Outcome)),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) drop(rec ledger.AuditRecord, reason string) {
	d.dropped.Add(1)
	d.onDrop(rec)
	d.logger.Warn("audit record dropped",
		zap.String("reason", reason),
		zap.String("action", rec.Action),
		zap.String("entity_type", rec.EntityType),
		zap.String("outcome", string(rec.Outcome)),
	)
}

var _ ledger.AuditSink = (*Dispatcher)(nil)

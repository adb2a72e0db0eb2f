package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

// MessageWriter is the subset of *kafka.Writer the sink needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BreakerSettings configures the circuit breaker guarding the broker
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings returns the settings used for unset fields
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     30 * time.Second,
		Timeout:      10 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// KafkaSink publishes records as JSON to a Kafka topic, keyed by entity so
// one entity's records stay ordered within a partition. While the breaker is
// open, records fail fast instead of waiting on an unreachable broker.
type KafkaSink struct {
	writer  MessageWriter
	breaker *gobreaker.CircuitBreaker
}

// NewKafkaWriter creates a writer for topic on brokers
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafkaSink creates a sink over writer guarded by a breaker named name
func NewKafkaSink(writer MessageWriter, name string, settings BreakerSettings) *KafkaSink {
	def := DefaultBreakerSettings()
	if settings.MaxRequests == 0 {
		settings.MaxRequests = def.MaxRequests
	}
	if settings.Interval <= 0 {
		settings.Interval = def.Interval
	}
	if settings.Timeout <= 0 {
		settings.Timeout = def.Timeout
	}
	if settings.MinRequests == 0 {
		settings.MinRequests = def.MinRequests
	}
	if settings.FailureRatio <= 0 {
		settings.FailureRatio = def.FailureRatio
	}

	return &KafkaSink{
		writer: writer,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: settings.MaxRequests,
			Interval:    settings.Interval,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < settings.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
			},
		}),
	}
}

// Record publishes rec
func (s *KafkaSink) Record(ctx context.Context, rec ledger.AuditRecord) error {
	msg, err := toMessage(rec)
	if err != nil {
		return err
	}
	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}
	return nil
}

// State reports the breaker state
func (s *KafkaSink) State() gobreaker.State {
	return s.breaker.State()
}

// Close flushes and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

type auditMessage struct {
	ID           string          `json:"id"`
	Action       string          `json:"action"`
	EntityType   string          `json:"entity_type"`
	EntityID     string          `json:"entity_id,omitempty"`
	OldSnapshot  json.RawMessage `json:"old_snapshot,omitempty"`
	NewSnapshot  json.RawMessage `json:"new_snapshot,omitempty"`
	Description  string          `json:"description,omitempty"`
	ActorID      string          `json:"actor_id"`
	ActorName    string          `json:"actor_name,omitempty"`
	Outcome      ledger.Outcome  `json:"outcome"`
	RuleCode     string          `json:"rule_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

func toMessage(rec ledger.AuditRecord) (kafka.Message, error) {
	body := auditMessage{
		ID:           rec.ID.String(),
		Action:       rec.Action,
		EntityType:   rec.EntityType,
		Description:  rec.Description,
		ActorID:      rec.ActorID.String(),
		ActorName:    rec.ActorName,
		Outcome:      rec.Outcome,
		RuleCode:     rec.RuleCode,
		ErrorMessage: rec.ErrorMessage,
		OccurredAt:   rec.OccurredAt,
	}
	key := rec.EntityType
	if rec.EntityID != nil {
		body.EntityID = rec.EntityID.String()
		key = body.EntityID
	}
	if rec.OldSnapshot != "" {
		body.OldSnapshot = json.RawMessage(rec.OldSnapshot)
	}
	if rec.NewSnapshot != "" {
		body.NewSnapshot = json.RawMessage(rec.NewSnapshot)
	}

	value, err := json.Marshal(body)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode audit record: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(rec.Action)},
			{Key: "outcome", Value: []byte(rec.Outcome)},
		},
		Time: rec.OccurredAt,
	}, nil
}

var _ ledger.AuditSink = (*KafkaSink)(nil)

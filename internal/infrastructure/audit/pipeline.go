package audit

import (
	"fmt"
	"strings"

	"github.com/ledgerly/backend/internal/domain/ledger"
	"github.com/ledgerly/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Pipeline is the configured sink chain: a Dispatcher in front of a
// MultiSink over the enabled destinations
type Pipeline struct {
	*Dispatcher
	kafka *KafkaSink
}

// NewPipeline builds the sinks named in cfg.Sinks. The database sink writes
// through repo.
func NewPipeline(cfg config.AuditConfig, repo Appender, logger *zap.Logger, opts ...DispatcherOption) (*Pipeline, error) {
	p := &Pipeline{}
	var sinks []ledger.AuditSink

	for _, name := range cfg.Sinks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "database":
			if repo == nil {
				return nil, fmt.Errorf("audit sink %q needs a repository", name)
			}
			sinks = append(sinks, NewDatabaseSink(repo))
		case "log":
			sinks = append(sinks, NewLogSink(logger))
		case "kafka":
			if len(cfg.KafkaBrokers) == 0 || cfg.KafkaTopic == "" {
				return nil, fmt.Errorf("audit sink %q needs brokers and a topic", name)
			}
			p.kafka = NewKafkaSink(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), "audit-kafka", BreakerSettings{
				MaxRequests:  cfg.BreakerMaxRequests,
				Interval:     cfg.BreakerInterval,
				Timeout:      cfg.BreakerTimeout,
				MinRequests:  cfg.BreakerMinRequests,
				FailureRatio: cfg.BreakerFailureRatio,
			})
			sinks = append(sinks, p.kafka)
		default:
			return nil, fmt.Errorf("unknown audit sink %q", name)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, NewLogSink(logger))
	}

	p.Dispatcher = NewDispatcher(NewMultiSink(sinks...), DispatcherConfig{QueueSize: cfg.QueueSize}, logger, opts...)
	return p, nil
}

// Close releases the Kafka writer, if any. Stop the dispatcher first.
func (p *Pipeline) Close() error {
	if p.kafka != nil {
		return p.kafka.Close()
	}
	return nil
}

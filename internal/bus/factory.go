package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/pkg/logger"
)

// Defaults for Kafka identification.
const (
	DefaultClientID      = "tbe-engine"
	DefaultConsumerGroup = "tbe"
)

// Config selects the bus implementation.
type Config struct {
	Type         string `yaml:"type" envconfig:"TBE_BUS_TYPE"`
	KafkaBrokers string `yaml:"kafka_brokers" envconfig:"TBE_BUS_KAFKA_BROKERS"`
	KafkaGroup   string `yaml:"kafka_group" envconfig:"TBE_BUS_KAFKA_GROUP"`
	KafkaVersion string `yaml:"kafka_version" envconfig:"TBE_BUS_KAFKA_VERSION"`
	// JournalPath enables the audit journal when set.
	JournalPath string `yaml:"journal_path" envconfig:"TBE_BUS_JOURNAL_PATH"`
}

// NewBus builds the bus named by cfg.Type: "memory" (default), "kafka", or
// "none" which drops every event. The result is journaled when
// cfg.JournalPath is set and instrumented when m is non-nil.
func NewBus(cfg Config, m MetricsRecorder, log *logger.Logger) (Bus, error) {
	var b Bus
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		b = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}
		group := cfg.KafkaGroup
		if group == "" {
			group = DefaultConsumerGroup
		}
		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: group,
			ClientID:      DefaultClientID,
			Version:       cfg.KafkaVersion,
		}, log)
		if err != nil {
			return nil, err
		}
		b = kb

	case "none":
		b = Nop{}

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.JournalPath != "" {
		j, err := OpenJournal(cfg.JournalPath)
		if err != nil {
			b.Close()
			return nil, err
		}
		b = NewJournaledBus(b, j, log)
	}
	if m != nil {
		b = NewInstrumentedBus(b, m)
	}
	return b, nil
}

// Nop is a bus that drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error     { return nil }
func (Nop) Subscribe(context.Context, string, Handler) error { return nil }
func (Nop) Close() error                                     { return nil }

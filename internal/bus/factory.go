package bus

import (
	"fmt"
	"strings"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
)

// FactoryConfig selects and configures a bus implementation.
type FactoryConfig struct {
	// Type is "memory" or "kafka".
	Type string

	// Brokers lists Kafka broker addresses, required for the kafka type.
	Brokers []string

	// ConsumerGroup overrides the default Kafka consumer group.
	ConsumerGroup string
}

// New creates a Bus instance from the configuration. An empty type
// defaults to the in-memory bus.
func New(cfg FactoryConfig) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(), nil

	case "kafka":
		if len(cfg.Brokers) == 0 {
			return nil, apperrors.ValidationError("kafka brokers not configured")
		}

		consumerGroup := cfg.ConsumerGroup
		if consumerGroup == "" {
			consumerGroup = "table-fill"
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       cfg.Brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "table-fill-bus",
		})

	default:
		return nil, apperrors.ValidationError(fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
}

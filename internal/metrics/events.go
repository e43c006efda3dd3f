package metrics

import (
	"context"

	"github.com/procurepro/tbe/internal/bus"
)

// EventSubscriber counts evaluation events delivered by the bus. With the
// Kafka bus this reflects events from every engine instance in the group.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates a new event subscriber.
func NewEventSubscriber(m *Metrics, b bus.Bus) *EventSubscriber {
	return &EventSubscriber{metrics: m, bus: b}
}

// Subscribe registers a counting handler on every evaluation topic.
func (es *EventSubscriber) Subscribe(ctx context.Context) error {
	for _, topic := range bus.Topics() {
		t := topic
		err := es.bus.Subscribe(ctx, t, func(ctx context.Context, e bus.Event) error {
			es.metrics.RecordBusConsume(t)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/mqtt"
)

// Transport is the broker connection used by MQTTBus.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTBus publishes each event as JSON on <prefix>/<event type>. Each event
// type with local subscribers is bound to one broker subscription; the
// wildcard type binds <prefix>/#. Publishing does not dispatch locally:
// local handlers see an event only when the broker echoes it back.
type MQTTBus struct {
	transport Transport
	prefix    string
	source    string
	clock     clock.Clock
	log       *logger.Logger
	handlers  *LocalBus

	mu    sync.Mutex
	bound map[string]bool
}

func NewMQTTBus(transport Transport, prefix, source string, clk clock.Clock, log *logger.Logger) *MQTTBus {
	if clk == nil {
		clk = clock.New()
	}
	return &MQTTBus{
		transport: transport,
		prefix:    prefix,
		source:    source,
		clock:     clk,
		log:       log,
		handlers:  NewLocalBus(source, clk, log),
		bound:     make(map[string]bool),
	}
}

func (b *MQTTBus) topicFor(eventType models.EventType) string {
	if eventType == models.EventWildcard {
		return b.prefix + "/#"
	}
	return b.prefix + "/" + string(eventType)
}

func (b *MQTTBus) Publish(ctx context.Context, eventType models.EventType, payload interface{}) error {
	event, err := newEvent(b.clock, b.source, eventType, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", eventType, err)
	}

	if err := b.transport.Publish(b.topicFor(eventType), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

func (b *MQTTBus) Subscribe(eventType models.EventType, handler Handler) (SubscriptionID, error) {
	id, err := b.handlers.Subscribe(eventType, handler)
	if err != nil {
		return 0, err
	}

	topic := b.topicFor(eventType)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound[topic] {
		return id, nil
	}

	if err := b.transport.Subscribe(topic, b.receiver(eventType)); err != nil {
		_, _ = b.handlers.remove(id)
		return 0, fmt.Errorf("failed to bind %s: %w", topic, err)
	}
	b.bound[topic] = true

	return id, nil
}

func (b *MQTTBus) Unsubscribe(id SubscriptionID) error {
	eventType, err := b.handlers.remove(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	topic := b.topicFor(eventType)
	if b.handlers.count(eventType) > 0 || !b.bound[topic] {
		return nil
	}

	delete(b.bound, topic)
	return b.transport.Unsubscribe(topic)
}

func (b *MQTTBus) receiver(eventType models.EventType) mqtt.MessageHandler {
	binding := b.topicFor(eventType)

	return func(topic string, payload []byte) error {
		if !mqtt.MatchTopic(binding, topic) {
			return nil
		}

		var event models.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("malformed event on %s: %w", topic, err)
		}

		b.handlers.dispatchTo(context.Background(), event, eventType)
		return nil
	}
}

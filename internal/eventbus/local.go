package eventbus

import (
	"context"
	"fmt"
	"sync"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
)

type subscription struct {
	id        SubscriptionID
	eventType models.EventType
	handler   Handler
}

// LocalBus invokes handlers synchronously on the publishing goroutine:
// handlers for the event type in registration order, then wildcard
// handlers in registration order. A failing or panicking handler is logged
// and does not stop the rest.
type LocalBus struct {
	source string
	clock  clock.Clock
	log    *logger.Logger

	mu     sync.RWMutex
	nextID SubscriptionID
	subs   []subscription
}

func NewLocalBus(source string, clk clock.Clock, log *logger.Logger) *LocalBus {
	if clk == nil {
		clk = clock.New()
	}
	return &LocalBus{source: source, clock: clk, log: log}
}

func (b *LocalBus) Publish(ctx context.Context, eventType models.EventType, payload interface{}) error {
	event, err := newEvent(b.clock, b.source, eventType, payload)
	if err != nil {
		return err
	}
	b.Dispatch(ctx, event)
	return nil
}

// Dispatch delivers an already-built event. MQTTBus uses it for events
// received from the broker.
func (b *LocalBus) Dispatch(ctx context.Context, event models.Event) {
	for _, s := range b.handlersFor(event.Type) {
		b.invoke(ctx, s, event)
	}
}

// dispatchTo delivers event only to handlers registered under subType.
func (b *LocalBus) dispatchTo(ctx context.Context, event models.Event, subType models.EventType) {
	b.mu.RLock()
	matched := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.eventType == subType {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		b.invoke(ctx, s, event)
	}
}

func (b *LocalBus) handlersFor(eventType models.EventType) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.eventType == eventType && eventType != models.EventWildcard {
			matched = append(matched, s)
		}
	}
	for _, s := range b.subs {
		if s.eventType == models.EventWildcard {
			matched = append(matched, s)
		}
	}
	return matched
}

func (b *LocalBus) invoke(ctx context.Context, s subscription, event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler %d panicked on %s: %v", s.id, event.Type, r)
		}
	}()

	if err := s.handler(ctx, event); err != nil {
		b.log.Error("Event handler %d failed on %s: %v", s.id, event.Type, err)
	}
}

func (b *LocalBus) Subscribe(eventType models.EventType, handler Handler) (SubscriptionID, error) {
	if eventType == "" {
		return 0, fmt.Errorf("event type cannot be empty")
	}
	if handler == nil {
		return 0, fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, eventType: eventType, handler: handler})
	b.log.Debug("Subscribed handler %d to %s", b.nextID, eventType)
	return b.nextID, nil
}

func (b *LocalBus) Unsubscribe(id SubscriptionID) error {
	_, err := b.remove(id)
	return err
}

func (b *LocalBus) remove(id SubscriptionID) (models.EventType, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return s.eventType, nil
		}
	}
	return "", fmt.Errorf("subscription %d not found", id)
}

// count reports live subscriptions for eventType.
func (b *LocalBus) count(eventType models.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, s := range b.subs {
		if s.eventType == eventType {
			n++
		}
	}
	return n
}

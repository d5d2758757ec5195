// Package eventbus carries domain events between pipeline stages.
//
// LocalBus dispatches synchronously inside the process. MQTTBus offers the
// same Bus contract across processes with at-most-once delivery: no
// ordering between processes, no persistence, no replay.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/models"

	"github.com/google/uuid"
)

type Handler func(ctx context.Context, event models.Event) error

type SubscriptionID uint64

type Bus interface {
	Publish(ctx context.Context, eventType models.EventType, payload interface{}) error
	Subscribe(eventType models.EventType, handler Handler) (SubscriptionID, error)
	Unsubscribe(id SubscriptionID) error
}

func newEvent(clk clock.Clock, source string, eventType models.EventType, payload interface{}) (models.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return models.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   data,
		Timestamp: clk.Now(),
		Source:    source,
	}, nil
}

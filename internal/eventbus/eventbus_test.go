package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/mqtt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorder(calls *[]string, name string) Handler {
	return func(ctx context.Context, event models.Event) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestLocalBus_OrderTypeThenWildcard(t *testing.T) {
	bus := NewLocalBus("test", nil, logger.Nop())
	var calls []string

	_, _ = bus.Subscribe(models.EventWildcard, recorder(&calls, "wild-1"))
	_, _ = bus.Subscribe(models.EventAlertTriggered, recorder(&calls, "type-1"))
	_, _ = bus.Subscribe(models.EventAlertResolved, recorder(&calls, "other"))
	_, _ = bus.Subscribe(models.EventAlertTriggered, recorder(&calls, "type-2"))
	_, _ = bus.Subscribe(models.EventWildcard, recorder(&calls, "wild-2"))

	require.NoError(t, bus.Publish(context.Background(), models.EventAlertTriggered, models.AlertTriggeredPayload{AlertID: 1}))

	assert.Equal(t, []string{"type-1", "type-2", "wild-1", "wild-2"}, calls)
}

func TestLocalBus_PublishIsSynchronousAndCarriesPayload(t *testing.T) {
	clk := clock.NewMock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	bus := NewLocalBus("alert-service", clk, logger.Nop())

	var got models.Event
	_, _ = bus.Subscribe(models.EventAlertTriggered, func(ctx context.Context, event models.Event) error {
		got = event
		return nil
	})

	payload := models.AlertTriggeredPayload{AlertID: 7, ServerID: "s1", Type: models.AlertHighCPU, Severity: models.SeverityHigh}
	require.NoError(t, bus.Publish(context.Background(), models.EventAlertTriggered, payload))

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "alert-service", got.Source)
	assert.Equal(t, clk.Now(), got.Timestamp)

	var decoded models.AlertTriggeredPayload
	require.NoError(t, got.Decode(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestLocalBus_FailingHandlersDoNotStopOthers(t *testing.T) {
	bus := NewLocalBus("test", nil, logger.Nop())
	var calls []string

	_, _ = bus.Subscribe(models.EventAlertTriggered, func(context.Context, models.Event) error {
		return errors.New("boom")
	})
	_, _ = bus.Subscribe(models.EventAlertTriggered, func(context.Context, models.Event) error {
		panic("handler bug")
	})
	_, _ = bus.Subscribe(models.EventAlertTriggered, recorder(&calls, "survivor"))

	require.NoError(t, bus.Publish(context.Background(), models.EventAlertTriggered, nil))
	assert.Equal(t, []string{"survivor"}, calls)
}

func TestLocalBus_Unsubscribe(t *testing.T) {
	bus := NewLocalBus("test", nil, logger.Nop())
	var calls []string

	id, err := bus.Subscribe(models.EventAlertTriggered, recorder(&calls, "a"))
	require.NoError(t, err)
	_, _ = bus.Subscribe(models.EventAlertTriggered, recorder(&calls, "b"))

	require.NoError(t, bus.Unsubscribe(id))
	assert.Error(t, bus.Unsubscribe(id))

	_ = bus.Publish(context.Background(), models.EventAlertTriggered, nil)
	assert.Equal(t, []string{"b"}, calls)
}

func TestLocalBus_IndependentInstances(t *testing.T) {
	a := NewLocalBus("a", nil, logger.Nop())
	b := NewLocalBus("b", nil, logger.Nop())
	var calls []string

	_, _ = a.Subscribe(models.EventWildcard, recorder(&calls, "a"))
	_ = b.Publish(context.Background(), models.EventAlertTriggered, nil)
	assert.Empty(t, calls)
}

// loopback is an in-memory broker: every publish is delivered to all
// subscriptions whose pattern matches.
type loopback struct {
	mu     sync.Mutex
	subs   map[string]mqtt.MessageHandler
	topics []string
}

func newLoopback() *loopback {
	return &loopback{subs: make(map[string]mqtt.MessageHandler)}
}

func (l *loopback) Publish(topic string, payload []byte) error {
	l.mu.Lock()
	l.topics = append(l.topics, topic)
	var matched []mqtt.MessageHandler
	for pattern, h := range l.subs {
		if mqtt.MatchTopic(pattern, topic) {
			matched = append(matched, h)
		}
	}
	l.mu.Unlock()

	for _, h := range matched {
		_ = h(topic, payload)
	}
	return nil
}

func (l *loopback) Subscribe(topic string, handler mqtt.MessageHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[topic] = handler
	return nil
}

func (l *loopback) Unsubscribe(topic string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, topic)
	return nil
}

func TestMQTTBus_PublishSubscribeOverTopics(t *testing.T) {
	broker := newLoopback()
	publisher := NewMQTTBus(broker, "monitor/events", "alert-service", nil, logger.Nop())
	consumer := NewMQTTBus(broker, "monitor/events", "notification-service", nil, logger.Nop())

	var got []models.AlertTriggeredPayload
	var wildcard []models.EventType

	_, err := consumer.Subscribe(models.EventAlertTriggered, func(ctx context.Context, event models.Event) error {
		var p models.AlertTriggeredPayload
		require.NoError(t, event.Decode(&p))
		got = append(got, p)
		return nil
	})
	require.NoError(t, err)
	_, err = consumer.Subscribe(models.EventWildcard, func(ctx context.Context, event models.Event) error {
		wildcard = append(wildcard, event.Type)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(context.Background(), models.EventAlertTriggered,
		models.AlertTriggeredPayload{AlertID: 3, ServerID: "s1", Type: models.AlertHighCPU}))
	require.NoError(t, publisher.Publish(context.Background(), models.EventAlertResolved,
		models.AlertStatusPayload{AlertID: 3}))

	assert.Equal(t, []string{"monitor/events/alert.triggered", "monitor/events/alert.resolved"}, broker.topics)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].AlertID)
	assert.Equal(t, []models.EventType{models.EventAlertTriggered, models.EventAlertResolved}, wildcard)
}

func TestMQTTBus_UnsubscribeReleasesTopicWithLastHandler(t *testing.T) {
	broker := newLoopback()
	bus := NewMQTTBus(broker, "monitor/events", "svc", nil, logger.Nop())
	noop := func(context.Context, models.Event) error { return nil }

	first, _ := bus.Subscribe(models.EventAlertTriggered, noop)
	second, _ := bus.Subscribe(models.EventAlertTriggered, noop)
	assert.Len(t, broker.subs, 1)

	require.NoError(t, bus.Unsubscribe(first))
	assert.Len(t, broker.subs, 1)

	require.NoError(t, bus.Unsubscribe(second))
	assert.Empty(t, broker.subs)
}

func TestMQTTBus_MalformedMessageIsRejected(t *testing.T) {
	broker := newLoopback()
	bus := NewMQTTBus(broker, "monitor/events", "svc", nil, logger.Nop())

	called := false
	_, _ = bus.Subscribe(models.EventAlertTriggered, func(context.Context, models.Event) error {
		called = true
		return nil
	})

	handler := broker.subs["monitor/events/alert.triggered"]
	require.NotNil(t, handler)
	assert.Error(t, handler("monitor/events/alert.triggered", []byte("{not json")))
	assert.False(t, called)
}

package service

import (
	"context"
	"testing"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/eventbus"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/provider"
	"ServerMonitorAPI/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerFixture struct {
	repo   *memNotificationRepo
	email  *fakeProvider
	clock  *clock.Mock
	worker *DeliveryWorker
	events []models.EventType
}

func newWorkerFixture(t *testing.T, result provider.Result) *workerFixture {
	t.Helper()

	f := &workerFixture{
		repo:  newMemNotificationRepo(),
		email: &fakeProvider{result: result},
		clock: clock.NewMock(testNow),
	}
	registry := provider.NewRegistry()
	registry.Register(models.ChannelEmail, f.email)

	bus := eventbus.NewLocalBus("test", f.clock, logger.Nop())
	_, err := bus.Subscribe(models.EventWildcard, func(ctx context.Context, e models.Event) error {
		f.events = append(f.events, e.Type)
		return nil
	})
	require.NoError(t, err)

	f.worker = NewDeliveryWorker(f.repo, registry, bus, f.clock, logger.Nop())
	return f
}

func pendingEmail() models.Notification {
	return models.Notification{
		Type:        models.NotificationTypeAlert,
		Title:       "[HIGH] HIGH_CPU on s1",
		Message:     "High CPU: web-01 CPU usage is 92.00% (threshold 80.00%)",
		Recipient:   "ops@example.com",
		ChannelType: models.ChannelEmail,
		Priority:    models.SeverityHigh,
		Status:      models.NotificationPending,
		MaxRetries:  3,
		Metadata:    map[string]interface{}{"serverId": "s1", "alertId": int64(7), "alertType": "HIGH_CPU"},
		CreatedAt:   testNow,
	}
}

func TestDeliver_Success(t *testing.T) {
	f := newWorkerFixture(t, provider.Result{Success: true})
	id := f.repo.put(pendingEmail())

	require.NoError(t, f.worker.Handle(context.Background(), queue.Job{NotificationID: id, Attempt: 1}))

	n := f.repo.get(id)
	assert.Equal(t, models.NotificationSent, n.Status)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, testNow, *n.SentAt)
	assert.Nil(t, n.Error)

	require.Len(t, f.email.calls, 1)
	assert.Equal(t, "ops@example.com", f.email.calls[0].destination)
	assert.Equal(t, "[HIGH] HIGH_CPU on s1", f.email.calls[0].subject)

	assert.Equal(t, []models.LogEvent{models.LogSent}, f.repo.events(id))
	assert.Equal(t, []models.EventType{models.EventNotificationSent}, f.events)
}

func TestDeliver_ProviderFailureIsPersistedAndReturned(t *testing.T) {
	f := newWorkerFixture(t, provider.Result{Success: false, Error: "SMTP timeout"})
	id := f.repo.put(pendingEmail())

	err := f.worker.Deliver(context.Background(), id, 1)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindProvider))
	assert.False(t, apperror.IsPermanent(err))

	n := f.repo.get(id)
	assert.Equal(t, models.NotificationFailed, n.Status)
	require.NotNil(t, n.Error)
	assert.Equal(t, "SMTP timeout", *n.Error)
	require.NotNil(t, n.FailedAt)
	assert.Equal(t, testNow, *n.FailedAt)

	assert.Equal(t, []models.LogEvent{models.LogFailed}, f.repo.events(id))
	assert.Equal(t, []models.EventType{models.EventNotificationFailed}, f.events)
}

func TestDeliver_FailedNotificationBecomesSweepEligibleAfter15Minutes(t *testing.T) {
	f := newWorkerFixture(t, provider.Result{Success: false, Error: "SMTP timeout"})
	id := f.repo.put(pendingEmail())
	q := &fakeQueue{}
	svc := NewNotificationService(f.repo, q, 15*time.Minute, 0, f.clock, logger.Nop())
	ctx := context.Background()

	require.Error(t, f.worker.Deliver(ctx, id, 1))

	f.clock.Add(15*time.Minute - time.Second)
	n, err := svc.RetrySweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Add(time.Second)
	n, err = svc.RetrySweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{id}, q.enqueued())

	// the sweep does not count against the retry budget
	assert.Equal(t, 0, f.repo.get(id).RetryCount)
	assert.Equal(t, []models.LogEvent{models.LogFailed, models.LogRetried}, f.repo.events(id))
}

func TestDeliver_SkipsAlreadySent(t *testing.T) {
	f := newWorkerFixture(t, provider.Result{Success: true})
	n := pendingEmail()
	n.Status = models.NotificationSent
	id := f.repo.put(n)

	require.NoError(t, f.worker.Deliver(context.Background(), id, 1))
	assert.Empty(t, f.email.calls)
	assert.Empty(t, f.repo.events(id))
}

func TestDeliver_MissingNotificationIsPermanent(t *testing.T) {
	f := newWorkerFixture(t, provider.Result{Success: true})

	err := f.worker.Deliver(context.Background(), 99, 1)
	assert.True(t, apperror.IsPermanent(err))
}

func TestDeliver_UnregisteredChannelFailsPermanently(t *testing.T) {
	f := newWorkerFixture(t, provider.Result{Success: true})
	n := pendingEmail()
	n.ChannelType = models.ChannelWebhook
	id := f.repo.put(n)

	err := f.worker.Deliver(context.Background(), id, 1)
	assert.True(t, apperror.IsPermanent(err))
	assert.Equal(t, models.NotificationFailed, f.repo.get(id).Status)
}

func TestDeliver_RendersTemplate(t *testing.T) {
	f := newWorkerFixture(t, provider.Result{Success: true})
	f.repo.templates[4] = &models.NotificationTemplate{
		ID:      4,
		Subject: "Alert on {{serverId}}",
		Body:    "{{message}} [alert {{ alertId }}, {{unknown}}]",
	}

	n := pendingEmail()
	tmpl := int64(4)
	n.TemplateID = &tmpl
	id := f.repo.put(n)

	require.NoError(t, f.worker.Deliver(context.Background(), id, 1))
	require.Len(t, f.email.calls, 1)
	assert.Equal(t, "Alert on s1", f.email.calls[0].subject)
	assert.Equal(t, "High CPU: web-01 CPU usage is 92.00% (threshold 80.00%) [alert 7, {{unknown}}]", f.email.calls[0].content)
}

package service

import (
	"context"
	"fmt"
	"time"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/eventbus"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/queue"
	"ServerMonitorAPI/internal/repository"
	"ServerMonitorAPI/internal/validation"
)

// Enqueuer hands a notification to the delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, notificationID int64, delay time.Duration) (queue.Job, error)
}

// Matcher finds subscriptions for an alert.
type Matcher interface {
	Match(ctx context.Context, serverID string, kind models.AlertKind) ([]models.Subscription, error)
}

// NotificationDispatcher turns alert.triggered events into one pending
// notification per matching subscription and channel, and queues each for
// delivery. A redelivered event produces duplicate notifications.
type NotificationDispatcher struct {
	matcher    Matcher
	repo       repository.INotificationRepository
	directory  IDirectory
	queue      Enqueuer
	maxRetries int
	clock      clock.Clock
	log        *logger.Logger
}

func NewNotificationDispatcher(
	matcher Matcher,
	repo repository.INotificationRepository,
	directory IDirectory,
	q Enqueuer,
	maxRetries int,
	clk clock.Clock,
	log *logger.Logger,
) *NotificationDispatcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if clk == nil {
		clk = clock.New()
	}
	return &NotificationDispatcher{
		matcher:    matcher,
		repo:       repo,
		directory:  directory,
		queue:      q,
		maxRetries: maxRetries,
		clock:      clk,
		log:        log,
	}
}

// Register subscribes the dispatcher to alert.triggered on bus.
func (d *NotificationDispatcher) Register(bus eventbus.Bus) (eventbus.SubscriptionID, error) {
	return bus.Subscribe(models.EventAlertTriggered, d.HandleEvent)
}

func (d *NotificationDispatcher) HandleEvent(ctx context.Context, event models.Event) error {
	var payload models.AlertTriggeredPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.Type, err)
	}

	_, err := d.Dispatch(ctx, payload)
	return err
}

// Dispatch creates and queues notifications for alert. Invalid channels or
// notifications are logged and skipped without affecting other channels.
// It returns the notifications that were created.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, alert models.AlertTriggeredPayload) ([]models.Notification, error) {
	subs, err := d.matcher.Match(ctx, alert.ServerID, alert.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to match subscriptions for alert %d: %w", alert.AlertID, err)
	}

	created := []models.Notification{}
	for _, sub := range subs {
		for _, channel := range sub.Channels {
			n, err := d.createOne(ctx, alert, sub, channel)
			if err != nil {
				d.log.Warn("Skipping %s notification for user %s (alert %d): %v", channel, sub.UserID, alert.AlertID, err)
				continue
			}
			created = append(created, *n)
		}
	}

	if len(subs) > 0 {
		d.log.Info("Alert %d: %d notifications queued for %d subscriptions", alert.AlertID, len(created), len(subs))
	}
	return created, nil
}

func (d *NotificationDispatcher) createOne(ctx context.Context, alert models.AlertTriggeredPayload, sub models.Subscription, channelName string) (*models.Notification, error) {
	channel, err := models.ParseChannel(channelName)
	if err != nil {
		return nil, err
	}

	contact := Contact{Address: sub.UserID}
	if d.directory != nil {
		contact = d.directory.Contact(ctx, sub.UserID, channel)
	}

	n := &models.Notification{
		Type:        models.NotificationTypeAlert,
		Title:       fmt.Sprintf("[%s] %s on %s", alert.Severity, alert.Type, alert.ServerID),
		Message:     alert.Message,
		Recipient:   contact.Address,
		ChannelType: channel,
		Priority:    alert.Severity,
		Status:      models.NotificationPending,
		MaxRetries:  d.maxRetries,
		Metadata: map[string]interface{}{
			"serverId":  alert.ServerID,
			"alertId":   alert.AlertID,
			"alertType": string(alert.Type),
		},
		CreatedAt: d.clock.Now(),
	}
	if contact.Carrier != "" {
		n.Metadata["carrier"] = contact.Carrier
	}

	if err := validation.Struct(n); err != nil {
		return nil, err
	}

	if err := d.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	d.addLog(ctx, n.ID, models.LogQueued, map[string]interface{}{
		"channel":      string(channel),
		"subscription": sub.ID,
	})

	if _, err := d.queue.Enqueue(ctx, n.ID, 0); err != nil {
		// left failed so the retry sweep picks it up once the queue is back
		msg := fmt.Sprintf("enqueue failed: %v", err)
		now := d.clock.Now()
		if markErr := d.repo.MarkFailed(ctx, n.ID, msg, now); markErr != nil {
			d.log.Error("Failed to mark notification %d failed: %v", n.ID, markErr)
		}
		n.Status = models.NotificationFailed
		n.Error = &msg
		n.FailedAt = &now
		d.log.Error("Notification %d created but not queued: %v", n.ID, err)
	}

	return n, nil
}

func (d *NotificationDispatcher) addLog(ctx context.Context, id int64, event models.LogEvent, details map[string]interface{}) {
	entry := &models.NotificationLog{
		NotificationID: id,
		Event:          event,
		Details:        details,
		CreatedAt:      d.clock.Now(),
	}
	if err := d.repo.AddLog(ctx, entry); err != nil {
		d.log.Warn("Failed to log %s for notification %d: %v", event, id, err)
	}
}

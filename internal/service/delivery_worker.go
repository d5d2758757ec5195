package service

import (
	"context"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/eventbus"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/provider"
	"ServerMonitorAPI/internal/queue"
	"ServerMonitorAPI/internal/repository"
)

// ProviderSource selects the provider for a channel.
type ProviderSource interface {
	Get(kind models.ChannelKind) (provider.Provider, error)
}

// DeliveryWorker sends one queued notification through its channel's
// provider and persists the outcome. A provider failure is recorded on the
// notification and returned so the queue can apply its retry policy.
type DeliveryWorker struct {
	repo      repository.INotificationRepository
	providers ProviderSource
	bus       eventbus.Bus
	clock     clock.Clock
	log       *logger.Logger
}

func NewDeliveryWorker(
	repo repository.INotificationRepository,
	providers ProviderSource,
	bus eventbus.Bus,
	clk clock.Clock,
	log *logger.Logger,
) *DeliveryWorker {
	if clk == nil {
		clk = clock.New()
	}
	return &DeliveryWorker{
		repo:      repo,
		providers: providers,
		bus:       bus,
		clock:     clk,
		log:       log,
	}
}

// Handle is the queue.Handler for delivery jobs.
func (w *DeliveryWorker) Handle(ctx context.Context, job queue.Job) error {
	return w.Deliver(ctx, job.NotificationID, job.Attempt)
}

func (w *DeliveryWorker) Deliver(ctx context.Context, id int64, attempt int) error {
	n, err := w.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return apperror.NotFound("notification %d not found", id)
	}

	if n.Status == models.NotificationSent {
		w.log.Debug("Notification %d already sent, skipping", id)
		return nil
	}

	title, message := n.Title, n.Message
	if n.TemplateID != nil {
		tmpl, err := w.repo.GetTemplate(ctx, *n.TemplateID)
		if err != nil {
			return err
		}
		if tmpl != nil {
			title, message = applyTemplate(n, tmpl)
		} else {
			w.log.Warn("Notification %d references missing template %d", id, *n.TemplateID)
		}
	}

	p, err := w.providers.Get(n.ChannelType)
	if err != nil {
		w.recordFailure(ctx, n, err.Error(), attempt)
		return err
	}

	result := p.Send(ctx, n.Recipient, title, message, n.Metadata)
	if !result.Success {
		w.recordFailure(ctx, n, result.Error, attempt)
		return apperror.Errorf(apperror.KindProvider, "%s delivery of notification %d failed: %s", n.ChannelType, id, result.Error)
	}

	now := w.clock.Now()
	if err := w.repo.MarkSent(ctx, id, now); err != nil {
		return err
	}
	w.addLog(ctx, id, models.LogSent, map[string]interface{}{
		"channel":   string(n.ChannelType),
		"recipient": n.Recipient,
		"attempt":   attempt,
	})

	w.log.Info("Notification %d sent via %s to %s", id, n.ChannelType, n.Recipient)
	w.publish(ctx, models.EventNotificationSent, models.NotificationPayload{
		NotificationID: id,
		ChannelType:    n.ChannelType,
		Status:         models.NotificationSent,
	})
	return nil
}

func (w *DeliveryWorker) recordFailure(ctx context.Context, n *models.Notification, reason string, attempt int) {
	if err := w.repo.MarkFailed(ctx, n.ID, reason, w.clock.Now()); err != nil {
		w.log.Error("Failed to mark notification %d failed: %v", n.ID, err)
	}
	w.addLog(ctx, n.ID, models.LogFailed, map[string]interface{}{
		"channel": string(n.ChannelType),
		"error":   reason,
		"attempt": attempt,
	})

	w.log.Warn("Notification %d via %s failed: %s", n.ID, n.ChannelType, reason)
	w.publish(ctx, models.EventNotificationFailed, models.NotificationPayload{
		NotificationID: n.ID,
		ChannelType:    n.ChannelType,
		Status:         models.NotificationFailed,
		Error:          reason,
	})
}

func (w *DeliveryWorker) addLog(ctx context.Context, id int64, event models.LogEvent, details map[string]interface{}) {
	entry := &models.NotificationLog{
		NotificationID: id,
		Event:          event,
		Details:        details,
		CreatedAt:      w.clock.Now(),
	}
	if err := w.repo.AddLog(ctx, entry); err != nil {
		w.log.Warn("Failed to log %s for notification %d: %v", event, id, err)
	}
}

func (w *DeliveryWorker) publish(ctx context.Context, eventType models.EventType, payload models.NotificationPayload) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(ctx, eventType, payload); err != nil {
		w.log.Warn("Failed to publish %s: %v", eventType, err)
	}
}

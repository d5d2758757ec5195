package service

import (
	"context"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/repository"
	"ServerMonitorAPI/internal/validation"
)

const (
	DefaultRetryAge  = 15 * time.Minute
	DefaultRetention = 30 * 24 * time.Hour
)

type INotificationService interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	Get(ctx context.Context, id int64) (*NotificationDetail, error)
	ManualRetry(ctx context.Context, id int64) (*models.Notification, error)
}

type NotificationDetail struct {
	models.Notification
	Logs []models.NotificationLog `json:"logs"`
}

type CleanupResult struct {
	Logs          int64 `json:"logs"`
	Notifications int64 `json:"notifications"`
}

// NotificationService covers the operator-facing notification operations
// and the periodic maintenance tasks.
//
// ManualRetry counts against max_retries; RetrySweep leaves retry_count
// unchanged.
type NotificationService struct {
	repo      repository.INotificationRepository
	queue     Enqueuer
	retryAge  time.Duration
	retention time.Duration
	clock     clock.Clock
	log       *logger.Logger
}

func NewNotificationService(
	repo repository.INotificationRepository,
	q Enqueuer,
	retryAge, retention time.Duration,
	clk clock.Clock,
	log *logger.Logger,
) *NotificationService {
	if retryAge <= 0 {
		retryAge = DefaultRetryAge
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if clk == nil {
		clk = clock.New()
	}
	return &NotificationService{
		repo:      repo,
		queue:     q,
		retryAge:  retryAge,
		retention: retention,
		clock:     clk,
		log:       log,
	}
}

func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	if err := validation.Struct(filter); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, filter)
}

func (s *NotificationService) Get(ctx context.Context, id int64) (*NotificationDetail, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperror.NotFound("notification %d not found", id)
	}

	logs, err := s.repo.GetLogs(ctx, id)
	if err != nil {
		return nil, err
	}

	return &NotificationDetail{Notification: *n, Logs: logs}, nil
}

// ManualRetry re-queues a failed notification that is still below its retry
// limit, counting the attempt. Anything else is a Conflict. When the queue
// rejects the job the notification is left failed, with the attempt counted.
func (s *NotificationService) ManualRetry(ctx context.Context, id int64) (*models.Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperror.NotFound("notification %d not found", id)
	}
	if !n.CanRetry() {
		return nil, apperror.Conflict("notification %d cannot be retried: status %s, retries %d/%d",
			id, n.Status, n.RetryCount, n.MaxRetries)
	}

	claimed, err := s.repo.ClaimManualRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, apperror.Conflict("notification %d changed while retrying", id)
	}

	if _, err := s.queue.Enqueue(ctx, id, 0); err != nil {
		// left failed so the retry sweep picks it up once the queue is back
		if markErr := s.repo.MarkFailed(ctx, id, "manual retry not queued: "+err.Error(), s.clock.Now()); markErr != nil {
			s.log.Error("Failed to mark notification %d failed after queue error: %v", id, markErr)
		}
		return nil, apperror.Wrapf(err, apperror.KindTransient, "failed to queue notification %d", id)
	}

	n.RetryCount++
	n.Status = models.NotificationPending
	n.Error = nil

	s.addLog(ctx, id, map[string]interface{}{"manual": true, "retryCount": n.RetryCount})
	s.log.Info("Notification %d manually retried (%d/%d)", id, n.RetryCount, n.MaxRetries)

	return n, nil
}

// RetrySweep re-queues failed notifications below their retry limit whose
// last failure is at least retryAge old. retry_count is left unchanged.
func (s *NotificationService) RetrySweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.retryAge)

	candidates, err := s.repo.FindRetryable(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, n := range candidates {
		if _, err := s.queue.Enqueue(ctx, n.ID, 0); err != nil {
			s.log.Error("Retry sweep could not queue notification %d: %v", n.ID, err)
			continue
		}
		s.addLog(ctx, n.ID, map[string]interface{}{"manual": false, "retryCount": n.RetryCount})
		requeued++
	}

	if requeued > 0 {
		s.log.Info("Retry sweep re-queued %d of %d failed notifications (%d without a retry_count increment)",
			requeued, len(candidates), requeued)
	}
	return requeued, nil
}

// Cleanup purges notification logs and sent notifications older than the
// retention window.
func (s *NotificationService) Cleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	cutoff := s.clock.Now().Add(-s.retention)

	logs, err := s.repo.DeleteLogsBefore(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.Logs = logs

	sent, err := s.repo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.Notifications = sent

	s.log.Info("Cleanup removed %d notification logs and %d sent notifications older than %s",
		result.Logs, result.Notifications, cutoff.Format(time.RFC3339))
	return result, nil
}

func (s *NotificationService) addLog(ctx context.Context, id int64, details map[string]interface{}) {
	entry := &models.NotificationLog{
		NotificationID: id,
		Event:          models.LogRetried,
		Details:        details,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.AddLog(ctx, entry); err != nil {
		s.log.Warn("Failed to log retry for notification %d: %v", id, err)
	}
}

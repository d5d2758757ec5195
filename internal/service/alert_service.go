package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/database"
	"ServerMonitorAPI/internal/eventbus"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/repository"
)

// IAlertService owns the alert lifecycle: creation on first breach, in-place
// refresh while ACTIVE, and operator status changes.
type IAlertService interface {
	Upsert(ctx context.Context, metric models.Metric, rule models.AlertRule) (*models.Alert, bool, error)
	UpdateStatus(ctx context.Context, id int64, status models.AlertStatus) (*models.Alert, error)
	GetByID(ctx context.Context, id int64) (*models.Alert, error)
	GetActive(ctx context.Context, limit, offset int) ([]models.Alert, error)
	GetStatistics(ctx context.Context) (map[string]int, error)
}

type AlertService struct {
	repo      repository.IAlertRepository
	bus       eventbus.Bus
	directory IDirectory
	clock     clock.Clock
	log       *logger.Logger

	// one mutex per (server, kind); the set of keys is bounded by servers x kinds
	locks sync.Map
}

func NewAlertService(
	repo repository.IAlertRepository,
	bus eventbus.Bus,
	directory IDirectory,
	clk clock.Clock,
	log *logger.Logger,
) *AlertService {
	if clk == nil {
		clk = clock.New()
	}
	return &AlertService{
		repo:      repo,
		bus:       bus,
		directory: directory,
		clock:     clk,
		log:       log,
	}
}

func (s *AlertService) lock(serverID string, kind models.AlertKind) func() {
	m, _ := s.locks.LoadOrStore(serverID+"|"+string(kind), &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Upsert records a breaching sample. It reports true when a new ACTIVE alert
// was created, in which case exactly one alert.triggered event is published.
// A sample for an already ACTIVE (server, kind) only refreshes the value.
func (s *AlertService) Upsert(ctx context.Context, metric models.Metric, rule models.AlertRule) (*models.Alert, bool, error) {
	kind := models.AlertKindFor(metric.Type)

	// resolved before locking; the lookup may call server-service
	message := s.formatMessage(ctx, metric, rule)

	unlock := s.lock(metric.ServerID, kind)
	defer unlock()

	existing, err := s.repo.FindActive(ctx, metric.ServerID, kind)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return s.refresh(ctx, existing, metric.Value, message)
	}

	alert := &models.Alert{
		ServerID:     metric.ServerID,
		Type:         kind,
		Severity:     rule.Severity,
		Message:      message,
		Threshold:    rule.Threshold,
		CurrentValue: metric.Value,
		Status:       models.StatusActive,
		CreatedAt:    s.clock.Now(),
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		if !database.IsUniqueViolation(err) {
			return nil, false, err
		}

		// another writer created the ACTIVE alert first
		s.log.Debug("Concurrent ACTIVE alert for %s/%s, updating instead", metric.ServerID, kind)
		existing, findErr := s.repo.FindActive(ctx, metric.ServerID, kind)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing == nil {
			return nil, false, apperror.Wrapf(err, apperror.KindConflict, "active alert for %s/%s vanished", metric.ServerID, kind)
		}
		return s.refresh(ctx, existing, metric.Value, message)
	}

	s.log.Info("Alert %d triggered: %s", alert.ID, message)

	payload := models.AlertTriggeredPayload{
		AlertID:  alert.ID,
		ServerID: alert.ServerID,
		Type:     alert.Type,
		Severity: alert.Severity,
		Message:  alert.Message,
	}
	if err := s.bus.Publish(ctx, models.EventAlertTriggered, payload); err != nil {
		s.log.Error("Failed to publish %s for alert %d: %v", models.EventAlertTriggered, alert.ID, err)
	}

	return alert, true, nil
}

func (s *AlertService) refresh(ctx context.Context, alert *models.Alert, value float64, message string) (*models.Alert, bool, error) {
	if err := s.repo.UpdateCurrentValue(ctx, alert.ID, value, message); err != nil {
		return nil, false, err
	}
	alert.CurrentValue = value
	alert.Message = message
	alert.UpdatedAt = s.clock.Now()

	s.log.Debug("Alert %d refreshed: current value %.2f", alert.ID, value)
	return alert, false, nil
}

func (s *AlertService) formatMessage(ctx context.Context, metric models.Metric, rule models.AlertRule) string {
	unit := metric.Unit
	if unit == "" {
		unit = metric.Type.DefaultUnit()
	}

	serverName := metric.ServerID
	if s.directory != nil {
		serverName = s.directory.ServerName(ctx, metric.ServerID)
	}

	return fmt.Sprintf("%s: %s %s is %.2f%s (threshold %.2f%s)",
		rule.Name, serverName, metric.Type.Humanize(), metric.Value, unit, rule.Threshold, unit)
}

// UpdateStatus applies an operator transition. Any status may move to any
// other; RESOLVED stamps ResolvedAt and every other status clears it.
func (s *AlertService) UpdateStatus(ctx context.Context, id int64, status models.AlertStatus) (*models.Alert, error) {
	if _, valid := models.ParseAlertStatus(string(status)); !valid {
		return nil, apperror.Validation("invalid alert status %q", status)
	}

	var resolvedAt *time.Time
	if status == models.StatusResolved {
		now := s.clock.Now()
		resolvedAt = &now
	}

	err := s.repo.UpdateStatus(ctx, id, status, resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("alert %d not found", id)
	}
	if database.IsUniqueViolation(err) {
		return nil, apperror.Conflict("another ACTIVE alert exists for alert %d's server and type", id)
	}
	if err != nil {
		return nil, err
	}

	alert, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info("Alert %d moved to %s", id, status)

	payload := models.AlertStatusPayload{
		AlertID:  alert.ID,
		ServerID: alert.ServerID,
		Type:     alert.Type,
		Status:   alert.Status,
	}
	if err := s.bus.Publish(ctx, models.StatusEventType(status), payload); err != nil {
		s.log.Error("Failed to publish status event for alert %d: %v", id, err)
	}

	return alert, nil
}

func (s *AlertService) GetByID(ctx context.Context, id int64) (*models.Alert, error) {
	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, apperror.NotFound("alert %d not found", id)
	}
	return alert, nil
}

func (s *AlertService) GetActive(ctx context.Context, limit, offset int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.GetActive(ctx, limit, offset)
}

func (s *AlertService) GetStatistics(ctx context.Context) (map[string]int, error) {
	return s.repo.GetStatistics(ctx)
}

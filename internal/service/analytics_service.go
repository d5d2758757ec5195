package service

import (
	"context"
	"strings"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/repository"
)

const (
	DefaultAnalyticsWindow = time.Hour
	MaxAnalyticsWindow     = 31 * 24 * time.Hour
	MinBucket              = 10 * time.Second
	MaxSeriesPoints        = 1000

	DefaultAnomalyHours     = 24
	MaxAnomalyHours         = 7 * 24
	DefaultAnomalyDeviation = 2.0
)

type IAnalyticsService interface {
	TimeSeries(ctx context.Context, serverID, metricType string, w Window, bucket time.Duration) ([]repository.TimeSeriesPoint, error)
	Summary(ctx context.Context, serverID string, w Window) ([]repository.MetricSummary, error)
	Anomalies(ctx context.Context, serverID string, hours int, minDeviation float64) ([]repository.Anomaly, error)
	DeliveryStats(ctx context.Context, w Window) ([]repository.DeliveryStats, error)
}

// Window is a half-open [Start, End) range. Zero fields take defaults.
type Window struct {
	Start time.Time
	End   time.Time
}

type AnalyticsService struct {
	analyticsRepo repository.IAnalyticsRepository
	clock         clock.Clock
	log           *logger.Logger
}

func NewAnalyticsService(
	analyticsRepo repository.IAnalyticsRepository,
	clk clock.Clock,
	log *logger.Logger,
) *AnalyticsService {
	if clk == nil {
		clk = clock.New()
	}
	return &AnalyticsService{
		analyticsRepo: analyticsRepo,
		clock:         clk,
		log:           log,
	}
}

func (s *AnalyticsService) resolve(w Window) (Window, error) {
	if w.End.IsZero() {
		w.End = s.clock.Now()
	}
	if w.Start.IsZero() {
		w.Start = w.End.Add(-DefaultAnalyticsWindow)
	}
	if !w.End.After(w.Start) {
		return w, apperror.Validation("window end must be after start")
	}
	if w.End.Sub(w.Start) > MaxAnalyticsWindow {
		return w, apperror.Validation("window may span at most %s", MaxAnalyticsWindow)
	}
	return w, nil
}

// bucketFor picks the smallest whole-minute bucket that keeps the series
// under MaxSeriesPoints when the caller gives none.
func bucketFor(span, requested time.Duration) (time.Duration, error) {
	if requested == 0 {
		b := span / MaxSeriesPoints
		if b < time.Minute {
			return time.Minute, nil
		}
		return b.Truncate(time.Minute) + time.Minute, nil
	}
	if requested < MinBucket {
		return 0, apperror.Validation("interval must be at least %s", MinBucket)
	}
	if span/requested > MaxSeriesPoints {
		return 0, apperror.Validation("interval %s yields more than %d points", requested, MaxSeriesPoints)
	}
	return requested, nil
}

func requireServer(serverID string) (string, error) {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return "", apperror.Validation("server id is required")
	}
	return serverID, nil
}

func (s *AnalyticsService) TimeSeries(ctx context.Context, serverID, metricType string, w Window, bucket time.Duration) ([]repository.TimeSeriesPoint, error) {
	serverID, err := requireServer(serverID)
	if err != nil {
		return nil, err
	}
	mt, ok := models.ParseMetricType(strings.ToUpper(metricType))
	if !ok {
		return nil, apperror.Validation("unknown metric type %q", metricType)
	}
	if w, err = s.resolve(w); err != nil {
		return nil, err
	}
	if bucket, err = bucketFor(w.End.Sub(w.Start), bucket); err != nil {
		return nil, err
	}

	s.log.Debug("Getting %s time series: server=%s, bucket=%s", mt, serverID, bucket)
	return s.analyticsRepo.GetTimeSeries(ctx, serverID, mt, w.Start, w.End, bucket)
}

func (s *AnalyticsService) Summary(ctx context.Context, serverID string, w Window) ([]repository.MetricSummary, error) {
	serverID, err := requireServer(serverID)
	if err != nil {
		return nil, err
	}
	if w, err = s.resolve(w); err != nil {
		return nil, err
	}

	s.log.Debug("Getting metric summary: server=%s", serverID)
	return s.analyticsRepo.GetServerSummary(ctx, serverID, w.Start, w.End)
}

func (s *AnalyticsService) Anomalies(ctx context.Context, serverID string, hours int, minDeviation float64) ([]repository.Anomaly, error) {
	serverID, err := requireServer(serverID)
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		hours = DefaultAnomalyHours
	}
	if hours > MaxAnomalyHours {
		return nil, apperror.Validation("hours may be at most %d", MaxAnomalyHours)
	}
	if minDeviation <= 0 {
		minDeviation = DefaultAnomalyDeviation
	}

	since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)
	s.log.Info("Detecting anomalies: server=%s, hours=%d", serverID, hours)
	return s.analyticsRepo.DetectAnomalies(ctx, serverID, since, minDeviation)
}

func (s *AnalyticsService) DeliveryStats(ctx context.Context, w Window) ([]repository.DeliveryStats, error) {
	if w.Start.IsZero() {
		if w.End.IsZero() {
			w.End = s.clock.Now()
		}
		w.Start = w.End.Add(-24 * time.Hour)
	}
	w, err := s.resolve(w)
	if err != nil {
		return nil, err
	}
	return s.analyticsRepo.GetDeliveryStats(ctx, w.Start, w.End)
}

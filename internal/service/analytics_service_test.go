package service

import (
	"context"
	"testing"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analyticsCall struct {
	serverID     string
	metricType   models.MetricType
	start, end   time.Time
	bucket       time.Duration
	minDeviation float64
}

type fakeAnalyticsRepo struct {
	last analyticsCall
}

func (f *fakeAnalyticsRepo) GetTimeSeries(ctx context.Context, serverID string, metricType models.MetricType, start, end time.Time, bucket time.Duration) ([]repository.TimeSeriesPoint, error) {
	f.last = analyticsCall{serverID: serverID, metricType: metricType, start: start, end: end, bucket: bucket}
	return []repository.TimeSeriesPoint{{Timestamp: start, Avg: 1}}, nil
}

func (f *fakeAnalyticsRepo) GetServerSummary(ctx context.Context, serverID string, start, end time.Time) ([]repository.MetricSummary, error) {
	f.last = analyticsCall{serverID: serverID, start: start, end: end}
	return []repository.MetricSummary{{Type: models.MetricCPUUsage}}, nil
}

func (f *fakeAnalyticsRepo) DetectAnomalies(ctx context.Context, serverID string, since time.Time, minDeviation float64) ([]repository.Anomaly, error) {
	f.last = analyticsCall{serverID: serverID, start: since, minDeviation: minDeviation}
	return nil, nil
}

func (f *fakeAnalyticsRepo) GetDeliveryStats(ctx context.Context, start, end time.Time) ([]repository.DeliveryStats, error) {
	f.last = analyticsCall{start: start, end: end}
	return nil, nil
}

func newAnalyticsFixture() (*fakeAnalyticsRepo, time.Time, *AnalyticsService) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeAnalyticsRepo{}
	return repo, now, NewAnalyticsService(repo, clock.NewMock(now), logger.Nop())
}

func TestAnalyticsService_TimeSeriesDefaults(t *testing.T) {
	repo, now, svc := newAnalyticsFixture()

	points, err := svc.TimeSeries(context.Background(), " web-01 ", "cpu_usage", Window{}, 0)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	assert.Equal(t, "web-01", repo.last.serverID)
	assert.Equal(t, models.MetricCPUUsage, repo.last.metricType)
	assert.Equal(t, now, repo.last.end)
	assert.Equal(t, now.Add(-DefaultAnalyticsWindow), repo.last.start)
	assert.Equal(t, time.Minute, repo.last.bucket)
}

func TestAnalyticsService_TimeSeriesBucketSizing(t *testing.T) {
	repo, now, svc := newAnalyticsFixture()
	week := Window{Start: now.Add(-7 * 24 * time.Hour), End: now}

	_, err := svc.TimeSeries(context.Background(), "web-01", "DISK_USAGE", week, 0)
	require.NoError(t, err)
	// 7d / 1000 points is 10m4.8s, rounded up to the next minute
	assert.Equal(t, 11*time.Minute, repo.last.bucket)

	_, err = svc.TimeSeries(context.Background(), "web-01", "DISK_USAGE", week, time.Minute)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = svc.TimeSeries(context.Background(), "web-01", "DISK_USAGE", Window{}, time.Second)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = svc.TimeSeries(context.Background(), "web-01", "DISK_USAGE", Window{}, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, repo.last.bucket)
}

func TestAnalyticsService_RejectsBadInput(t *testing.T) {
	_, now, svc := newAnalyticsFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
	}{
		{"missing server", func() error { _, err := svc.Summary(ctx, "", Window{}); return err }()},
		{"unknown metric", func() error { _, err := svc.TimeSeries(ctx, "web-01", "TEMPERATURE", Window{}, 0); return err }()},
		{"inverted window", func() error {
			_, err := svc.Summary(ctx, "web-01", Window{Start: now, End: now.Add(-time.Hour)})
			return err
		}()},
		{"window too wide", func() error {
			_, err := svc.Summary(ctx, "web-01", Window{Start: now.Add(-60 * 24 * time.Hour), End: now})
			return err
		}()},
		{"too many hours", func() error { _, err := svc.Anomalies(ctx, "web-01", MaxAnomalyHours+1, 0); return err }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, apperror.IsKind(tt.err, apperror.KindValidation))
		})
	}
}

func TestAnalyticsService_AnomalyDefaults(t *testing.T) {
	repo, now, svc := newAnalyticsFixture()

	_, err := svc.Anomalies(context.Background(), "db-01", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-DefaultAnomalyHours*time.Hour), repo.last.start)
	assert.Equal(t, DefaultAnomalyDeviation, repo.last.minDeviation)

	_, err = svc.Anomalies(context.Background(), "db-01", 6, 3)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-6*time.Hour), repo.last.start)
	assert.Equal(t, 3.0, repo.last.minDeviation)
}

func TestAnalyticsService_DeliveryStatsDefaultsToOneDay(t *testing.T) {
	repo, now, svc := newAnalyticsFixture()

	_, err := svc.DeliveryStats(context.Background(), Window{})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), repo.last.start)
	assert.Equal(t, now, repo.last.end)
}

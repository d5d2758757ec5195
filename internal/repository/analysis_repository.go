package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ServerMonitorAPI/internal/models"
)

// IAnalyticsRepository serves the read-only dashboards over stored metrics
// and delivery history.
type IAnalyticsRepository interface {
	GetTimeSeries(ctx context.Context, serverID string, metricType models.MetricType, start, end time.Time, bucket time.Duration) ([]TimeSeriesPoint, error)
	GetServerSummary(ctx context.Context, serverID string, start, end time.Time) ([]MetricSummary, error)
	DetectAnomalies(ctx context.Context, serverID string, since time.Time, minDeviation float64) ([]Anomaly, error)
	GetDeliveryStats(ctx context.Context, start, end time.Time) ([]DeliveryStats, error)
}

type AnalyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Avg       float64   `json:"avg"`
	Max       float64   `json:"max"`
	Samples   int       `json:"samples"`
}

type MetricSummary struct {
	Type        models.MetricType `json:"type"`
	Unit        string            `json:"unit"`
	Avg         float64           `json:"avg"`
	Min         float64           `json:"min"`
	Max         float64           `json:"max"`
	P95         float64           `json:"p95"`
	Latest      float64           `json:"latest"`
	LastSeen    time.Time         `json:"last_seen"`
	SampleCount int               `json:"sample_count"`
}

type Anomaly struct {
	ServerID      string            `json:"server_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Type          models.MetricType `json:"type"`
	Value         float64           `json:"value"`
	ExpectedValue float64           `json:"expected_value"`
	Deviation     float64           `json:"deviation"`
	Severity      models.Severity   `json:"severity"`
}

type DeliveryStats struct {
	Channel    models.ChannelKind `json:"channel"`
	Sent       int                `json:"sent"`
	Failed     int                `json:"failed"`
	Pending    int                `json:"pending"`
	AvgRetries float64            `json:"avg_retries"`
}

// Buckets are aligned to the Unix epoch so adjacent windows line up.
func (r *AnalyticsRepository) GetTimeSeries(ctx context.Context, serverID string, metricType models.MetricType, start, end time.Time, bucket time.Duration) ([]TimeSeriesPoint, error) {
	query := `
		SELECT
			date_bin($1::interval, timestamp, TIMESTAMPTZ '1970-01-01') AS bucket,
			AVG(value) AS avg_value,
			MAX(value) AS max_value,
			COUNT(*) AS samples
		FROM metrics
		WHERE server_id = $2
		  AND type = $3
		  AND timestamp >= $4
		  AND timestamp < $5
		GROUP BY bucket
		ORDER BY bucket
	`

	interval := fmt.Sprintf("%d seconds", int64(bucket/time.Second))
	rows, err := r.db.QueryContext(ctx, query, interval, serverID, metricType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s time series: %w", metricType, err)
	}
	defer rows.Close()

	points := []TimeSeriesPoint{}
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Timestamp, &p.Avg, &p.Max, &p.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan time series point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

func (r *AnalyticsRepository) GetServerSummary(ctx context.Context, serverID string, start, end time.Time) ([]MetricSummary, error) {
	query := `
		SELECT
			type,
			MAX(unit) AS unit,
			AVG(value) AS avg_value,
			MIN(value) AS min_value,
			MAX(value) AS max_value,
			PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY value) AS p95,
			(ARRAY_AGG(value ORDER BY timestamp DESC))[1] AS latest,
			MAX(timestamp) AS last_seen,
			COUNT(*) AS samples
		FROM metrics
		WHERE server_id = $1
		  AND timestamp >= $2
		  AND timestamp < $3
		GROUP BY type
		ORDER BY type
	`

	rows, err := r.db.QueryContext(ctx, query, serverID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get server summary: %w", err)
	}
	defer rows.Close()

	summaries := []MetricSummary{}
	for rows.Next() {
		var s MetricSummary
		if err := rows.Scan(&s.Type, &s.Unit, &s.Avg, &s.Min, &s.Max, &s.P95, &s.Latest, &s.LastSeen, &s.SampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan metric summary: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// DetectAnomalies flags samples more than minDeviation standard deviations
// away from their type's mean over the same window.
func (r *AnalyticsRepository) DetectAnomalies(ctx context.Context, serverID string, since time.Time, minDeviation float64) ([]Anomaly, error) {
	query := `
		WITH recent AS (
			SELECT type, value, timestamp
			FROM metrics
			WHERE server_id = $1 AND timestamp >= $2
		),
		stats AS (
			SELECT type, AVG(value) AS mean, STDDEV(value) AS stddev
			FROM recent
			GROUP BY type
		)
		SELECT
			r.timestamp,
			r.type,
			r.value,
			s.mean,
			ABS(r.value - s.mean) / NULLIF(s.stddev, 0) AS deviation
		FROM recent r
		JOIN stats s ON s.type = r.type
		WHERE s.stddev > 0
		  AND ABS(r.value - s.mean) > $3 * s.stddev
		ORDER BY r.timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, query, serverID, since, minDeviation)
	if err != nil {
		return nil, fmt.Errorf("failed to detect anomalies: %w", err)
	}
	defer rows.Close()

	anomalies := []Anomaly{}
	for rows.Next() {
		a := Anomaly{ServerID: serverID}
		if err := rows.Scan(&a.Timestamp, &a.Type, &a.Value, &a.ExpectedValue, &a.Deviation); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Severity = deviationSeverity(a.Deviation)
		anomalies = append(anomalies, a)
	}

	return anomalies, rows.Err()
}

func deviationSeverity(deviation float64) models.Severity {
	switch {
	case deviation > 4:
		return models.SeverityCritical
	case deviation > 3:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

func (r *AnalyticsRepository) GetDeliveryStats(ctx context.Context, start, end time.Time) ([]DeliveryStats, error) {
	query := `
		SELECT
			channel_type,
			COUNT(*) FILTER (WHERE status = $3) AS sent,
			COUNT(*) FILTER (WHERE status = $4) AS failed,
			COUNT(*) FILTER (WHERE status = $5) AS pending,
			COALESCE(AVG(retry_count), 0) AS avg_retries
		FROM notifications
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY channel_type
		ORDER BY channel_type
	`

	rows, err := r.db.QueryContext(ctx, query, start, end,
		models.NotificationSent, models.NotificationFailed, models.NotificationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery stats: %w", err)
	}
	defer rows.Close()

	stats := []DeliveryStats{}
	for rows.Next() {
		var s DeliveryStats
		if err := rows.Scan(&s.Channel, &s.Sent, &s.Failed, &s.Pending, &s.AvgRetries); err != nil {
			return nil, fmt.Errorf("failed to scan delivery stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ServerMonitorAPI/internal/models"
)

// IMetricRepository is the metric feed read by the rule evaluator and
// written by telemetry ingest.
type IMetricRepository interface {
	Insert(ctx context.Context, metric *models.Metric) error
	InsertBatch(ctx context.Context, metrics []models.Metric) error
	GetByTypeSince(ctx context.Context, metricType models.MetricType, since time.Time) ([]models.Metric, error)
}

type MetricRepository struct {
	db *sql.DB
}

func NewMetricRepository(db *sql.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

const insertMetricQuery = `
	INSERT INTO metrics (server_id, type, value, unit, timestamp)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
`

func (r *MetricRepository) Insert(ctx context.Context, metric *models.Metric) error {
	err := r.db.QueryRowContext(
		ctx, insertMetricQuery,
		metric.ServerID,
		metric.Type,
		metric.Value,
		metric.Unit,
		metric.Timestamp,
	).Scan(&metric.ID)

	if err != nil {
		return fmt.Errorf("failed to insert metric: %w", err)
	}

	return nil
}

func (r *MetricRepository) InsertBatch(ctx context.Context, metrics []models.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertMetricQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range metrics {
		m := &metrics[i]
		if err := stmt.QueryRowContext(ctx, m.ServerID, m.Type, m.Value, m.Unit, m.Timestamp).Scan(&m.ID); err != nil {
			return fmt.Errorf("failed to insert metric batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByTypeSince returns samples of one type newer than since, newest first.
func (r *MetricRepository) GetByTypeSince(ctx context.Context, metricType models.MetricType, since time.Time) ([]models.Metric, error) {
	query := `
		SELECT id, server_id, type, value, unit, timestamp
		FROM metrics
		WHERE type = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, query, metricType, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	metrics := []models.Metric{}
	for rows.Next() {
		var m models.Metric
		if err := rows.Scan(&m.ID, &m.ServerID, &m.Type, &m.Value, &m.Unit, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

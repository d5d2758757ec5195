package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ServerMonitorAPI/internal/models"
)

// IAlertRepository defines the operations for managing alerts.
type IAlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id int64) (*models.Alert, error)
	FindActive(ctx context.Context, serverID string, kind models.AlertKind) (*models.Alert, error)
	GetActive(ctx context.Context, limit int, offset int) ([]models.Alert, error)
	UpdateCurrentValue(ctx context.Context, id int64, value float64, message string) error
	UpdateStatus(ctx context.Context, id int64, status models.AlertStatus, resolvedAt *time.Time) error
	GetStatistics(ctx context.Context) (map[string]int, error)
}

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `
	id, server_id, type, severity, message, threshold, current_value,
	status, created_at, updated_at, resolved_at`

func scanAlert(row interface{ Scan(...interface{}) error }) (*models.Alert, error) {
	a := &models.Alert{}
	var resolvedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.ServerID, &a.Type, &a.Severity, &a.Message, &a.Threshold, &a.CurrentValue,
		&a.Status, &a.CreatedAt, &a.UpdatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return a, nil
}

// Create inserts a new alert and fills in the generated ID. A unique
// violation means another writer already holds the ACTIVE slot for the
// same server and kind; it is returned unwrapped-compatible so callers can
// detect it with database.IsUniqueViolation.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (
			server_id, type, severity, message, threshold, current_value,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	alert.UpdatedAt = alert.CreatedAt

	err := r.db.QueryRowContext(
		ctx, query,
		alert.ServerID,
		alert.Type,
		alert.Severity,
		alert.Message,
		alert.Threshold,
		alert.CurrentValue,
		alert.Status,
		alert.CreatedAt,
		alert.UpdatedAt,
	).Scan(&alert.ID)

	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// GetByID returns nil, nil when the alert does not exist.
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert by id: %w", err)
	}

	return alert, nil
}

// FindActive returns the ACTIVE alert for (serverID, kind), or nil.
func (r *AlertRepository) FindActive(ctx context.Context, serverID string, kind models.AlertKind) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM alerts
		WHERE server_id = $1 AND type = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, serverID, kind, models.StatusActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active alert: %w", err)
	}

	return alert, nil
}

func (r *AlertRepository) GetActive(ctx context.Context, limit int, offset int) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM alerts
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, models.StatusActive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}

	return alerts, rows.Err()
}

func (r *AlertRepository) UpdateCurrentValue(ctx context.Context, id int64, value float64, message string) error {
	query := `UPDATE alerts SET current_value = $1, message = $2, updated_at = $3 WHERE id = $4`

	if _, err := r.db.ExecContext(ctx, query, value, message, time.Now(), id); err != nil {
		return fmt.Errorf("failed to update alert %d: %w", id, err)
	}
	return nil
}

func (r *AlertRepository) UpdateStatus(ctx context.Context, id int64, status models.AlertStatus, resolvedAt *time.Time) error {
	query := `UPDATE alerts SET status = $1, resolved_at = $2, updated_at = $3 WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, status, resolvedAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update alert %d status: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetStatistics returns a count of ACTIVE alerts grouped by severity.
func (r *AlertRepository) GetStatistics(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM alerts
		WHERE status = $1
		GROUP BY severity
	`
	rows, err := r.db.QueryContext(ctx, query, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert statistics: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, err
		}
		stats[sev] = count
	}
	return stats, rows.Err()
}

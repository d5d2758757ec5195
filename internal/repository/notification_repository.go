package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ServerMonitorAPI/internal/models"
)

type INotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id int64) (*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string, failedAt time.Time) error
	ClaimManualRetry(ctx context.Context, id int64) (bool, error)
	FindRetryable(ctx context.Context, failedBefore time.Time) ([]models.Notification, error)
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)

	AddLog(ctx context.Context, entry *models.NotificationLog) error
	GetLogs(ctx context.Context, notificationID int64) ([]models.NotificationLog, error)
	DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	GetTemplate(ctx context.Context, id int64) (*models.NotificationTemplate, error)
}

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `
	id, type, title, message, recipient, channel_type, priority, status,
	retry_count, max_retries, error, metadata, template_id, created_at, sent_at, failed_at`

func scanNotification(row interface{ Scan(...interface{}) error }) (*models.Notification, error) {
	n := &models.Notification{}
	var (
		errMsg     sql.NullString
		metadata   []byte
		templateID sql.NullInt64
		sentAt     sql.NullTime
		failedAt   sql.NullTime
	)

	err := row.Scan(
		&n.ID, &n.Type, &n.Title, &n.Message, &n.Recipient, &n.ChannelType, &n.Priority, &n.Status,
		&n.RetryCount, &n.MaxRetries, &errMsg, &metadata, &templateID, &n.CreatedAt, &sentAt, &failedAt,
	)
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		n.Error = &errMsg.String
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for notification %d: %w", n.ID, err)
		}
	}
	if templateID.Valid {
		n.TemplateID = &templateID.Int64
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if failedAt.Valid {
		n.FailedAt = &failedAt.Time
	}
	return n, nil
}

func marshalJSON(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (
			type, title, message, recipient, channel_type, priority, status,
			retry_count, max_retries, metadata, template_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	err = r.db.QueryRowContext(
		ctx, query,
		n.Type, n.Title, n.Message, n.Recipient, n.ChannelType, n.Priority, n.Status,
		n.RetryCount, n.MaxRetries, metadata, n.TemplateID, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// GetByID returns nil, nil when the notification does not exist.
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 1

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, filter.Status)
		argCount++
	}

	if filter.ChannelType != "" {
		conditions = append(conditions, fmt.Sprintf("channel_type = $%d", argCount))
		args = append(args, filter.ChannelType)
		argCount++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM notifications %s", whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, whereClause, argCount, argCount+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}

	return notifications, total, rows.Err()
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `UPDATE notifications SET status = $1, sent_at = $2, error = NULL WHERE id = $3`

	if _, err := r.db.ExecContext(ctx, query, models.NotificationSent, sentAt, id); err != nil {
		return fmt.Errorf("failed to mark notification %d sent: %w", id, err)
	}
	return nil
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, errMsg string, failedAt time.Time) error {
	query := `UPDATE notifications SET status = $1, error = $2, failed_at = $3 WHERE id = $4`

	if _, err := r.db.ExecContext(ctx, query, models.NotificationFailed, errMsg, failedAt, id); err != nil {
		return fmt.Errorf("failed to mark notification %d failed: %w", id, err)
	}
	return nil
}

// ClaimManualRetry increments retry_count and resets the notification to
// pending, but only while it is failed and below max_retries. It reports
// false when the guard did not match.
func (r *NotificationRepository) ClaimManualRetry(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE notifications
		SET retry_count = retry_count + 1, status = $1, error = NULL
		WHERE id = $2 AND status = $3 AND retry_count < max_retries
	`

	result, err := r.db.ExecContext(ctx, query, models.NotificationPending, id, models.NotificationFailed)
	if err != nil {
		return false, fmt.Errorf("failed to claim retry for notification %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FindRetryable returns failed notifications below their retry limit whose
// failure is at or before failedBefore.
func (r *NotificationRepository) FindRetryable(ctx context.Context, failedBefore time.Time) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = $1 AND retry_count < max_retries AND failed_at <= $2
		ORDER BY failed_at
	`

	rows, err := r.db.QueryContext(ctx, query, models.NotificationFailed, failedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query retryable notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}

	return notifications, rows.Err()
}

func (r *NotificationRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE status = $1 AND created_at < $2`

	result, err := r.db.ExecContext(ctx, query, models.NotificationSent, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sent notifications: %w", err)
	}
	return result.RowsAffected()
}

func (r *NotificationRepository) AddLog(ctx context.Context, entry *models.NotificationLog) error {
	query := `
		INSERT INTO notification_logs (notification_id, event, details, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	details, err := marshalJSON(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal log details: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	err = r.db.QueryRowContext(ctx, query, entry.NotificationID, entry.Event, details, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to add notification log: %w", err)
	}
	return nil
}

func (r *NotificationRepository) GetLogs(ctx context.Context, notificationID int64) ([]models.NotificationLog, error) {
	query := `
		SELECT id, notification_id, event, details, created_at
		FROM notification_logs
		WHERE notification_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification logs: %w", err)
	}
	defer rows.Close()

	logs := []models.NotificationLog{}
	for rows.Next() {
		var l models.NotificationLog
		var details []byte
		if err := rows.Scan(&l.ID, &l.NotificationID, &l.Event, &details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &l.Details)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

func (r *NotificationRepository) DeleteLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notification_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notification logs: %w", err)
	}
	return result.RowsAffected()
}

// GetTemplate returns nil, nil when the template does not exist.
func (r *NotificationRepository) GetTemplate(ctx context.Context, id int64) (*models.NotificationTemplate, error) {
	query := `SELECT id, name, subject, body, created_at FROM notification_templates WHERE id = $1`

	t := &models.NotificationTemplate{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %d: %w", id, err)
	}
	return t, nil
}

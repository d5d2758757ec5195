package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ServerMonitorAPI/internal/models"

	"github.com/lib/pq"
)

type ISubscriptionRepository interface {
	FindMatching(ctx context.Context, serverID string, kind models.AlertKind) ([]models.Subscription, error)
}

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// FindMatching returns active subscriptions whose server_id and alert_type
// are either NULL (any) or equal to the given values.
func (r *SubscriptionRepository) FindMatching(ctx context.Context, serverID string, kind models.AlertKind) ([]models.Subscription, error) {
	query := `
		SELECT id, user_id, server_id, alert_type, channels, is_active, created_at
		FROM subscriptions
		WHERE is_active = TRUE
		  AND (server_id IS NULL OR server_id = $1)
		  AND (alert_type IS NULL OR alert_type = $2)
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, serverID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		var s models.Subscription
		var server, alertType sql.NullString
		var channels pq.StringArray

		if err := rows.Scan(&s.ID, &s.UserID, &server, &alertType, &channels, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}

		if server.Valid {
			s.ServerID = &server.String
		}
		if alertType.Valid {
			kind := models.AlertKind(alertType.String)
			s.AlertType = &kind
		}
		s.Channels = []string(channels)
		subs = append(subs, s)
	}

	return subs, rows.Err()
}

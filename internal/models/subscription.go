package models

import "time"

// Subscription is a user's standing interest in alerts. ServerID and
// AlertType are optional: nil means "match any".
type Subscription struct {
	ID        int64      `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	ServerID  *string    `json:"server_id" db:"server_id"`
	AlertType *AlertKind `json:"alert_type" db:"alert_type"`
	Channels  []string   `json:"channels" db:"channels"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

func (s Subscription) Matches(serverID string, kind AlertKind) bool {
	if !s.IsActive {
		return false
	}
	if s.ServerID != nil && *s.ServerID != serverID {
		return false
	}
	if s.AlertType != nil && *s.AlertType != kind {
		return false
	}
	return true
}

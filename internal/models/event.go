package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventWildcard EventType = "*"

	EventAlertTriggered    EventType = "alert.triggered"
	EventAlertAcknowledged EventType = "alert.acknowledged"
	EventAlertResolved     EventType = "alert.resolved"
	EventAlertReactivated  EventType = "alert.reactivated"

	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
)

// Event lives only on the bus; it is never persisted.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

func (e Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type AlertTriggeredPayload struct {
	AlertID  int64     `json:"alertId"`
	ServerID string    `json:"serverId"`
	Type     AlertKind `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

type AlertStatusPayload struct {
	AlertID  int64       `json:"alertId"`
	ServerID string      `json:"serverId"`
	Type     AlertKind   `json:"type"`
	Status   AlertStatus `json:"status"`
}

type NotificationPayload struct {
	NotificationID int64              `json:"notificationId"`
	ChannelType    ChannelKind        `json:"channelType"`
	Status         NotificationStatus `json:"status"`
	Error          string             `json:"error,omitempty"`
}

// StatusEventType returns the event published when an alert moves to status.
func StatusEventType(status AlertStatus) EventType {
	switch status {
	case StatusAcknowledged:
		return EventAlertAcknowledged
	case StatusResolved:
		return EventAlertResolved
	default:
		return EventAlertReactivated
	}
}

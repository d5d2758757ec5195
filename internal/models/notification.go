package models

import (
	"time"

	"ServerMonitorAPI/internal/apperror"
)

type ChannelKind string

const (
	ChannelEmail   ChannelKind = "email"
	ChannelSMS     ChannelKind = "sms"
	ChannelWebhook ChannelKind = "webhook"
)

var channelKinds = map[string]ChannelKind{
	"email":   ChannelEmail,
	"sms":     ChannelSMS,
	"webhook": ChannelWebhook,
}

func ParseChannel(s string) (ChannelKind, error) {
	if kind, ok := channelKinds[s]; ok {
		return kind, nil
	}
	return "", apperror.Validation("unsupported channel %q", s)
}

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

const NotificationTypeAlert = "alert"

type Notification struct {
	ID          int64                  `json:"id" db:"id"`
	Type        string                 `json:"type" db:"type" validate:"required"`
	Title       string                 `json:"title" db:"title" validate:"required,max=255"`
	Message     string                 `json:"message" db:"message" validate:"required"`
	Recipient   string                 `json:"recipient" db:"recipient" validate:"required,max=255"`
	ChannelType ChannelKind            `json:"channel_type" db:"channel_type" validate:"required,channel"`
	Priority    Severity               `json:"priority" db:"priority"`
	Status      NotificationStatus     `json:"status" db:"status"`
	RetryCount  int                    `json:"retry_count" db:"retry_count" validate:"gte=0"`
	MaxRetries  int                    `json:"max_retries" db:"max_retries" validate:"gte=0"`
	Error       *string                `json:"error" db:"error"`
	Metadata    map[string]interface{} `json:"metadata" db:"metadata"`
	TemplateID  *int64                 `json:"template_id" db:"template_id"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	SentAt      *time.Time             `json:"sent_at" db:"sent_at"`
	FailedAt    *time.Time             `json:"failed_at" db:"failed_at"`
}

// CanRetry reports whether a manual retry is allowed.
func (n *Notification) CanRetry() bool {
	return n.Status == NotificationFailed && n.RetryCount < n.MaxRetries
}

type LogEvent string

const (
	LogQueued  LogEvent = "queued"
	LogSent    LogEvent = "sent"
	LogFailed  LogEvent = "failed"
	LogRetried LogEvent = "retried"
)

type NotificationLog struct {
	ID             int64                  `json:"id" db:"id"`
	NotificationID int64                  `json:"notification_id" db:"notification_id"`
	Event          LogEvent               `json:"event" db:"event"`
	Details        map[string]interface{} `json:"details" db:"details"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
}

type NotificationTemplate struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type NotificationFilter struct {
	Status      string `json:"status" validate:"omitempty,oneof=pending sent failed"`
	ChannelType string `json:"channel_type" validate:"omitempty,oneof=email sms webhook"`
	Limit       int    `json:"limit" validate:"gte=0,lte=500"`
	Offset      int    `json:"offset" validate:"gte=0"`
}

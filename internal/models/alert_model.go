package models

import "time"

type AlertKind string

const (
	AlertHighCPU    AlertKind = "HIGH_CPU"
	AlertHighMemory AlertKind = "HIGH_MEMORY"
	AlertHighDisk   AlertKind = "HIGH_DISK"
	AlertHighLoad   AlertKind = "HIGH_LOAD"
	AlertCustom     AlertKind = "CUSTOM"
)

var alertKinds = map[MetricType]AlertKind{
	MetricCPUUsage:    AlertHighCPU,
	MetricMemoryUsage: AlertHighMemory,
	MetricDiskUsage:   AlertHighDisk,
	MetricLoadAverage: AlertHighLoad,
}

// AlertKindFor maps a metric type to the alert kind raised for it.
// Unmapped metric types raise CUSTOM alerts.
func AlertKindFor(m MetricType) AlertKind {
	if kind, ok := alertKinds[m]; ok {
		return kind
	}
	return AlertCustom
}

type AlertStatus string

const (
	StatusActive       AlertStatus = "ACTIVE"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusResolved     AlertStatus = "RESOLVED"
)

func ParseAlertStatus(s string) (AlertStatus, bool) {
	switch AlertStatus(s) {
	case StatusActive, StatusAcknowledged, StatusResolved:
		return AlertStatus(s), true
	}
	return "", false
}

// Alert is a detected threshold breach for one server and alert kind.
// At most one ACTIVE alert exists per (ServerID, Type).
type Alert struct {
	ID           int64       `json:"id" db:"id"`
	ServerID     string      `json:"server_id" db:"server_id"`
	Type         AlertKind   `json:"type" db:"type"`
	Severity     Severity    `json:"severity" db:"severity"`
	Message      string      `json:"message" db:"message"`
	Threshold    float64     `json:"threshold" db:"threshold"`
	CurrentValue float64     `json:"current_value" db:"current_value"`
	Status       AlertStatus `json:"status" db:"status"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
	ResolvedAt   *time.Time  `json:"resolved_at" db:"resolved_at"`
}

type AlertStatusUpdate struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE ACKNOWLEDGED RESOLVED"`
}

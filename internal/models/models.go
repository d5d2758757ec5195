package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type MetricType string

const (
	MetricCPUUsage    MetricType = "CPU_USAGE"
	MetricMemoryUsage MetricType = "MEMORY_USAGE"
	MetricDiskUsage   MetricType = "DISK_USAGE"
	MetricNetworkIn   MetricType = "NETWORK_IN"
	MetricNetworkOut  MetricType = "NETWORK_OUT"
	MetricLoadAverage MetricType = "LOAD_AVERAGE"
	MetricUptime      MetricType = "UPTIME"
)

type metricInfo struct {
	label string
	unit  string
}

var metricTypes = map[MetricType]metricInfo{
	MetricCPUUsage:    {label: "CPU usage", unit: "%"},
	MetricMemoryUsage: {label: "memory usage", unit: "%"},
	MetricDiskUsage:   {label: "disk usage", unit: "%"},
	MetricNetworkIn:   {label: "network inbound", unit: "B/s"},
	MetricNetworkOut:  {label: "network outbound", unit: "B/s"},
	MetricLoadAverage: {label: "load average", unit: ""},
	MetricUptime:      {label: "uptime", unit: "s"},
}

func ParseMetricType(s string) (MetricType, bool) {
	mt := MetricType(s)
	_, ok := metricTypes[mt]
	return mt, ok
}

func (m MetricType) Valid() bool {
	_, ok := metricTypes[m]
	return ok
}

// Humanize returns the lower-case label used in alert messages.
func (m MetricType) Humanize() string {
	if info, ok := metricTypes[m]; ok {
		return info.label
	}
	return string(m)
}

// DefaultUnit is the unit assumed when a sample arrives without one.
func (m MetricType) DefaultUnit() string {
	return metricTypes[m].unit
}

type Metric struct {
	ID        int64      `json:"id" db:"id"`
	ServerID  string     `json:"server_id" db:"server_id" validate:"required,max=100"`
	Type      MetricType `json:"type" db:"type" validate:"required,metric_type"`
	Value     float64    `json:"value" db:"value"`
	Unit      string     `json:"unit" db:"unit" validate:"max=20"`
	Timestamp time.Time  `json:"timestamp" db:"timestamp" validate:"required"`
}

// Condition is the closed set of rule comparisons.
type Condition int

const (
	ConditionUnknown Condition = iota
	ConditionGreaterThan
	ConditionLessThan
	ConditionEquals
)

var conditionNames = map[Condition]string{
	ConditionGreaterThan: "greater_than",
	ConditionLessThan:    "less_than",
	ConditionEquals:      "equals",
}

var conditionsByName = map[string]Condition{
	"greater_than": ConditionGreaterThan,
	"less_than":    ConditionLessThan,
	"equals":       ConditionEquals,
}

// ParseCondition never fails: anything outside the table is
// ConditionUnknown, which never fires.
func ParseCondition(s string) Condition {
	return conditionsByName[s]
}

func (c Condition) String() string {
	if name, ok := conditionNames[c]; ok {
		return name
	}
	return "unknown"
}

func (c Condition) Evaluate(value, threshold float64) bool {
	switch c {
	case ConditionGreaterThan:
		return value > threshold
	case ConditionLessThan:
		return value < threshold
	case ConditionEquals:
		return value == threshold
	case ConditionUnknown:
		return false
	}
	return false
}

func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("condition must be a string: %w", err)
	}
	*c = ParseCondition(s)
	return nil
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), true
	}
	return "", false
}

type AlertRule struct {
	ID         int64      `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	MetricType MetricType `json:"metric_type" db:"metric_type"`
	Condition  Condition  `json:"condition" db:"condition"`
	Threshold  float64    `json:"threshold" db:"threshold"`
	Severity   Severity   `json:"severity" db:"severity"`
	Enabled    bool       `json:"enabled" db:"enabled"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

package models

import (
	"encoding/json"
	"testing"

	"ServerMonitorAPI/internal/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionEvaluate(t *testing.T) {
	tests := []struct {
		condition string
		value     float64
		threshold float64
		want      bool
	}{
		{"greater_than", 92, 80, true},
		{"greater_than", 80, 80, false},
		{"less_than", 10, 20, true},
		{"less_than", 20, 20, false},
		{"equals", 42, 42, true},
		{"equals", 42.1, 42, false},
		{"gte", 100, 1, false},
		{"", 100, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			got := ParseCondition(tt.condition).Evaluate(tt.value, tt.threshold)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionJSON(t *testing.T) {
	var rule AlertRule
	require.NoError(t, json.Unmarshal([]byte(`{"condition":"less_than"}`), &rule))
	assert.Equal(t, ConditionLessThan, rule.Condition)

	require.NoError(t, json.Unmarshal([]byte(`{"condition":"between"}`), &rule))
	assert.Equal(t, ConditionUnknown, rule.Condition)

	out, err := json.Marshal(ConditionEquals)
	require.NoError(t, err)
	assert.Equal(t, `"equals"`, string(out))
}

func TestAlertKindFor(t *testing.T) {
	assert.Equal(t, AlertHighCPU, AlertKindFor(MetricCPUUsage))
	assert.Equal(t, AlertHighMemory, AlertKindFor(MetricMemoryUsage))
	assert.Equal(t, AlertHighDisk, AlertKindFor(MetricDiskUsage))
	assert.Equal(t, AlertHighLoad, AlertKindFor(MetricLoadAverage))
	assert.Equal(t, AlertCustom, AlertKindFor(MetricNetworkIn))
	assert.Equal(t, AlertCustom, AlertKindFor(MetricUptime))
}

func TestSubscriptionMatches(t *testing.T) {
	s1 := "s1"
	cpu := AlertHighCPU

	global := Subscription{IsActive: true}
	assert.True(t, global.Matches("s1", AlertHighCPU))
	assert.True(t, global.Matches("s9", AlertCustom))

	byServer := Subscription{IsActive: true, ServerID: &s1}
	assert.True(t, byServer.Matches("s1", AlertHighDisk))
	assert.False(t, byServer.Matches("s2", AlertHighDisk))

	byBoth := Subscription{IsActive: true, ServerID: &s1, AlertType: &cpu}
	assert.True(t, byBoth.Matches("s1", AlertHighCPU))
	assert.False(t, byBoth.Matches("s1", AlertHighMemory))

	inactive := Subscription{IsActive: false}
	assert.False(t, inactive.Matches("s1", AlertHighCPU))
}

func TestParseChannel(t *testing.T) {
	kind, err := ParseChannel("sms")
	require.NoError(t, err)
	assert.Equal(t, ChannelSMS, kind)

	_, err = ParseChannel("pager")
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}

func TestNotificationCanRetry(t *testing.T) {
	n := Notification{Status: NotificationFailed, RetryCount: 2, MaxRetries: 3}
	assert.True(t, n.CanRetry())

	n.RetryCount = 3
	assert.False(t, n.CanRetry())

	n = Notification{Status: NotificationSent, MaxRetries: 3}
	assert.False(t, n.CanRetry())
}

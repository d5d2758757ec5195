package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "monitor")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "server_monitor")
	t.Setenv("MQTT_BROKER", "mqtt")
	t.Setenv("MQTT_PORT", "1883")
	t.Setenv("REDIS_ADDR", "redis:6379")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "@every 30s", cfg.Alerting.EvaluationSchedule)
	assert.Equal(t, 5*time.Minute, cfg.Alerting.Lookback)
	assert.Equal(t, 15*time.Minute, cfg.Notifications.RetryAge)
	assert.Equal(t, 30*24*time.Hour, cfg.Notifications.Retention)
	assert.Equal(t, 3, cfg.Notifications.MaxRetries)
	assert.Equal(t, 3, cfg.Queue.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.InitialDelay)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.ResetTimeout)
	assert.Equal(t, "local", cfg.EventBus.Mode)
	assert.Equal(t, "tcp://mqtt:1883", cfg.GetMQTTBroker())
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_ADDR", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("EVENT_BUS_MODE", "kafka")
	t.Setenv("QUEUE_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENT_BUS_MODE")
	assert.Contains(t, err.Error(), "QUEUE_CONCURRENCY")
}

package service

import (
	"context"
	"testing"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTelemetryFixture() (*memMetricRepo, *TelemetryService) {
	repo := &memMetricRepo{}
	return repo, NewTelemetryService(repo, clock.NewMock(testNow), logger.Nop())
}

func TestProcessMessage_Batch(t *testing.T) {
	repo, svc := newTelemetryFixture()

	payload := []byte(`{
		"serverId": "s1",
		"metrics": [
			{"type": "CPU_USAGE", "value": 92.5, "unit": "%", "timestamp": "2024-05-01T11:59:30Z"},
			{"type": "LOAD_AVERAGE", "value": 1.2},
			{"type": "TEMPERATURE", "value": 70},
			{"type": "DISK_USAGE"}
		]
	}`)

	stored, err := svc.ProcessMessage(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	require.Len(t, repo.metrics, 2)
	assert.Equal(t, models.MetricCPUUsage, repo.metrics[0].Type)
	assert.Equal(t, 92.5, repo.metrics[0].Value)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 59, 30, 0, time.UTC), repo.metrics[0].Timestamp.UTC())

	assert.Equal(t, models.MetricLoadAverage, repo.metrics[1].Type)
	assert.Equal(t, testNow, repo.metrics[1].Timestamp, "missing timestamps default to now")
}

func TestProcessMessage_SingleSample(t *testing.T) {
	repo, svc := newTelemetryFixture()

	stored, err := svc.ProcessMessage(context.Background(), []byte(`{"serverId":"s2","type":"MEMORY_USAGE","value":71}`))
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	require.Len(t, repo.metrics, 1)
	assert.Equal(t, "s2", repo.metrics[0].ServerID)
	assert.Equal(t, "%", repo.metrics[0].Unit)
}

func TestProcessMessage_Rejects(t *testing.T) {
	_, svc := newTelemetryFixture()
	ctx := context.Background()

	cases := map[string]string{
		"bad json":       `{"serverId":`,
		"no server":      `{"type":"CPU_USAGE","value":1}`,
		"no metrics":     `{"serverId":"s1"}`,
		"nothing usable": `{"serverId":"s1","metrics":[{"type":"BOGUS","value":1}]}`,
	}
	for name, payload := range cases {
		_, err := svc.ProcessMessage(ctx, []byte(payload))
		assert.True(t, apperror.IsKind(err, apperror.KindValidation), name)
	}
}

func TestHandleMessage(t *testing.T) {
	repo, svc := newTelemetryFixture()

	require.NoError(t, svc.HandleMessage("monitor/metrics", []byte(`{"serverId":"s1","type":"UPTIME","value":3600}`)))
	assert.Len(t, repo.metrics, 1)
	assert.Error(t, svc.HandleMessage("monitor/metrics", []byte(`nope`)))
}

func TestRenderTemplate(t *testing.T) {
	values := map[string]string{"serverId": "s1", "message": "hot"}

	assert.Equal(t, "s1: hot", RenderTemplate("{{serverId}}: {{ message }}", values))
	assert.Equal(t, "{{missing}} stays", RenderTemplate("{{missing}} stays", values))
	assert.Equal(t, "plain", RenderTemplate("plain", values))
}

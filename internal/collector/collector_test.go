package collector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	sent, recv uint64
	diskErr    error
	diskPath   string
}

func (f *fakeSource) CPUPercent(ctx context.Context) (float64, error) { return 42.5, nil }
func (f *fakeSource) MemoryPercent(ctx context.Context) (float64, error) { return 61, nil }
func (f *fakeSource) Load1(ctx context.Context) (float64, error) { return 0.75, nil }
func (f *fakeSource) Uptime(ctx context.Context) (uint64, error) { return 3600, nil }

func (f *fakeSource) DiskPercent(ctx context.Context, path string) (float64, error) {
	f.diskPath = path
	return 80, f.diskErr
}

func (f *fakeSource) NetCounters(ctx context.Context) (uint64, uint64, error) {
	return f.sent, f.recv, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) PublishJSON(topic string, data interface{}) error {
	if f.err != nil {
		return f.err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func types(msg Message) []models.MetricType {
	var out []models.MetricType
	for _, s := range msg.Metrics {
		out = append(out, s.Type)
	}
	return out
}

func valueOf(msg Message, t models.MetricType) (float64, bool) {
	for _, s := range msg.Metrics {
		if s.Type == t {
			return s.Value, true
		}
	}
	return 0, false
}

func TestNew_RequiresServerID(t *testing.T) {
	_, err := New(Config{}, &fakeSource{}, &fakePublisher{}, nil, logger.Nop())
	assert.Error(t, err)
}

func TestCollect_NetworkRatesNeedTwoReadings(t *testing.T) {
	src := &fakeSource{sent: 1000, recv: 5000}
	clk := clock.NewMock(testNow)
	c, err := New(Config{ServerID: "web-01"}, src, &fakePublisher{}, clk, logger.Nop())
	require.NoError(t, err)

	first := c.Collect(context.Background())
	assert.Equal(t, "web-01", first.ServerID)
	assert.Equal(t, []models.MetricType{
		models.MetricCPUUsage, models.MetricMemoryUsage, models.MetricDiskUsage,
		models.MetricLoadAverage, models.MetricUptime,
	}, types(first))
	assert.Equal(t, "/", src.diskPath)
	assert.Equal(t, "%", first.Metrics[0].Unit)
	assert.Equal(t, testNow, first.Metrics[0].Timestamp)

	clk.Add(10 * time.Second)
	src.sent, src.recv = 3000, 25000

	second := c.Collect(context.Background())
	in, ok := valueOf(second, models.MetricNetworkIn)
	require.True(t, ok)
	assert.Equal(t, 2000.0, in)
	out, ok := valueOf(second, models.MetricNetworkOut)
	require.True(t, ok)
	assert.Equal(t, 200.0, out)
}

func TestCollect_CounterResetSkipsRates(t *testing.T) {
	src := &fakeSource{sent: 5000, recv: 5000}
	clk := clock.NewMock(testNow)
	c, err := New(Config{ServerID: "web-01"}, src, &fakePublisher{}, clk, logger.Nop())
	require.NoError(t, err)

	c.Collect(context.Background())
	clk.Add(10 * time.Second)
	src.sent, src.recv = 10, 10

	msg := c.Collect(context.Background())
	_, ok := valueOf(msg, models.MetricNetworkIn)
	assert.False(t, ok)

	clk.Add(10 * time.Second)
	src.sent, src.recv = 110, 1010
	msg = c.Collect(context.Background())
	in, ok := valueOf(msg, models.MetricNetworkIn)
	require.True(t, ok)
	assert.Equal(t, 100.0, in)
}

func TestCollect_SkipsFailedReadings(t *testing.T) {
	src := &fakeSource{diskErr: errors.New("permission denied")}
	c, err := New(Config{ServerID: "web-01", DiskPath: "/data"}, src, &fakePublisher{}, clock.NewMock(testNow), logger.Nop())
	require.NoError(t, err)

	msg := c.Collect(context.Background())
	assert.NotContains(t, types(msg), models.MetricDiskUsage)
	assert.Equal(t, "/data", src.diskPath)
}

func TestPublish_WireFormat(t *testing.T) {
	pub := &fakePublisher{}
	c, err := New(Config{ServerID: "web-01", Topic: "custom/metrics"}, &fakeSource{}, pub, clock.NewMock(testNow), logger.Nop())
	require.NoError(t, err)

	require.NoError(t, c.Publish(context.Background()))
	require.Equal(t, 1, pub.count())
	assert.Equal(t, "custom/metrics", pub.topics[0])

	var decoded struct {
		ServerID string `json:"serverId"`
		Metrics  []struct {
			Type      string    `json:"type"`
			Value     float64   `json:"value"`
			Unit      string    `json:"unit"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, "web-01", decoded.ServerID)
	assert.Equal(t, "CPU_USAGE", decoded.Metrics[0].Type)
	assert.Equal(t, 42.5, decoded.Metrics[0].Value)

	pub.err = errors.New("not connected")
	assert.Error(t, c.Publish(context.Background()))
}

func TestRun_PublishesEveryInterval(t *testing.T) {
	pub := &fakePublisher{}
	clk := clock.NewMock(testNow)
	c, err := New(Config{ServerID: "web-01", Interval: time.Minute}, &fakeSource{}, pub, clk, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, clk.AwaitWaiters(1, time.Second))
	clk.Add(time.Minute)
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

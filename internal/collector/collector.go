// Package collector samples host metrics and publishes them to the
// telemetry topic in the format the API ingests.
package collector

import (
	"context"
	"fmt"
	"time"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTopic    = "monitor/metrics"
	DefaultDiskPath = "/"
)

type Sample struct {
	Type      models.MetricType `json:"type"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Timestamp time.Time         `json:"timestamp"`
}

type Message struct {
	ServerID string   `json:"serverId"`
	Metrics  []Sample `json:"metrics"`
}

type Publisher interface {
	PublishJSON(topic string, data interface{}) error
}

type Config struct {
	ServerID string
	Topic    string
	Interval time.Duration
	DiskPath string
}

type Collector struct {
	cfg    Config
	source Source
	pub    Publisher
	clock  clock.Clock
	log    *logger.Logger

	prevAt   time.Time
	prevSent uint64
	prevRecv uint64
}

func New(cfg Config, source Source, pub Publisher, clk clock.Clock, log *logger.Logger) (*Collector, error) {
	if cfg.ServerID == "" {
		return nil, fmt.Errorf("server id cannot be empty")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = DefaultDiskPath
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Collector{
		cfg:    cfg,
		source: source,
		pub:    pub,
		clock:  clk,
		log:    log,
	}, nil
}

// Collect takes one reading. A figure the source cannot provide is logged
// and left out. Network rates need a previous reading, so the first call
// carries none.
func (c *Collector) Collect(ctx context.Context) Message {
	now := c.clock.Now()
	msg := Message{ServerID: c.cfg.ServerID}

	add := func(t models.MetricType, value float64, err error) {
		if err != nil {
			c.log.Warn("Failed to read %s: %v", t.Humanize(), err)
			return
		}
		msg.Metrics = append(msg.Metrics, Sample{Type: t, Value: value, Unit: t.DefaultUnit(), Timestamp: now})
	}

	v, err := c.source.CPUPercent(ctx)
	add(models.MetricCPUUsage, v, err)

	v, err = c.source.MemoryPercent(ctx)
	add(models.MetricMemoryUsage, v, err)

	v, err = c.source.DiskPercent(ctx, c.cfg.DiskPath)
	add(models.MetricDiskUsage, v, err)

	v, err = c.source.Load1(ctx)
	add(models.MetricLoadAverage, v, err)

	uptime, err := c.source.Uptime(ctx)
	add(models.MetricUptime, float64(uptime), err)

	sent, recv, err := c.source.NetCounters(ctx)
	if err != nil {
		c.log.Warn("Failed to read network counters: %v", err)
	} else {
		elapsed := now.Sub(c.prevAt).Seconds()
		// counters reset on interface restart
		if !c.prevAt.IsZero() && elapsed > 0 && sent >= c.prevSent && recv >= c.prevRecv {
			add(models.MetricNetworkIn, float64(recv-c.prevRecv)/elapsed, nil)
			add(models.MetricNetworkOut, float64(sent-c.prevSent)/elapsed, nil)
		}
		c.prevAt, c.prevSent, c.prevRecv = now, sent, recv
	}

	return msg
}

// Publish collects and sends one message.
func (c *Collector) Publish(ctx context.Context) error {
	msg := c.Collect(ctx)
	if len(msg.Metrics) == 0 {
		return fmt.Errorf("no metrics collected")
	}
	if err := c.pub.PublishJSON(c.cfg.Topic, msg); err != nil {
		return fmt.Errorf("failed to publish metrics: %w", err)
	}
	c.log.Debug("Published %d metrics for %s to %s", len(msg.Metrics), c.cfg.ServerID, c.cfg.Topic)
	return nil
}

// Run publishes once per interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.log.Info("Collecting metrics for %s every %v", c.cfg.ServerID, c.cfg.Interval)
	for {
		if err := c.Publish(ctx); err != nil {
			c.log.Error("%v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(c.cfg.Interval):
		}
	}
}

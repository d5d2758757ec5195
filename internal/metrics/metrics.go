// Package metrics exposes pipeline counters and gauges for Prometheus.
//
// Nothing in the pipeline calls into this package directly. Metrics are fed
// from the outside through the hooks each component already offers: a
// wildcard bus subscription, the queue observer, breaker transitions and
// scheduler runs.
package metrics

import (
	"context"
	"net/http"
	"time"

	"ServerMonitorAPI/internal/eventbus"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/queue"
	"ServerMonitorAPI/internal/resilience"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "server_monitor"

type Metrics struct {
	registry *prometheus.Registry

	Events             *prometheus.CounterVec
	AlertsTriggered    *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	QueueJobs          *prometheus.CounterVec
	QueueDepth         *prometheus.GaugeVec
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
	TaskFailures       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of events seen on the event bus",
		}, []string{"type"}),

		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Total number of new alerts by kind and severity",
		}, []string{"type", "severity"}),

		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of delivery attempts by channel and result",
		}, []string{"channel", "status"}),

		QueueJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_total",
			Help:      "Total number of processed queue jobs by outcome",
		}, []string{"outcome"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of jobs in each queue state",
		}, []string{"state"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per service (0 closed, 1 half open, 2 open)",
		}, []string{"service"}),

		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker transitions",
		}, []string{"service", "to"}),

		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_task_duration_seconds",
			Help:      "Duration of scheduled task runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),

		TaskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_task_failures_total",
			Help:      "Total number of failed scheduled task runs",
		}, []string{"task"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Events,
		m.AlertsTriggered,
		m.Notifications,
		m.QueueJobs,
		m.QueueDepth,
		m.BreakerState,
		m.BreakerTransitions,
		m.TaskDuration,
		m.TaskFailures,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Register subscribes to every bus event.
func (m *Metrics) Register(bus eventbus.Bus) (eventbus.SubscriptionID, error) {
	return bus.Subscribe(models.EventWildcard, m.ObserveEvent)
}

func (m *Metrics) ObserveEvent(_ context.Context, event models.Event) error {
	m.Events.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case models.EventAlertTriggered:
		var p models.AlertTriggeredPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		m.AlertsTriggered.WithLabelValues(string(p.Type), string(p.Severity)).Inc()

	case models.EventNotificationSent, models.EventNotificationFailed:
		var p models.NotificationPayload
		if err := event.Decode(&p); err != nil {
			return err
		}
		m.Notifications.WithLabelValues(string(p.ChannelType), string(p.Status)).Inc()
	}
	return nil
}

func (m *Metrics) ObserveJob(outcome queue.Outcome, _ queue.Job) {
	m.QueueJobs.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) SetQueueDepth(stats queue.Stats) {
	m.QueueDepth.WithLabelValues("ready").Set(float64(stats.Ready))
	m.QueueDepth.WithLabelValues("processing").Set(float64(stats.Processing))
	m.QueueDepth.WithLabelValues("delayed").Set(float64(stats.Delayed))
	m.QueueDepth.WithLabelValues("dead").Set(float64(stats.Dead))
}

func (m *Metrics) ObserveBreaker(service string, _, to resilience.State) {
	m.BreakerState.WithLabelValues(service).Set(breakerValue(to))
	m.BreakerTransitions.WithLabelValues(service, string(to)).Inc()
}

func (m *Metrics) ObserveTask(name string, took time.Duration, err error) {
	m.TaskDuration.WithLabelValues(name).Observe(took.Seconds())
	if err != nil {
		m.TaskFailures.WithLabelValues(name).Inc()
	}
}

func breakerValue(s resilience.State) float64 {
	switch s {
	case resilience.StateHalfOpen:
		return 1
	case resilience.StateOpen:
		return 2
	default:
		return 0
	}
}

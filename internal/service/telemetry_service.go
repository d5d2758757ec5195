package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/repository"
	"ServerMonitorAPI/internal/validation"
)

// Sample is one reading on the telemetry topic.
type Sample struct {
	Type      string     `json:"type"`
	Value     *float64   `json:"value"`
	Unit      string     `json:"unit,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// TelemetryMessage is either a batch ({serverId, metrics:[...]}) or a single
// sample with serverId at the top level.
type TelemetryMessage struct {
	ServerID string   `json:"serverId"`
	Metrics  []Sample `json:"metrics,omitempty"`
	Sample
}

type TelemetryService struct {
	metricRepo repository.IMetricRepository
	clock      clock.Clock
	log        *logger.Logger
}

func NewTelemetryService(metricRepo repository.IMetricRepository, clk clock.Clock, log *logger.Logger) *TelemetryService {
	if clk == nil {
		clk = clock.New()
	}
	return &TelemetryService{
		metricRepo: metricRepo,
		clock:      clk,
		log:        log,
	}
}

// HandleMessage adapts ProcessMessage to the MQTT handler signature.
func (s *TelemetryService) HandleMessage(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stored, err := s.ProcessMessage(ctx, payload)
	if err != nil {
		s.log.Warn("Telemetry on %s rejected: %v", topic, err)
		return err
	}
	s.log.Debug("Stored %d samples from %s", stored, topic)
	return nil
}

// ProcessMessage decodes, validates and stores the samples in payload.
// Invalid samples are skipped; the message fails only if none are usable.
func (s *TelemetryService) ProcessMessage(ctx context.Context, payload []byte) (int, error) {
	var msg TelemetryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, apperror.Wrap(err, apperror.KindValidation, "invalid telemetry JSON")
	}
	if msg.ServerID == "" {
		return 0, apperror.Validation("telemetry is missing serverId")
	}

	samples := msg.Metrics
	if len(samples) == 0 && msg.Type != "" {
		samples = []Sample{msg.Sample}
	}
	if len(samples) == 0 {
		return 0, apperror.Validation("telemetry from %s carries no metrics", msg.ServerID)
	}

	metrics := make([]models.Metric, 0, len(samples))
	for i, sample := range samples {
		metric, err := s.toMetric(msg.ServerID, sample)
		if err != nil {
			s.log.Warn("Skipping sample %d from %s: %v", i, msg.ServerID, err)
			continue
		}
		metrics = append(metrics, metric)
	}

	if len(metrics) == 0 {
		return 0, apperror.Validation("telemetry from %s has no valid samples", msg.ServerID)
	}

	if err := s.Ingest(ctx, metrics); err != nil {
		return 0, err
	}
	return len(metrics), nil
}

func (s *TelemetryService) toMetric(serverID string, sample Sample) (models.Metric, error) {
	if sample.Value == nil {
		return models.Metric{}, apperror.Validation("sample %s has no value", sample.Type)
	}

	metric := models.Metric{
		ServerID: serverID,
		Type:     models.MetricType(sample.Type),
		Value:    *sample.Value,
		Unit:     sample.Unit,
	}
	if metric.Unit == "" {
		metric.Unit = metric.Type.DefaultUnit()
	}
	if sample.Timestamp != nil {
		metric.Timestamp = *sample.Timestamp
	} else {
		metric.Timestamp = s.clock.Now()
	}

	if err := validation.Struct(metric); err != nil {
		return models.Metric{}, err
	}
	return metric, nil
}

// Ingest stores already-validated metrics.
func (s *TelemetryService) Ingest(ctx context.Context, metrics []models.Metric) error {
	if len(metrics) == 1 {
		if err := s.metricRepo.Insert(ctx, &metrics[0]); err != nil {
			return fmt.Errorf("failed to store metric: %w", err)
		}
		return nil
	}
	if err := s.metricRepo.InsertBatch(ctx, metrics); err != nil {
		return fmt.Errorf("failed to store %d metrics: %w", len(metrics), err)
	}
	return nil
}

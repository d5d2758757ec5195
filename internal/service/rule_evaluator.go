package service

import (
	"context"
	"fmt"
	"time"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/repository"
)

// AlertUpserter is the part of the alert store the evaluator drives.
type AlertUpserter interface {
	Upsert(ctx context.Context, metric models.Metric, rule models.AlertRule) (*models.Alert, bool, error)
}

type EvaluationSummary struct {
	Rules    int `json:"rules"`
	Samples  int `json:"samples"`
	Breaches int `json:"breaches"`
	Created  int `json:"created"`
	Failures int `json:"failures"`
}

// RuleEvaluator checks enabled rules against recent samples of their
// metric type and hands every breaching sample to the alert store.
type RuleEvaluator struct {
	rules    repository.IRuleRepository
	metrics  repository.IMetricRepository
	alerts   AlertUpserter
	lookback time.Duration
	clock    clock.Clock
	log      *logger.Logger
}

func NewRuleEvaluator(
	rules repository.IRuleRepository,
	metrics repository.IMetricRepository,
	alerts AlertUpserter,
	lookback time.Duration,
	clk clock.Clock,
	log *logger.Logger,
) *RuleEvaluator {
	if lookback <= 0 {
		lookback = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.New()
	}
	return &RuleEvaluator{
		rules:    rules,
		metrics:  metrics,
		alerts:   alerts,
		lookback: lookback,
		clock:    clk,
		log:      log,
	}
}

// Evaluate runs one sweep over every enabled rule. A failing rule is logged
// and counted; the sweep carries on with the next one. Only a failure to
// load the rules aborts the sweep.
func (e *RuleEvaluator) Evaluate(ctx context.Context) (EvaluationSummary, error) {
	var summary EvaluationSummary

	rules, err := e.rules.GetEnabled(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load alert rules: %w", err)
	}
	summary.Rules = len(rules)

	since := e.clock.Now().Add(-e.lookback)

	for _, rule := range rules {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		samples, breaches, created, err := e.evaluateRule(ctx, rule, since)
		summary.Samples += samples
		summary.Breaches += breaches
		summary.Created += created
		if err != nil {
			summary.Failures++
			e.log.Error("Rule %d (%s) evaluation failed: %v", rule.ID, rule.Name, err)
		}
	}

	return summary, nil
}

func (e *RuleEvaluator) evaluateRule(ctx context.Context, rule models.AlertRule, since time.Time) (samples, breaches, created int, err error) {
	if rule.Condition == models.ConditionUnknown {
		e.log.Warn("Rule %d (%s) has an unknown condition and never fires", rule.ID, rule.Name)
		return 0, 0, 0, nil
	}

	metrics, err := e.metrics.GetByTypeSince(ctx, rule.MetricType, since)
	if err != nil {
		return 0, 0, 0, err
	}
	samples = len(metrics)

	// The feed is newest first. Walk it oldest first so the ACTIVE alert ends
	// up carrying the latest breaching value.
	for i := len(metrics) - 1; i >= 0; i-- {
		metric := metrics[i]
		if !rule.Condition.Evaluate(metric.Value, rule.Threshold) {
			continue
		}
		breaches++

		_, isNew, err := e.alerts.Upsert(ctx, metric, rule)
		if err != nil {
			return samples, breaches, created, fmt.Errorf("upsert for server %s: %w", metric.ServerID, err)
		}
		if isNew {
			created++
		}
	}

	return samples, breaches, created, nil
}

// Run is the scheduler entry point.
func (e *RuleEvaluator) Run(ctx context.Context) error {
	summary, err := e.Evaluate(ctx)
	if err != nil {
		return err
	}

	e.log.Info("Rule evaluation: rules=%d samples=%d breaches=%d created=%d failures=%d",
		summary.Rules, summary.Samples, summary.Breaches, summary.Created, summary.Failures)
	return nil
}

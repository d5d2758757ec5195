package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ServerMonitorAPI/internal/models"
)

// IRuleRepository reads alert rules. Rules are edited by another service;
// this process never writes them.
type IRuleRepository interface {
	GetEnabled(ctx context.Context) ([]models.AlertRule, error)
}

type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) GetEnabled(ctx context.Context) ([]models.AlertRule, error) {
	query := `
		SELECT id, name, metric_type, condition, threshold, severity, enabled, created_at, updated_at
		FROM alert_rules
		WHERE enabled = TRUE
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled rules: %w", err)
	}
	defer rows.Close()

	rules := []models.AlertRule{}
	for rows.Next() {
		var rule models.AlertRule
		var condition string
		err := rows.Scan(
			&rule.ID, &rule.Name, &rule.MetricType, &condition, &rule.Threshold,
			&rule.Severity, &rule.Enabled, &rule.CreatedAt, &rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rule.Condition = models.ParseCondition(condition)
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

package service

import (
	"context"

	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/repository"
)

type SubscriptionMatcher struct {
	repo repository.ISubscriptionRepository
	log  *logger.Logger
}

func NewSubscriptionMatcher(repo repository.ISubscriptionRepository, log *logger.Logger) *SubscriptionMatcher {
	return &SubscriptionMatcher{repo: repo, log: log}
}

// Match returns the active subscriptions interested in an alert of kind on
// serverID. A subscription without a server or alert type matches any.
func (m *SubscriptionMatcher) Match(ctx context.Context, serverID string, kind models.AlertKind) ([]models.Subscription, error) {
	candidates, err := m.repo.FindMatching(ctx, serverID, kind)
	if err != nil {
		return nil, err
	}

	matched := make([]models.Subscription, 0, len(candidates))
	for _, sub := range candidates {
		if sub.Matches(serverID, kind) {
			matched = append(matched, sub)
		}
	}

	m.log.Debug("%d subscriptions match %s/%s", len(matched), serverID, kind)
	return matched, nil
}

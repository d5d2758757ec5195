// Package provider delivers rendered notifications over external channels.
// A provider never returns an error to its caller: the outcome is reported
// in Result so the delivery worker can persist it.
package provider

import (
	"context"
	"fmt"
	"sync"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/models"
)

type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func ok() Result {
	return Result{Success: true}
}

func failure(format string, args ...interface{}) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

type Provider interface {
	Send(ctx context.Context, destination, subject, content string, metadata map[string]interface{}) Result
}

// Registry selects a provider by channel kind.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.ChannelKind]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[models.ChannelKind]Provider)}
}

func (r *Registry) Register(kind models.ChannelKind, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[kind] = p
}

func (r *Registry) Get(kind models.ChannelKind) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, found := r.providers[kind]
	if !found {
		return nil, apperror.Validation("no provider registered for channel %q", kind)
	}
	return p, nil
}

func (r *Registry) Channels() []models.ChannelKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.ChannelKind, 0, len(r.providers))
	for kind := range r.providers {
		kinds = append(kinds, kind)
	}
	return kinds
}

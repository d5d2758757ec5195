package resilience

import (
	"context"
	"sync"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/config"
	"ServerMonitorAPI/internal/logger"
)

type RegistryConfig struct {
	Services []config.ServiceEndpoint
	Breaker  BreakerConfig
	Clock    clock.Clock
	// OnBreakerChange is invoked for every breaker transition of any service.
	OnBreakerChange func(service string, from, to State)
}

// Registry owns one ServiceClient (and breaker) per configured service.
type Registry struct {
	clients map[string]*ServiceClient
	order   []string
	log     *logger.Logger
}

func NewRegistry(cfg RegistryConfig, log *logger.Logger) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	r := &Registry{
		clients: make(map[string]*ServiceClient, len(cfg.Services)),
		log:     log,
	}

	for _, endpoint := range cfg.Services {
		name := endpoint.Name

		bcfg := cfg.Breaker
		bcfg.Clock = cfg.Clock
		bcfg.OnStateChange = func(from, to State) {
			log.Warn("Circuit breaker for %s: %s -> %s", name, from, to)
			if cfg.OnBreakerChange != nil {
				cfg.OnBreakerChange(name, from, to)
			}
		}

		breaker := NewCircuitBreaker(name, bcfg)
		r.clients[name] = NewServiceClient(endpoint, breaker, cfg.Clock, log)
		r.order = append(r.order, name)

		log.Debug("Registered service %s at %s", name, endpoint.BaseURL)
	}

	return r
}

// Client returns the client for name. Callers treat a missing client the
// same as an unavailable service and use their fallback.
func (r *Registry) Client(name string) (*ServiceClient, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// CheckHealth polls every service concurrently and returns once all have
// reported.
func (r *Registry) CheckHealth(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, name := range r.order {
		c := r.clients[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.CheckHealth(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (r *Registry) Status() []ServiceStatus {
	statuses := make([]ServiceStatus, 0, len(r.order))
	for _, name := range r.order {
		statuses = append(statuses, r.clients[name].Status())
	}
	return statuses
}

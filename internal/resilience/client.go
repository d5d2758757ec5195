package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/config"
	"ServerMonitorAPI/internal/logger"
)

// ServiceClient is the HTTP client for one sibling service. Calls go
// through the service's CircuitBreaker; the health flag is maintained
// separately by CheckHealth and never feeds the breaker.
type ServiceClient struct {
	name       string
	baseURL    string
	healthPath string
	http       *http.Client
	breaker    *CircuitBreaker
	clock      clock.Clock
	log        *logger.Logger

	mu        sync.RWMutex
	healthy   bool
	lastCheck time.Time
	lastError string
}

func NewServiceClient(endpoint config.ServiceEndpoint, breaker *CircuitBreaker, clk clock.Clock, log *logger.Logger) *ServiceClient {
	if clk == nil {
		clk = clock.New()
	}
	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = config.DefaultServiceTimeout
	}

	return &ServiceClient{
		name:       endpoint.Name,
		baseURL:    endpoint.BaseURL,
		healthPath: endpoint.HealthPath,
		http:       &http.Client{Timeout: timeout},
		breaker:    breaker,
		clock:      clk,
		log:        log,
	}
}

func (c *ServiceClient) Name() string {
	return c.name
}

func (c *ServiceClient) Breaker() *CircuitBreaker {
	return c.breaker
}

// GetJSON issues GET path and decodes a 2xx JSON body into out.
func (c *ServiceClient) GetJSON(ctx context.Context, path string, out interface{}, fallback func(error) error) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, fallback)
}

func (c *ServiceClient) PostJSON(ctx context.Context, path string, body, out interface{}, fallback func(error) error) error {
	return c.Do(ctx, http.MethodPost, path, body, out, fallback)
}

// Do performs one request through the breaker. Transport errors, timeouts
// and non-2xx responses all count as failures. There is no retry.
func (c *ServiceClient) Do(ctx context.Context, method, path string, body, out interface{}, fallback func(error) error) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, method, path, body, out)
	}, fallback)
}

func (c *ServiceClient) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperror.Wrapf(err, apperror.KindValidation, "%s: failed to encode request", c.name)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperror.Wrapf(err, apperror.KindInternal, "%s: failed to build request", c.name)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Wrapf(err, apperror.KindTransient, "%s %s %s", c.name, method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := apperror.KindTransient
		if resp.StatusCode == http.StatusNotFound {
			kind = apperror.KindNotFound
		}
		return apperror.Errorf(kind, "%s %s %s: status %d: %s", c.name, method, path, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Wrapf(err, apperror.KindTransient, "%s: failed to decode response", c.name)
	}
	return nil
}

// CheckHealth polls the health endpoint and records the result. It
// bypasses the breaker so an OPEN breaker never hides a recovered service.
func (c *ServiceClient) CheckHealth(ctx context.Context) bool {
	healthy := true
	var errMsg string

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		healthy, errMsg = false, err.Error()
	} else {
		resp, err := c.http.Do(req)
		if err != nil {
			healthy, errMsg = false, err.Error()
		} else {
			resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				healthy, errMsg = false, fmt.Sprintf("status %d", resp.StatusCode)
			}
		}
	}

	c.mu.Lock()
	changed := c.healthy != healthy || c.lastCheck.IsZero()
	c.healthy = healthy
	c.lastCheck = c.clock.Now()
	c.lastError = errMsg
	c.mu.Unlock()

	if changed {
		if healthy {
			c.log.Info("Service %s is healthy", c.name)
		} else {
			c.log.Warn("Service %s is unhealthy: %s", c.name, errMsg)
		}
	}

	return healthy
}

type ServiceStatus struct {
	Name         string     `json:"name"`
	BaseURL      string     `json:"base_url"`
	Healthy      bool       `json:"healthy"`
	LastCheck    *time.Time `json:"last_check"`
	LastError    string     `json:"last_error,omitempty"`
	Breaker      State      `json:"breaker_state"`
	FailureCount int        `json:"failure_count"`
	LastFailure  *time.Time `json:"last_failure"`
}

func (c *ServiceClient) Status() ServiceStatus {
	c.mu.RLock()
	s := ServiceStatus{
		Name:      c.name,
		BaseURL:   c.baseURL,
		Healthy:   c.healthy,
		LastError: c.lastError,
	}
	if !c.lastCheck.IsZero() {
		t := c.lastCheck
		s.LastCheck = &t
	}
	c.mu.RUnlock()

	b := c.breaker.State()
	s.Breaker = b.State
	s.FailureCount = b.FailureCount
	s.LastFailure = b.LastFailureTime
	return s
}

package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"ServerMonitorAPI/internal/logger"

	"github.com/gorilla/mux"
)

// HealthCheck returns nil when the dependency is usable.
type HealthCheck func(ctx context.Context) error

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]bool   `json:"services"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type HealthHandler struct {
	checks map[string]HealthCheck
	log    *logger.Logger
}

// NewHealthHandler takes named dependency checks, for example "database",
// "redis" and "mqtt".
func NewHealthHandler(checks map[string]HealthCheck, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		log:    log,
	}
}

func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/health/live", h.Liveness).Methods("GET")
	r.HandleFunc("/health/ready", h.Readiness).Methods("GET")
}

func (h *HealthHandler) run(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]bool, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		err := h.checks[name](ctx)
		response.Services[name] = err == nil
		if err != nil {
			if response.Errors == nil {
				response.Errors = make(map[string]string)
			}
			response.Errors[name] = err.Error()
			response.Status = "degraded"
		}
	}
	return response
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := h.run(ctx)

	statusCode := http.StatusOK
	if response.Status == "degraded" {
		h.log.Warn("Health check degraded: %v", response.Errors)
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, response)
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := h.run(ctx)
	if response.Status != "healthy" {
		h.log.Warn("Readiness check failed: %v", response.Errors)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

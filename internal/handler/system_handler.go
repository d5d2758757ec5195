package handler

import (
	"context"
	"net/http"

	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/queue"
	"ServerMonitorAPI/internal/resilience"
	"ServerMonitorAPI/internal/scheduler"

	"github.com/gorilla/mux"
)

type QueueStatter interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

type ServiceStatuser interface {
	Status() []resilience.ServiceStatus
}

type TaskStatuser interface {
	Status() []scheduler.TaskStatus
}

// SystemHandler reports the state of the pipeline's moving parts.
type SystemHandler struct {
	queue    QueueStatter
	services ServiceStatuser
	tasks    TaskStatuser
	log      *logger.Logger
}

func NewSystemHandler(q QueueStatter, services ServiceStatuser, tasks TaskStatuser, log *logger.Logger) *SystemHandler {
	return &SystemHandler{
		queue:    q,
		services: services,
		tasks:    tasks,
		log:      log,
	}
}

func (h *SystemHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/queue/stats", h.QueueStats).Methods("GET")
	r.HandleFunc("/services/status", h.ServicesStatus).Methods("GET")
	r.HandleFunc("/scheduler/tasks", h.SchedulerTasks).Methods("GET")
}

func (h *SystemHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.log.Error("Failed to read queue stats: %v", err)
		respondError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (h *SystemHandler) ServicesStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.services.Status()
	if statuses == nil {
		statuses = []resilience.ServiceStatus{}
	}
	respondJSON(w, http.StatusOK, statuses)
}

func (h *SystemHandler) SchedulerTasks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.tasks.Status())
}

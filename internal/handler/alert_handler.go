package handler

import (
	"encoding/json"
	"net/http"

	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/service"

	"github.com/gorilla/mux"
)

type AlertHandler struct {
	alertService service.IAlertService
	log          *logger.Logger
}

func NewAlertHandler(alertService service.IAlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
		log:          log,
	}
}

type UpdateStatusRequest struct {
	Status models.AlertStatus `json:"status"`
}

func (h *AlertHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/alerts/active", h.GetActiveAlerts).Methods("GET")
	r.HandleFunc("/alerts/statistics", h.GetStatistics).Methods("GET")
	r.HandleFunc("/alerts/{id:[0-9]+}", h.GetAlert).Methods("GET")
	r.HandleFunc("/alerts/{id:[0-9]+}/status", h.UpdateStatus).Methods("PUT")
}

func (h *AlertHandler) GetActiveAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	alerts, err := h.alertService.GetActive(r.Context(), limit, offset)
	if err != nil {
		respondAppError(w, h.log, "get active alerts", err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	respondJSON(w, http.StatusOK, alerts)
}

func (h *AlertHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alertService.GetStatistics(r.Context())
	if err != nil {
		respondAppError(w, h.log, "get alert statistics", err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	alert, err := h.alertService.GetByID(r.Context(), id)
	if err != nil {
		respondAppError(w, h.log, "get alert", err)
		return
	}

	respondJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alert, err := h.alertService.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondAppError(w, h.log, "update alert status", err)
		return
	}

	h.log.Info("Alert %d moved to %s", id, alert.Status)
	respondJSON(w, http.StatusOK, alert)
}

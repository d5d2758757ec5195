package handler

import (
	"net/http"
	"strconv"
	"time"

	"ServerMonitorAPI/internal/apperror"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/service"

	"github.com/gorilla/mux"
)

type AnalyticsHandler struct {
	analyticsService service.IAnalyticsService
	log              *logger.Logger
}

func NewAnalyticsHandler(analyticsService service.IAnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		log:              log,
	}
}

func (h *AnalyticsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/analytics/servers/{server_id}/timeseries", h.GetTimeSeries).Methods("GET")
	r.HandleFunc("/analytics/servers/{server_id}/summary", h.GetSummary).Methods("GET")
	r.HandleFunc("/analytics/servers/{server_id}/anomalies", h.DetectAnomalies).Methods("GET")
	r.HandleFunc("/analytics/notifications", h.GetDeliveryStats).Methods("GET")
}

func (h *AnalyticsHandler) GetTimeSeries(w http.ResponseWriter, r *http.Request) {
	window, err := parseTimeRange(r)
	if err != nil {
		respondAppError(w, h.log, "get time series", err)
		return
	}

	var bucket time.Duration
	if v := r.URL.Query().Get("interval"); v != "" {
		if bucket, err = time.ParseDuration(v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid interval")
			return
		}
	}

	data, err := h.analyticsService.TimeSeries(r.Context(), mux.Vars(r)["server_id"], r.URL.Query().Get("type"), window, bucket)
	if err != nil {
		respondAppError(w, h.log, "get time series", err)
		return
	}

	respondJSON(w, http.StatusOK, data)
}

func (h *AnalyticsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	window, err := parseTimeRange(r)
	if err != nil {
		respondAppError(w, h.log, "get metric summary", err)
		return
	}

	data, err := h.analyticsService.Summary(r.Context(), mux.Vars(r)["server_id"], window)
	if err != nil {
		respondAppError(w, h.log, "get metric summary", err)
		return
	}

	respondJSON(w, http.StatusOK, data)
}

func (h *AnalyticsHandler) DetectAnomalies(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 0)

	var deviation float64
	if v := r.URL.Query().Get("deviation"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid deviation")
			return
		}
		deviation = parsed
	}

	data, err := h.analyticsService.Anomalies(r.Context(), mux.Vars(r)["server_id"], hours, deviation)
	if err != nil {
		respondAppError(w, h.log, "detect anomalies", err)
		return
	}

	respondJSON(w, http.StatusOK, data)
}

func (h *AnalyticsHandler) GetDeliveryStats(w http.ResponseWriter, r *http.Request) {
	window, err := parseTimeRange(r)
	if err != nil {
		respondAppError(w, h.log, "get delivery stats", err)
		return
	}

	data, err := h.analyticsService.DeliveryStats(r.Context(), window)
	if err != nil {
		respondAppError(w, h.log, "get delivery stats", err)
		return
	}

	respondJSON(w, http.StatusOK, data)
}

// parseTimeRange reads RFC3339 start_time and end_time. Missing bounds are
// left zero for the service to default.
func parseTimeRange(r *http.Request) (service.Window, error) {
	var window service.Window
	q := r.URL.Query()

	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return window, apperror.Validation("invalid start_time %q", v)
		}
		window.Start = t
	}

	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return window, apperror.Validation("invalid end_time %q", v)
		}
		window.End = t
	}

	return window, nil
}

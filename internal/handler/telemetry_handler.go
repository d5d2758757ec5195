package handler

import (
	"context"
	"io"
	"net/http"

	"ServerMonitorAPI/internal/logger"

	"github.com/gorilla/mux"
)

const maxTelemetryBody = 1 << 20

type TelemetryIngester interface {
	ProcessMessage(ctx context.Context, payload []byte) (int, error)
}

// TelemetryHandler accepts the same payload as the MQTT telemetry topic
// for hosts that cannot reach the broker.
type TelemetryHandler struct {
	telemetry TelemetryIngester
	log       *logger.Logger
}

func NewTelemetryHandler(telemetry TelemetryIngester, log *logger.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		telemetry: telemetry,
		log:       log,
	}
}

func (h *TelemetryHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/telemetry", h.Ingest).Methods("POST")
}

func (h *TelemetryHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTelemetryBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	stored, err := h.telemetry.ProcessMessage(r.Context(), payload)
	if err != nil {
		respondAppError(w, h.log, "ingest telemetry", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]int{"stored": stored})
}

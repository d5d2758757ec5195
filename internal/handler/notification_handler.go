package handler

import (
	"net/http"

	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/service"

	"github.com/gorilla/mux"
)

type NotificationHandler struct {
	notificationService service.INotificationService
	log                 *logger.Logger
}

func NewNotificationHandler(notificationService service.INotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		log:                 log,
	}
}

type NotificationListResponse struct {
	Notifications []models.Notification `json:"notifications"`
	Total         int                   `json:"total"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

func (h *NotificationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/notifications", h.List).Methods("GET")
	r.HandleFunc("/notifications/{id:[0-9]+}", h.Get).Methods("GET")
	r.HandleFunc("/notifications/{id:[0-9]+}/retry", h.Retry).Methods("POST")
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.NotificationFilter{
		Status:      q.Get("status"),
		ChannelType: q.Get("channel"),
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	}

	list, total, err := h.notificationService.List(r.Context(), filter)
	if err != nil {
		respondAppError(w, h.log, "list notifications", err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}

	respondJSON(w, http.StatusOK, NotificationListResponse{
		Notifications: list,
		Total:         total,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	})
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	detail, err := h.notificationService.Get(r.Context(), id)
	if err != nil {
		respondAppError(w, h.log, "get notification", err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// Retry re-queues a failed notification. It answers 409 once retry_count
// has reached max_retries.
func (h *NotificationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	n, err := h.notificationService.ManualRetry(r.Context(), id)
	if err != nil {
		respondAppError(w, h.log, "retry notification", err)
		return
	}

	respondJSON(w, http.StatusAccepted, n)
}

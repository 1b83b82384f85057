package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/posturepulse/dashboard/internal/auth"
	"github.com/posturepulse/dashboard/internal/feed"
	"github.com/posturepulse/dashboard/internal/feedback"
	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/services"
)

const maxBodyBytes = 1 << 20

// PostureHandler serves the dashboard, ingest, live and feedback routes
type PostureHandler struct {
	service   *services.PostureService
	snapshots *feed.Snapshots
	feedback  *feedback.Coordinator
	logger    *zap.Logger
}

// NewPostureHandler creates a new posture handler
func NewPostureHandler(
	service *services.PostureService,
	snapshots *feed.Snapshots,
	coordinator *feedback.Coordinator,
	logger *zap.Logger,
) *PostureHandler {
	return &PostureHandler{
		service:   service,
		snapshots: snapshots,
		feedback:  coordinator,
		logger:    logger.With(zap.String("handler", "posture")),
	}
}

// RegisterRoutes registers the posture routes on the authenticated API router
func (h *PostureHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	posture := router.PathPrefix("/posture").Subrouter()
	posture.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	posture.HandleFunc("/live", h.Live).Methods(http.MethodGet)
	posture.HandleFunc("/records", h.StoreRecords).Methods(http.MethodPost)
	posture.HandleFunc("/feedback", h.TriggerFeedback).Methods(http.MethodPost)
	posture.HandleFunc("/feedback", h.LatestFeedback).Methods(http.MethodGet)

	h.logger.Info("Posture routes registered")
}

// Health reports whether the sample store is reachable
func (h *PostureHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		h.logger.Warn("Store health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "version": "v1"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": "v1"})
}

// Dashboard handles GET /posture/dashboard?window=today|latest&date=YYYY-MM-DD&limit=N
func (h *PostureHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())
	query := r.URL.Query()

	var day time.Time
	if raw := query.Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(feedback.DateLayout, raw, h.service.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
			return
		}
		day = parsed
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	params, err := h.service.WindowParams(user.ID, models.WindowKind(query.Get("window")), day, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dash, err := h.service.Dashboard(r.Context(), params)
	if err != nil {
		h.logger.Error("Failed to build dashboard", zap.String("subject_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load posture data")
		return
	}

	writeJSON(w, http.StatusOK, dash)
}

// Live returns the latest snapshot computed by the update feed
func (h *PostureHandler) Live(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	snap, ok := h.snapshots.Latest(user.ID)
	if !ok {
		writeError(w, http.StatusNotFound, "no live snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// StoreRecords handles POST /posture/records
func (h *PostureHandler) StoreRecords(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	var batch models.BatchRecords
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	stored, err := h.service.StoreRecords(r.Context(), user.ID, &batch)
	if err != nil {
		var vErr *services.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		h.logger.Error("Failed to store records", zap.String("subject_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store records")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "count": len(stored)})
}

type feedbackRequest struct {
	Kind feedback.Kind `json:"kind"`
	Date string        `json:"date,omitempty"`
}

// TriggerFeedback handles POST /posture/feedback
func (h *PostureHandler) TriggerFeedback(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	var body feedbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req := feedback.Request{SubjectID: user.ID, Kind: body.Kind}
	if body.Date != "" {
		day, err := time.ParseInLocation(feedback.DateLayout, body.Date, h.service.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be formatted YYYY-MM-DD")
			return
		}
		req.Date = day
	}

	result, err := h.feedback.Trigger(r.Context(), req)
	if err != nil {
		status, message := feedbackStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Feedback request failed", zap.String("subject_id", user.ID), zap.Error(err))
		}
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// LatestFeedback handles GET /posture/feedback
func (h *PostureHandler) LatestFeedback(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())

	result, err := h.feedback.Latest(r.Context(), user.ID)
	if errors.Is(err, feedback.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to read feedback", zap.String("subject_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read feedback")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func feedbackStatus(err error) (int, string) {
	switch {
	case errors.Is(err, feedback.ErrUnknownKind):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, feedback.ErrNoActivity):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, feedback.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, feedback.ErrSuperseded):
		return http.StatusConflict, err.Error()
	case errors.Is(err, feedback.ErrGenerationFailed):
		return http.StatusBadGateway, "feedback is temporarily unavailable, please retry"
	default:
		return http.StatusInternalServerError, "failed to generate feedback"
	}
}

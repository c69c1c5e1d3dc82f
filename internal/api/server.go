package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/zwangde/pulsed-power-ml/internal/ml"
	"github.com/zwangde/pulsed-power-ml/internal/models"
)

const defaultEventLimit = 50

// StateReader exposes the live state kept by the NILM service
type StateReader interface {
	Sensors() []models.Sensor
	LatestState(sensorID string) (*models.PowerUsage, bool)
}

// EventReader reads persisted switch events
type EventReader interface {
	RecentSwitchEvents(ctx context.Context, sensorID string, limit int) ([]models.SwitchEvent, error)
}

type Handler struct {
	state      StateReader
	events     EventReader
	appliances []ml.ApplianceSpec
}

// NewRouter builds the read API. events may be nil, in which case the
// events endpoint answers 503.
func NewRouter(state StateReader, events EventReader, appliances []ml.ApplianceSpec, timeout time.Duration) http.Handler {
	h := &Handler{
		state:      state,
		events:     events,
		appliances: appliances,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sensors", h.ListSensors)
		r.Get("/sensors/{sensorID}/state", h.GetState)
		r.Get("/sensors/{sensorID}/events", h.ListEvents)
		r.Get("/appliances", h.ListAppliances)
	})

	return r
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warnf("API: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state.Sensors())
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	sensorID := chi.URLParam(r, "sensorID")

	state, ok := h.state.LatestState(sensorID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "No state for sensor "+sensorID)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Event history is not configured")
		return
	}

	sensorID := chi.URLParam(r, "sensorID")
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.events.RecentSwitchEvents(r.Context(), sensorID, limit)
	if err != nil {
		log.WithField("sensor", sensorID).Errorf("API: failed to read events: %v", err)
		writeError(w, http.StatusInternalServerError, "database_error", "Failed to read events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) ListAppliances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.appliances)
}

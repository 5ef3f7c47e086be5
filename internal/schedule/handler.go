package schedule

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Handler exposes the schedule REST surface.
type Handler struct {
	manager *Manager
	logger  *logging.Logger
}

type upsertRequest struct {
	ProfessionalID string      `json:"professional_id"`
	Date           string      `json:"date"`
	Slots          []SlotInput `json:"slots"`
	Recurrence     string      `json:"recurrence,omitempty"`
}

// NewHandler creates a schedule handler.
func NewHandler(manager *Manager, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// Upsert handles PUT /schedule.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	rec, err := ParseRecurrence(req.Recurrence)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	slots, err := h.manager.SetAvailability(r.Context(), req.ProfessionalID, req.Date, req.Slots, rec)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("set availability failed", "error", err, "professional_id", req.ProfessionalID)
		http.Error(w, "failed to save schedule", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"slots": slots})
}

// AvailableSlots handles GET /schedule/{professionalID}/available-slots?date=.
func (h *Handler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required", http.StatusBadRequest)
		return
	}

	slots, err := h.manager.AvailableSlots(r.Context(), professionalID, date)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("available slots lookup failed", "error", err, "professional_id", professionalID, "date", date)
		http.Error(w, "failed to load slots", http.StatusInternalServerError)
		return
	}
	if slots == nil {
		slots = []Slot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"slots": slots})
}

package appointments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/schedule"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Handler exposes the appointment REST surface.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

type createRequest struct {
	DoctorID    string `json:"doctor_id"`
	UserID      string `json:"user_id"`
	PatientName string `json:"patient_name"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// NewHandler creates an appointment handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Create handles POST /appointments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	appt, err := h.service.Create(r.Context(), req.DoctorID, req.UserID, req.PatientName, req.Date, req.Time)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation), errors.Is(err, schedule.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, schedule.ErrSlotAlreadyBooked), errors.Is(err, schedule.ErrSlotNotFound):
			http.Error(w, "slot no longer available", http.StatusConflict)
		default:
			h.logger.Error("appointment create failed", "error", err)
			http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"appointment_id": appt.ID, "status": appt.Status})
}

// Get handles GET /appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	appt, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("appointment load failed", "error", err, "appointment_id", id)
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appt)
}

// Confirm handles PATCH /appointments/{id}/confirm (operator transition).
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(id uuid.UUID) (*Appointment, error) {
		return h.service.Confirm(r.Context(), id)
	})
}

// Complete handles PATCH /appointments/{id}/complete (operator transition).
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(id uuid.UUID) (*Appointment, error) {
		return h.service.Complete(r.Context(), id)
	})
}

// Cancel handles PATCH /appointments/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	h.applyTransition(w, r, func(id uuid.UUID) (*Appointment, error) {
		return h.service.Cancel(r.Context(), id, body.Reason)
	})
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID) (*Appointment, error)) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	appt, err := apply(id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("appointment transition failed", "error", err, "appointment_id", id)
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appt)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

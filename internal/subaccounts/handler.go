package subaccounts

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Handler exposes the subaccount REST surface.
type Handler struct {
	registry *Registry
	logger   *logging.Logger
}

// NewHandler creates a subaccount handler.
func NewHandler(registry *Registry, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// Create handles POST /subaccount (operator only).
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var params RegisterParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	sub, err := h.registry.Register(r.Context(), params)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			http.Error(w, "subaccount already registered", http.StatusConflict)
			return
		}
		h.logger.Error("subaccount registration failed", "error", err, "professional_id", params.ProfessionalID)
		http.Error(w, "failed to register subaccount", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sub)
}

// Get handles GET /subaccount/{professionalID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	professionalID := chi.URLParam(r, "professionalID")

	sub, err := h.registry.Lookup(r.Context(), professionalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "subaccount not found", http.StatusNotFound)
			return
		}
		h.logger.Error("subaccount lookup failed", "error", err, "professional_id", professionalID)
		http.Error(w, "failed to load subaccount", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

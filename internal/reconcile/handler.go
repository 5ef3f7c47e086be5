package reconcile

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/gateway"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Handler exposes the payment REST surface.
type Handler struct {
	service *Service
	// Consultation fee in minor units, charged when the request carries no amount.
	defaultFeeMinor int64
	logger          *logging.Logger
}

// NewHandler creates a payment handler.
func NewHandler(service *Service, defaultFeeMinor int64, logger *logging.Logger) *Handler {
	if service == nil {
		panic("reconcile: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, defaultFeeMinor: defaultFeeMinor, logger: logger}
}

type startPaymentRequest struct {
	// Amount is in major currency units; the gateway wants minor units.
	Amount        int64  `json:"amount"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	AppointmentID string `json:"appointment_id"`
}

// StartPayment handles POST /payment/start-payment.
func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var req startPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	apptID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	amountMinor := req.Amount * 100
	if req.Amount == 0 {
		amountMinor = h.defaultFeeMinor
	}

	result, err := h.service.StartPayment(r.Context(), StartPaymentParams{
		AppointmentID: apptID,
		AmountMinor:   amountMinor,
		Email:         req.Email,
		FullName:      req.FullName,
	})
	if err != nil {
		switch {
		case errors.Is(err, appointments.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, appointments.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, appointments.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, gateway.ErrUnavailable):
			http.Error(w, "payment gateway unavailable", http.StatusBadGateway)
		default:
			h.logger.Error("start payment failed", "error", err, "appointment_id", apptID)
			http.Error(w, "failed to start payment", http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type createPaymentRequest struct {
	Reference string `json:"reference"`
}

// CreatePayment handles POST /payment/create-payment: the client-side
// callback leg of reconciliation. It verifies the reference and settles the
// appointment; redelivery of a settled reference returns the existing record.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	rec, err := h.service.CompletePayment(r.Context(), req.Reference)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidReference):
			http.Error(w, "reference is required", http.StatusBadRequest)
		case errors.Is(err, gateway.ErrTransactionNotFound):
			http.Error(w, "transaction not found", http.StatusNotFound)
		case errors.Is(err, ErrPaymentFailed):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, ErrVerifyInFlight):
			http.Error(w, "verification already in progress", http.StatusConflict)
		case errors.Is(err, gateway.ErrUnavailable):
			http.Error(w, "payment gateway unavailable", http.StatusBadGateway)
		default:
			h.logger.Error("create payment failed", "error", err, "reference", req.Reference)
			http.Error(w, "failed to reconcile payment", http.StatusInternalServerError)
		}
		return
	}
	if rec == nil {
		// Verified but the appointment is in a terminal state; nothing to report.
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

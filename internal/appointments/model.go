package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is an appointment lifecycle state.
type Status string

const (
	// StatusPending: created, slot reserved, payment not yet initiated.
	StatusPending Status = "pending"
	// StatusBooked: payment initiation accepted, waiting on verification.
	StatusBooked Status = "booked"
	// StatusConfirmed: payment verified.
	StatusConfirmed Status = "confirmed"
	// StatusCompleted: service rendered. Terminal.
	StatusCompleted Status = "completed"
	// StatusCancelled: rolled back or called off, slot released. Terminal.
	StatusCancelled Status = "cancelled"
)

// Sentinel errors for the lifecycle manager.
var (
	ErrValidation        = errors.New("invalid appointment input")
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid appointment transition")
)

// transitions is the full legal transition table. Anything absent is illegal.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusBooked:    true,
		StatusCancelled: true,
	},
	StatusBooked: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
}

// CanTransitionTo reports whether next is legal from s.
func (s Status) CanTransitionTo(next Status) bool {
	return transitions[s][next]
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Appointment references exactly one reserved slot. It is never deleted;
// cancellation is a state, not a removal.
type Appointment struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     string    `json:"doctor_id"`
	UserID       string    `json:"user_id"`
	PatientName  string    `json:"patient_name"`
	Day          string    `json:"date"`
	Start        string    `json:"time"`
	SlotID       uuid.UUID `json:"slot_id"`
	Status       Status    `json:"status"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

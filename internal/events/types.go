package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Appointment transition event types consumed by the external notification
// dispatcher. The core only emits these; delivery is someone else's job.
const (
	TypeAppointmentConfirmed = "appointment.confirmed.v1"
	TypeAppointmentCancelled = "appointment.cancelled.v1"
)

// AppointmentEvent announces a state transition on an appointment.
type AppointmentEvent struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	UserID        string    `json:"user_id"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier receives transition events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Emit(ctx context.Context, event AppointmentEvent)
}

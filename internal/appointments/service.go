package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/observability/metrics"
	"github.com/clinicbook/booking-platform/internal/schedule"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// SlotManager is the slice of the schedule manager the lifecycle needs.
type SlotManager interface {
	Reserve(ctx context.Context, professionalID, day, start string) (*schedule.Reservation, error)
	Release(ctx context.Context, slotID uuid.UUID) error
}

// Service owns the appointment entity and enforces its state machine.
type Service struct {
	store    Store
	slots    SlotManager
	notifier events.Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewService constructs an appointment lifecycle service.
func NewService(store Store, slots SlotManager, notifier events.Notifier, logger *logging.Logger) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if slots == nil {
		panic("appointments: slot manager required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, slots: slots, notifier: notifier, logger: logger}
}

// WithMetrics attaches a metrics collector. Nil is tolerated everywhere.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// Create reserves the requested slot and records a pending appointment
// referencing it. Slot failures surface untranslated so callers see the
// schedule manager's own conflict errors.
func (s *Service) Create(ctx context.Context, doctorID, userID, patientName, day, start string) (*Appointment, error) {
	if strings.TrimSpace(doctorID) == "" || strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: doctor id and user id are required", ErrValidation)
	}
	if strings.TrimSpace(patientName) == "" {
		return nil, fmt.Errorf("%w: patient name is required", ErrValidation)
	}

	reservation, err := s.slots.Reserve(ctx, doctorID, day, start)
	if err != nil {
		if errors.Is(err, schedule.ErrSlotAlreadyBooked) {
			s.metrics.ObserveReservation("conflict")
		} else {
			s.metrics.ObserveReservation("error")
		}
		return nil, err
	}
	s.metrics.ObserveReservation("success")

	appt := &Appointment{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		UserID:      userID,
		PatientName: patientName,
		Day:         day,
		Start:       start,
		SlotID:      reservation.SlotID,
		Status:      StatusPending,
	}
	if err := s.store.Create(ctx, appt); err != nil {
		// The reservation must not outlive a failed create.
		if relErr := s.slots.Release(ctx, reservation.SlotID); relErr != nil {
			s.logger.Error("failed to release slot after create failure", "error", relErr, "slot_id", reservation.SlotID)
		}
		return nil, err
	}

	s.logger.Info("appointment created",
		"appointment_id", appt.ID,
		"doctor_id", doctorID,
		"date", day,
		"start", start,
	)
	return appt, nil
}

// Get loads an appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.GetByID(ctx, id)
}

// MarkBooked records that payment initiation was accepted.
func (s *Service) MarkBooked(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, _, err := s.transition(ctx, id, StatusBooked, "")
	return appt, err
}

// Confirm records a verified payment and announces the confirmation.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, changed, err := s.transition(ctx, id, StatusConfirmed, "")
	if err != nil {
		return nil, err
	}
	if changed {
		s.emit(ctx, events.TypeAppointmentConfirmed, appt, "")
	}
	return appt, nil
}

// Cancel moves the appointment to its cancelled terminal state and releases
// the reserved slot. Cancelling an already-cancelled appointment is an
// idempotent no-op and does not release the slot a second time.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	appt, changed, err := s.transition(ctx, id, StatusCancelled, reason)
	if err != nil {
		return nil, err
	}
	if !changed {
		return appt, nil
	}
	if err := s.slots.Release(ctx, appt.SlotID); err != nil {
		s.logger.Error("slot release failed during cancel", "error", err, "appointment_id", id, "slot_id", appt.SlotID)
		return nil, err
	}
	s.emit(ctx, events.TypeAppointmentCancelled, appt, reason)
	return appt, nil
}

// Complete records that the service was rendered. Operator action only.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, _, err := s.transition(ctx, id, StatusCompleted, "")
	return appt, err
}

// transition applies one state-machine edge with a compare-and-swap guard so
// a concurrent actor cannot interleave. changed=false means the appointment
// was already in the target state (only tolerated for cancellation).
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, reason string) (*Appointment, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		appt, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if appt.Status == to {
			if to == StatusCancelled {
				return appt, false, nil
			}
			return nil, false, fmt.Errorf("%w: already %s", ErrInvalidTransition, to)
		}
		if !appt.Status.CanTransitionTo(to) {
			return nil, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
		}

		swapped, err := s.store.CompareAndSwapStatus(ctx, id, appt.Status, to, reason)
		if err != nil {
			return nil, false, err
		}
		if !swapped {
			// Lost a race with another transition; re-read and re-evaluate.
			continue
		}

		appt.Status = to
		if reason != "" {
			appt.CancelReason = reason
		}
		appt.UpdatedAt = time.Now().UTC()
		s.logger.Info("appointment transitioned", "appointment_id", id, "status", string(to))
		return appt, true, nil
	}
	return nil, false, fmt.Errorf("appointments: transition contention on %s", id)
}

func (s *Service) emit(ctx context.Context, eventType string, appt *Appointment, reason string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(ctx, events.AppointmentEvent{
		Type:          eventType,
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		UserID:        appt.UserID,
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	})
}

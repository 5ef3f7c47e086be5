package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Manager owns professionals' availability and is the single point of truth
// for slot exclusivity.
type Manager struct {
	store  Store
	logger *logging.Logger
}

// NewManager constructs a schedule manager.
func NewManager(store Store, logger *logging.Logger) *Manager {
	if store == nil {
		panic("schedule: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{store: store, logger: logger}
}

// SetAvailability replaces the slot list for a date after validating that
// every interval is well-formed and that no two overlap. A non-none recurrence
// marks the schedule so later lookups synthesize matching future dates.
func (m *Manager) SetAvailability(ctx context.Context, professionalID, day string, inputs []SlotInput, recurrence Recurrence) ([]Slot, error) {
	if strings.TrimSpace(professionalID) == "" {
		return nil, fmt.Errorf("%w: professional id required", ErrValidation)
	}
	if _, err := parseDay(day); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one slot required", ErrValidation)
	}
	if err := validateSlots(inputs); err != nil {
		return nil, err
	}
	if _, err := ParseRecurrence(string(recurrence)); err != nil {
		return nil, err
	}
	if recurrence == "" {
		recurrence = RecurrenceNone
	}

	slots := make([]Slot, 0, len(inputs))
	for _, in := range inputs {
		slots = append(slots, Slot{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			Day:            day,
			Start:          in.Start,
			End:            in.End,
		})
	}
	if err := m.store.ReplaceDay(ctx, professionalID, day, slots, recurrence); err != nil {
		return nil, err
	}

	m.logger.Info("availability set",
		"professional_id", professionalID,
		"date", day,
		"slots", len(slots),
		"recurrence", string(recurrence),
	)
	stored, _, err := m.store.DaySlots(ctx, professionalID, day)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// AvailableSlots returns the unbooked slots for a date. A date the
// professional never configured yields an empty list, not an error; when a
// recurrence rule is set, the matching template is materialized first.
func (m *Manager) AvailableSlots(ctx context.Context, professionalID, day string) ([]Slot, error) {
	slots, err := m.daySlots(ctx, professionalID, day)
	if err != nil {
		return nil, err
	}
	available := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		if !slot.IsBooked {
			available = append(available, slot)
		}
	}
	return available, nil
}

// Reserve atomically marks the slot at (professional, date, time) as booked
// and returns a handle for the eventual release. Exactly one of two
// concurrent reservations for the same slot succeeds.
func (m *Manager) Reserve(ctx context.Context, professionalID, day, start string) (*Reservation, error) {
	if strings.TrimSpace(professionalID) == "" {
		return nil, fmt.Errorf("%w: professional id required", ErrValidation)
	}
	if _, err := parseDay(day); err != nil {
		return nil, err
	}
	if _, err := clockMinutes(start); err != nil {
		return nil, err
	}

	// Materialize the recurrence projection before reserving so a recurring
	// day can be booked even if nobody listed it first.
	if _, err := m.daySlots(ctx, professionalID, day); err != nil {
		return nil, err
	}

	slot, err := m.store.ReserveSlot(ctx, professionalID, day, start)
	if err != nil {
		return nil, err
	}
	m.logger.Info("slot reserved",
		"professional_id", professionalID,
		"date", day,
		"start", start,
		"slot_id", slot.ID,
	)
	return &Reservation{
		SlotID:         slot.ID,
		ProfessionalID: professionalID,
		Day:            day,
		Start:          start,
	}, nil
}

// Release frees a reserved slot. Releasing an already-free or unknown slot is
// a no-op, so rollback paths may call it more than once.
func (m *Manager) Release(ctx context.Context, slotID uuid.UUID) error {
	if slotID == uuid.Nil {
		return nil
	}
	if err := m.store.ReleaseSlot(ctx, slotID); err != nil {
		return err
	}
	m.logger.Info("slot released", "slot_id", slotID)
	return nil
}

// SlotBooked reports whether the slot currently shows booked. Used by
// consistency checks and tests.
func (m *Manager) SlotBooked(ctx context.Context, professionalID, day, start string) (bool, error) {
	slots, _, err := m.store.DaySlots(ctx, professionalID, day)
	if err != nil {
		return false, err
	}
	for _, slot := range slots {
		if slot.Start == start {
			return slot.IsBooked, nil
		}
	}
	return false, ErrSlotNotFound
}

func (m *Manager) daySlots(ctx context.Context, professionalID, day string) ([]Slot, error) {
	if _, err := parseDay(day); err != nil {
		return nil, err
	}
	slots, found, err := m.store.DaySlots(ctx, professionalID, day)
	if err != nil {
		return nil, err
	}
	if found {
		return slots, nil
	}

	rec, err := m.store.RecurrenceFor(ctx, professionalID)
	if err != nil {
		return nil, err
	}
	if rec == RecurrenceNone {
		return nil, nil
	}

	template, ok, err := m.store.TemplateFor(ctx, professionalID, day, rec)
	if err != nil || !ok {
		return nil, err
	}

	// Fresh copies: booking a materialized instance must never touch the
	// template day.
	synthesized := make([]Slot, 0, len(template))
	for _, t := range template {
		synthesized = append(synthesized, Slot{
			ID:             uuid.New(),
			ProfessionalID: professionalID,
			Day:            day,
			Start:          t.Start,
			End:            t.End,
		})
	}
	if err := m.store.MaterializeDay(ctx, professionalID, day, synthesized); err != nil {
		return nil, err
	}
	slots, _, err = m.store.DaySlots(ctx, professionalID, day)
	return slots, err
}

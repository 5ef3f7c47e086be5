package appointments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/schedule"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

type fixture struct {
	scheduler *schedule.Manager
	notifier  *events.CapturingNotifier
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	scheduler := schedule.NewManager(schedule.NewInMemoryStore(), logging.Default())
	if _, err := scheduler.SetAvailability(context.Background(), "doc-1", "2024-06-01",
		[]schedule.SlotInput{{Start: "09:00", End: "09:30"}, {Start: "10:00", End: "10:30"}},
		schedule.RecurrenceNone); err != nil {
		t.Fatal(err)
	}
	notifier := &events.CapturingNotifier{}
	service := NewService(NewInMemoryStore(), scheduler, notifier, logging.Default())
	return &fixture{scheduler: scheduler, notifier: notifier, service: service}
}

func (f *fixture) create(t *testing.T) *Appointment {
	t.Helper()
	appt, err := f.service.Create(context.Background(), "doc-1", "user-1", "Ada Obi", "2024-06-01", "09:00")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return appt
}

func (f *fixture) slotBooked(t *testing.T, start string) bool {
	t.Helper()
	booked, err := f.scheduler.SlotBooked(context.Background(), "doc-1", "2024-06-01", start)
	if err != nil {
		t.Fatal(err)
	}
	return booked
}

func TestCreateReservesSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.create(t)

	if appt.Status != StatusPending {
		t.Fatalf("expected pending, got %s", appt.Status)
	}
	if !f.slotBooked(t, "09:00") {
		t.Fatal("slot should be booked after create")
	}

	// Second booking for the same slot surfaces the schedule conflict.
	_, err := f.service.Create(context.Background(), "doc-1", "user-2", "Bola Eze", "2024-06-01", "09:00")
	if !errors.Is(err, schedule.ErrSlotAlreadyBooked) {
		t.Fatalf("expected ErrSlotAlreadyBooked untranslated, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Create(ctx, "", "user-1", "Ada", "2024-06-01", "09:00"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty doctor, got %v", err)
	}
	if _, err := f.service.Create(ctx, "doc-1", "user-1", "  ", "2024-06-01", "09:00"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank patient name, got %v", err)
	}
	// Validation failures must not consume the slot.
	if f.slotBooked(t, "09:00") {
		t.Fatal("slot must stay free after rejected create")
	}
}

func TestHappyPathTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t)

	if _, err := f.service.MarkBooked(ctx, appt.ID); err != nil {
		t.Fatalf("MarkBooked: %v", err)
	}
	if _, err := f.service.Confirm(ctx, appt.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !f.slotBooked(t, "09:00") {
		t.Fatal("slot must stay booked after confirmation")
	}
	got, err := f.service.Complete(ctx, appt.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	emitted := f.notifier.Emitted()
	if len(emitted) != 1 || emitted[0].Type != events.TypeAppointmentConfirmed {
		t.Fatalf("expected one confirmed event, got %+v", emitted)
	}
}

func TestIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		run  func(id uuid.UUID) error
	}{
		{"confirm from pending", func(id uuid.UUID) error {
			_, err := f.service.Confirm(ctx, id)
			return err
		}},
		{"complete from pending", func(id uuid.UUID) error {
			_, err := f.service.Complete(ctx, id)
			return err
		}},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appt, err := f.service.Create(ctx, "doc-1", "user-1", "Ada Obi", "2024-06-01", []string{"09:00", "10:00"}[i])
			if err != nil {
				t.Fatal(err)
			}
			if err := tc.run(appt.ID); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			// Failed transition leaves state unchanged.
			reloaded, err := f.service.Get(ctx, appt.ID)
			if err != nil {
				t.Fatal(err)
			}
			if reloaded.Status != StatusPending {
				t.Fatalf("state mutated by illegal transition: %s", reloaded.Status)
			}
		})
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t)

	mustTransition(t, f, appt.ID, StatusBooked, StatusConfirmed, StatusCompleted)

	if _, err := f.service.Cancel(ctx, appt.ID, "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected completed to be terminal, got %v", err)
	}
	if _, err := f.service.MarkBooked(ctx, appt.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected completed to be terminal, got %v", err)
	}
}

func TestCancelReleasesSlotOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t)

	if _, err := f.service.Cancel(ctx, appt.ID, "changed my mind"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if f.slotBooked(t, "09:00") {
		t.Fatal("slot should be free after cancel")
	}

	// Rebook the slot, then cancel the first appointment again: the repeat
	// cancel is a no-op and must not free the other appointment's slot.
	appt2, err := f.service.Create(ctx, "doc-1", "user-2", "Bola Eze", "2024-06-01", "09:00")
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.service.Cancel(ctx, appt.ID, "again")
	if err != nil {
		t.Fatalf("repeat Cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if !f.slotBooked(t, "09:00") {
		t.Fatal("repeat cancel must not release the rebooked slot")
	}
	_ = appt2

	cancelled := 0
	for _, e := range f.notifier.Emitted() {
		if e.Type == events.TypeAppointmentCancelled {
			cancelled++
		}
	}
	if cancelled != 1 {
		t.Fatalf("expected exactly one cancelled event, got %d", cancelled)
	}
}

func TestCancelFromConfirmedReleasesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t)
	mustTransition(t, f, appt.ID, StatusBooked, StatusConfirmed)

	if _, err := f.service.Cancel(ctx, appt.ID, "clinic closed"); err != nil {
		t.Fatal(err)
	}
	if f.slotBooked(t, "09:00") {
		t.Fatal("slot should be free after cancelling a confirmed appointment")
	}
}

func mustTransition(t *testing.T, f *fixture, id uuid.UUID, states ...Status) {
	t.Helper()
	ctx := context.Background()
	for _, st := range states {
		var err error
		switch st {
		case StatusBooked:
			_, err = f.service.MarkBooked(ctx, id)
		case StatusConfirmed:
			_, err = f.service.Confirm(ctx, id)
		case StatusCompleted:
			_, err = f.service.Complete(ctx, id)
		case StatusCancelled:
			_, err = f.service.Cancel(ctx, id, "")
		}
		if err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
	}
}

func TestStatusTransitionTable(t *testing.T) {
	legal := []struct {
		from, to Status
	}{
		{StatusPending, StatusBooked},
		{StatusPending, StatusCancelled},
		{StatusBooked, StatusConfirmed},
		{StatusBooked, StatusCancelled},
		{StatusConfirmed, StatusCompleted},
		{StatusConfirmed, StatusCancelled},
	}
	for _, tc := range legal {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct {
		from, to Status
	}{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCompleted},
		{StatusBooked, StatusCompleted},
		{StatusCancelled, StatusPending},
		{StatusCancelled, StatusBooked},
		{StatusCompleted, StatusCancelled},
		{StatusCompleted, StatusConfirmed},
	}
	for _, tc := range illegal {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}

	if !StatusCancelled.Terminal() || !StatusCompleted.Terminal() {
		t.Error("cancelled and completed must be terminal")
	}
	if StatusBooked.Terminal() || StatusPending.Terminal() || StatusConfirmed.Terminal() {
		t.Error("non-terminal states reported terminal")
	}
}

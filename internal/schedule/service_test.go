package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

func newTestManager() *Manager {
	return NewManager(NewInMemoryStore(), logging.Default())
}

func TestSetAvailabilityRoundTrip(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	in := []SlotInput{
		{Start: "09:00", End: "09:30"},
		{Start: "10:00", End: "10:30"},
	}
	if _, err := m.SetAvailability(ctx, "doc-1", "2024-06-01", in, RecurrenceNone); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}

	slots, err := m.AvailableSlots(ctx, "doc-1", "2024-06-01")
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.IsBooked {
			t.Errorf("slot %s unexpectedly booked", s.Start)
		}
	}
	if slots[0].Start != "09:00" || slots[1].Start != "10:00" {
		t.Errorf("slots out of order: %v", slots)
	}
}

func TestSetAvailabilityRejectsOverlaps(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	cases := []struct {
		name string
		in   []SlotInput
	}{
		{"inverted interval", []SlotInput{{Start: "10:00", End: "09:00"}}},
		{"zero length", []SlotInput{{Start: "09:00", End: "09:00"}}},
		{"overlapping pair", []SlotInput{{Start: "09:00", End: "10:00"}, {Start: "09:30", End: "10:30"}}},
		{"contained interval", []SlotInput{{Start: "09:00", End: "12:00"}, {Start: "10:00", End: "11:00"}}},
		{"bad clock", []SlotInput{{Start: "9am", End: "10am"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.SetAvailability(ctx, "doc-1", "2024-06-01", tc.in, RecurrenceNone)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	// Touching intervals are fine: [09:00,09:30) and [09:30,10:00).
	touching := []SlotInput{{Start: "09:00", End: "09:30"}, {Start: "09:30", End: "10:00"}}
	if _, err := m.SetAvailability(ctx, "doc-1", "2024-06-01", touching, RecurrenceNone); err != nil {
		t.Fatalf("adjacent slots should be allowed: %v", err)
	}
}

func TestAvailableSlotsUnknownDateIsEmpty(t *testing.T) {
	m := newTestManager()

	slots, err := m.AvailableSlots(context.Background(), "doc-without-schedule", "2024-06-01")
	if err != nil {
		t.Fatalf("expected no error for unknown date, got %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected empty list, got %d slots", len(slots))
	}
}

func TestReserveAndRelease(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.SetAvailability(ctx, "doc-1", "2024-06-01",
		[]SlotInput{{Start: "09:00", End: "09:30"}}, RecurrenceNone); err != nil {
		t.Fatal(err)
	}

	res, err := m.Reserve(ctx, "doc-1", "2024-06-01", "09:00")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if _, err := m.Reserve(ctx, "doc-1", "2024-06-01", "09:00"); !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("expected ErrSlotAlreadyBooked, got %v", err)
	}
	if _, err := m.Reserve(ctx, "doc-1", "2024-06-01", "13:00"); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}

	// Release is idempotent.
	if err := m.Release(ctx, res.SlotID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := m.Release(ctx, res.SlotID); err != nil {
		t.Fatalf("second Release: %v", err)
	}

	booked, err := m.SlotBooked(ctx, "doc-1", "2024-06-01", "09:00")
	if err != nil {
		t.Fatal(err)
	}
	if booked {
		t.Fatal("slot should be free after release")
	}
}

func TestConcurrentReserveExactlyOneWins(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.SetAvailability(ctx, "doc-1", "2024-06-01",
		[]SlotInput{{Start: "09:00", End: "09:30"}}, RecurrenceNone); err != nil {
		t.Fatal(err)
	}

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Reserve(ctx, "doc-1", "2024-06-01", "09:00")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotAlreadyBooked):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if conflicts != attempts-1 {
		t.Fatalf("expected %d conflicts, got %d", attempts-1, conflicts)
	}
}

func TestWeeklyRecurrenceMaterializesWithoutMutatingTemplate(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	// 2024-06-03 is a Monday.
	template := []SlotInput{{Start: "09:00", End: "09:30"}, {Start: "09:30", End: "10:00"}}
	if _, err := m.SetAvailability(ctx, "doc-1", "2024-06-03", template, RecurrenceWeekly); err != nil {
		t.Fatal(err)
	}

	mondays := []string{"2024-06-10", "2024-06-17", "2024-06-24", "2024-07-01"}
	for _, day := range mondays {
		slots, err := m.AvailableSlots(ctx, "doc-1", day)
		if err != nil {
			t.Fatalf("AvailableSlots(%s): %v", day, err)
		}
		if len(slots) != 2 {
			t.Fatalf("expected 2 synthesized slots on %s, got %d", day, len(slots))
		}
	}

	// A Tuesday does not match the weekly template.
	tueSlots, err := m.AvailableSlots(ctx, "doc-1", "2024-06-11")
	if err != nil {
		t.Fatal(err)
	}
	if len(tueSlots) != 0 {
		t.Fatalf("expected no slots on a non-matching weekday, got %d", len(tueSlots))
	}

	// Booking one materialized instance leaves the template day untouched.
	if _, err := m.Reserve(ctx, "doc-1", "2024-06-10", "09:00"); err != nil {
		t.Fatalf("Reserve on materialized day: %v", err)
	}
	templateSlots, err := m.AvailableSlots(ctx, "doc-1", "2024-06-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(templateSlots) != 2 {
		t.Fatalf("template day mutated: expected 2 available slots, got %d", len(templateSlots))
	}
}

func TestDailyRecurrenceUsesLatestTemplate(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.SetAvailability(ctx, "doc-1", "2024-06-01",
		[]SlotInput{{Start: "08:00", End: "08:30"}}, RecurrenceDaily); err != nil {
		t.Fatal(err)
	}

	slots, err := m.AvailableSlots(ctx, "doc-1", "2024-06-05")
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 || slots[0].Start != "08:00" {
		t.Fatalf("expected daily template to project forward, got %v", slots)
	}
}

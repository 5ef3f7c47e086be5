package schedule

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore keeps schedules in process memory. Used in development mode
// and in tests; the mutex gives ReserveSlot its atomic check-and-set.
type InMemoryStore struct {
	mu         sync.Mutex
	recurrence map[string]Recurrence        // professionalID -> rule
	days       map[string]map[string][]Slot // professionalID -> day -> slots
}

// NewInMemoryStore creates an empty in-memory schedule store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		recurrence: make(map[string]Recurrence),
		days:       make(map[string]map[string][]Slot),
	}
}

func (s *InMemoryStore) ReplaceDay(_ context.Context, professionalID, day string, slots []Slot, recurrence Recurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recurrence[professionalID] = recurrence
	if s.days[professionalID] == nil {
		s.days[professionalID] = make(map[string][]Slot)
	}

	// Booked slots survive a replace so reservations stay valid.
	kept := make([]Slot, 0, len(slots))
	for _, existing := range s.days[professionalID][day] {
		if existing.IsBooked {
			kept = append(kept, existing)
		}
	}
	for _, slot := range slots {
		if hasStart(kept, slot.Start) {
			continue
		}
		kept = append(kept, slot)
	}
	sortSlots(kept)
	s.days[professionalID][day] = kept
	return nil
}

func (s *InMemoryStore) DaySlots(_ context.Context, professionalID, day string) ([]Slot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, ok := s.days[professionalID][day]
	if !ok || len(slots) == 0 {
		return nil, false, nil
	}
	out := make([]Slot, len(slots))
	copy(out, slots)
	return out, true, nil
}

func (s *InMemoryStore) RecurrenceFor(_ context.Context, professionalID string) (Recurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recurrence[professionalID]
	if !ok {
		return RecurrenceNone, nil
	}
	return rec, nil
}

func (s *InMemoryStore) TemplateFor(_ context.Context, professionalID, day string, rec Recurrence) ([]Slot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := parseDay(day)
	if err != nil {
		return nil, false, err
	}

	var bestDay string
	for candidate := range s.days[professionalID] {
		if candidate >= day || len(s.days[professionalID][candidate]) == 0 {
			continue
		}
		if rec == RecurrenceWeekly {
			cd, err := parseDay(candidate)
			if err != nil || cd.Weekday() != target.Weekday() {
				continue
			}
		}
		if candidate > bestDay {
			bestDay = candidate
		}
	}
	if bestDay == "" {
		return nil, false, nil
	}
	slots := s.days[professionalID][bestDay]
	out := make([]Slot, len(slots))
	copy(out, slots)
	return out, true, nil
}

func (s *InMemoryStore) MaterializeDay(_ context.Context, professionalID, day string, slots []Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.days[professionalID] == nil {
		s.days[professionalID] = make(map[string][]Slot)
	}
	if len(s.days[professionalID][day]) > 0 {
		// Lost the materialization race; the existing day wins.
		return nil
	}
	out := make([]Slot, len(slots))
	copy(out, slots)
	sortSlots(out)
	s.days[professionalID][day] = out
	return nil
}

func (s *InMemoryStore) ReserveSlot(_ context.Context, professionalID, day, start string) (*Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots := s.days[professionalID][day]
	for i := range slots {
		if slots[i].Start != start {
			continue
		}
		if slots[i].IsBooked {
			return nil, ErrSlotAlreadyBooked
		}
		slots[i].IsBooked = true
		reserved := slots[i]
		return &reserved, nil
	}
	return nil, ErrSlotNotFound
}

func (s *InMemoryStore) ReleaseSlot(_ context.Context, slotID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, days := range s.days {
		for day, slots := range days {
			for i := range slots {
				if slots[i].ID == slotID {
					slots[i].IsBooked = false
					days[day] = slots
					return nil
				}
			}
		}
	}
	return nil
}

func hasStart(slots []Slot, start string) bool {
	for _, s := range slots {
		if s.Start == start {
			return true
		}
	}
	return false
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
}

package appointments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps appointments in process memory for development and tests.
type InMemoryStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Appointment
	order []uuid.UUID
}

// NewInMemoryStore creates an empty in-memory appointment store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[uuid.UUID]*Appointment)}
}

func (s *InMemoryStore) Create(_ context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	stored := *appt
	s.byID[appt.ID] = &stored
	s.order = append(s.order, appt.ID)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *appt
	return &out, nil
}

func (s *InMemoryStore) CompareAndSwapStatus(_ context.Context, id uuid.UUID, from, to Status, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if appt.Status != from {
		return false, nil
	}
	appt.Status = to
	if reason != "" {
		appt.CancelReason = reason
	}
	appt.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *InMemoryStore) ListBookedBefore(_ context.Context, cutoff time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Appointment
	for _, id := range s.order {
		appt := s.byID[id]
		if appt.Status == StatusBooked && !appt.UpdatedAt.After(cutoff) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

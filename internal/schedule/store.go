package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists schedules and slots. Implementations must make ReserveSlot a
// true atomic check-and-set: a plain read-then-write is a race.
type Store interface {
	// ReplaceDay swaps out the slot list for a day and records the
	// professional's recurrence rule.
	ReplaceDay(ctx context.Context, professionalID, day string, slots []Slot, recurrence Recurrence) error
	// DaySlots returns all slots for a day, booked or not, with found=false
	// when the day has never been materialized.
	DaySlots(ctx context.Context, professionalID, day string) ([]Slot, bool, error)
	// RecurrenceFor returns the professional's recurrence rule, RecurrenceNone
	// when the professional has no schedule at all.
	RecurrenceFor(ctx context.Context, professionalID string) (Recurrence, error)
	// TemplateFor returns the slot list of the most recent materialized day
	// strictly before the given day that matches the recurrence rule.
	TemplateFor(ctx context.Context, professionalID, day string, rec Recurrence) ([]Slot, bool, error)
	// MaterializeDay inserts a synthesized day, ignoring it if the day was
	// materialized concurrently.
	MaterializeDay(ctx context.Context, professionalID, day string, slots []Slot) error
	// ReserveSlot atomically flips is_booked from false to true.
	ReserveSlot(ctx context.Context, professionalID, day, start string) (*Slot, error)
	// ReleaseSlot resets is_booked. A no-op for unknown or already-free slots.
	ReleaseSlot(ctx context.Context, slotID uuid.UUID) error
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	db DB
}

// NewPGStore creates a Postgres-backed schedule store.
func NewPGStore(db DB) *PGStore {
	if db == nil {
		panic("schedule: db required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) ReplaceDay(ctx context.Context, professionalID, day string, slots []Slot, recurrence Recurrence) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO schedules (professional_id, recurrence, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (professional_id) DO UPDATE SET recurrence = $2, updated_at = now()`,
		professionalID, string(recurrence),
	)
	if err != nil {
		return fmt.Errorf("schedule: upsert schedule: %w", err)
	}

	// Replacing a day drops only its unbooked slots so existing reservations
	// keep pointing at live rows.
	_, err = s.db.Exec(ctx, `
		DELETE FROM slots
		WHERE professional_id = $1 AND day = $2 AND NOT is_booked`,
		professionalID, day,
	)
	if err != nil {
		return fmt.Errorf("schedule: clear day: %w", err)
	}

	for _, slot := range slots {
		_, err = s.db.Exec(ctx, `
			INSERT INTO slots (id, professional_id, day, start_time, end_time, is_booked)
			VALUES ($1, $2, $3, $4, $5, FALSE)
			ON CONFLICT (professional_id, day, start_time) DO NOTHING`,
			slot.ID, professionalID, day, slot.Start, slot.End,
		)
		if err != nil {
			return fmt.Errorf("schedule: insert slot: %w", err)
		}
	}
	return nil
}

func (s *PGStore) DaySlots(ctx context.Context, professionalID, day string) ([]Slot, bool, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, professional_id, day, start_time, end_time, is_booked
		FROM slots
		WHERE professional_id = $1 AND day = $2
		ORDER BY start_time ASC`,
		professionalID, day,
	)
	if err != nil {
		return nil, false, fmt.Errorf("schedule: list day: %w", err)
	}
	defer rows.Close()
	slots, err := scanSlots(rows)
	if err != nil {
		return nil, false, err
	}
	return slots, len(slots) > 0, nil
}

func (s *PGStore) RecurrenceFor(ctx context.Context, professionalID string) (Recurrence, error) {
	var rec string
	err := s.db.QueryRow(ctx,
		`SELECT recurrence FROM schedules WHERE professional_id = $1`,
		professionalID,
	).Scan(&rec)
	if errors.Is(err, pgx.ErrNoRows) {
		return RecurrenceNone, nil
	}
	if err != nil {
		return RecurrenceNone, fmt.Errorf("schedule: load recurrence: %w", err)
	}
	return Recurrence(rec), nil
}

func (s *PGStore) TemplateFor(ctx context.Context, professionalID, day string, rec Recurrence) ([]Slot, bool, error) {
	query := `
		SELECT day FROM slots
		WHERE professional_id = $1 AND day < $2
		GROUP BY day ORDER BY day DESC LIMIT 1`
	if rec == RecurrenceWeekly {
		query = `
		SELECT day FROM slots
		WHERE professional_id = $1 AND day < $2
		  AND EXTRACT(DOW FROM day::date) = EXTRACT(DOW FROM $2::date)
		GROUP BY day ORDER BY day DESC LIMIT 1`
	}

	var templateDay string
	err := s.db.QueryRow(ctx, query, professionalID, day).Scan(&templateDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("schedule: find template day: %w", err)
	}

	slots, found, err := s.DaySlots(ctx, professionalID, templateDay)
	return slots, found, err
}

func (s *PGStore) MaterializeDay(ctx context.Context, professionalID, day string, slots []Slot) error {
	for _, slot := range slots {
		_, err := s.db.Exec(ctx, `
			INSERT INTO slots (id, professional_id, day, start_time, end_time, is_booked)
			VALUES ($1, $2, $3, $4, $5, FALSE)
			ON CONFLICT (professional_id, day, start_time) DO NOTHING`,
			slot.ID, professionalID, day, slot.Start, slot.End,
		)
		if err != nil {
			return fmt.Errorf("schedule: materialize day: %w", err)
		}
	}
	return nil
}

func (s *PGStore) ReserveSlot(ctx context.Context, professionalID, day, start string) (*Slot, error) {
	// Single-statement compare-and-swap: the WHERE clause only matches a free
	// slot, so two concurrent reservations cannot both succeed.
	var slot Slot
	err := s.db.QueryRow(ctx, `
		UPDATE slots SET is_booked = TRUE
		WHERE professional_id = $1 AND day = $2 AND start_time = $3 AND NOT is_booked
		RETURNING id, professional_id, day, start_time, end_time, is_booked`,
		professionalID, day, start,
	).Scan(&slot.ID, &slot.ProfessionalID, &slot.Day, &slot.Start, &slot.End, &slot.IsBooked)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish missing from taken.
		var exists int
		lookupErr := s.db.QueryRow(ctx, `
			SELECT 1 FROM slots
			WHERE professional_id = $1 AND day = $2 AND start_time = $3`,
			professionalID, day, start,
		).Scan(&exists)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		if lookupErr != nil {
			return nil, fmt.Errorf("schedule: slot lookup: %w", lookupErr)
		}
		return nil, ErrSlotAlreadyBooked
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: reserve slot: %w", err)
	}
	return &slot, nil
}

func (s *PGStore) ReleaseSlot(ctx context.Context, slotID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE slots SET is_booked = FALSE WHERE id = $1`,
		slotID,
	)
	if err != nil {
		return fmt.Errorf("schedule: release slot: %w", err)
	}
	return nil
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	var slots []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.ID, &slot.ProfessionalID, &slot.Day, &slot.Start, &slot.End, &slot.IsBooked); err != nil {
			return nil, fmt.Errorf("schedule: scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate slots: %w", err)
	}
	return slots, nil
}

package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists appointments. CompareAndSwapStatus must be atomic on the
// stored status so concurrent transitions cannot interleave.
type Store interface {
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// CompareAndSwapStatus moves id from `from` to `to` iff the stored status
	// still equals `from`. swapped=false with a nil error means the guard
	// failed (someone got there first).
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to Status, reason string) (swapped bool, err error)
	// ListBookedBefore returns appointments sitting in booked whose last
	// update is older than the cutoff. Used by the payment-expiry worker.
	ListBookedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres-backed appointment store.
type PGStore struct {
	db DB
}

// NewPGStore creates a Postgres-backed appointment store.
func NewPGStore(db DB) *PGStore {
	if db == nil {
		panic("appointments: db required")
	}
	return &PGStore{db: db}
}

const apptColumns = `id, doctor_id, user_id, patient_name, day, start_time, slot_id, status, cancel_reason, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, appt *Appointment) error {
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, doctor_id, user_id, patient_name, day, start_time, slot_id, status, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		appt.ID, appt.DoctorID, appt.UserID, appt.PatientName, appt.Day, appt.Start,
		appt.SlotID, string(appt.Status), appt.CancelReason, appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+apptColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: load: %w", err)
	}
	return appt, nil
}

func (s *PGStore) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to Status, reason string) (bool, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = $3, cancel_reason = CASE WHEN $4 <> '' THEN $4 ELSE cancel_reason END, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), reason,
	)
	if err != nil {
		return false, fmt.Errorf("appointments: transition: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *PGStore) ListBookedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+` FROM appointments
		WHERE status = 'booked' AND updated_at <= $1
		ORDER BY updated_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("appointments: list stale booked: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	var status string
	err := row.Scan(
		&appt.ID, &appt.DoctorID, &appt.UserID, &appt.PatientName, &appt.Day, &appt.Start,
		&appt.SlotID, &status, &appt.CancelReason, &appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	appt.Status = Status(status)
	return &appt, nil
}

package schedule

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/clinicbook/booking-platform/migrations"
)

// slotConflictTarget is the arbiter the slot upserts rely on. The migrated
// schema must carry a unique index over exactly these columns or Postgres
// rejects the statements outright.
const slotConflictTarget = "(professional_id, day, start_time)"

func TestSlotUpsertConflictTargetHasUniqueIndex(t *testing.T) {
	raw, err := migrations.FS.ReadFile("000001_create_schedules.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	schema := strings.ToLower(string(raw))

	uniqueIndex := regexp.MustCompile(
		`create unique index[^;]+on slots\s*\(\s*professional_id\s*,\s*day\s*,\s*start_time\s*\)`)
	if !uniqueIndex.MatchString(schema) {
		t.Fatalf("migration defines no unique index over %s; the slot ON CONFLICT upserts need it as their arbiter", slotConflictTarget)
	}
}

func TestPGReplaceDayUpsertsAgainstConflictTarget(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	store := NewPGStore(mock)

	slot := Slot{ID: uuid.New(), Start: "09:00", End: "09:30"}

	mock.ExpectExec("INSERT INTO schedules").
		WithArgs("doc-1", "none").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM slots").
		WithArgs("doc-1", "2024-06-01").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO slots(?s).+ON CONFLICT \(professional_id, day, start_time\) DO NOTHING`).
		WithArgs(slot.ID, "doc-1", "2024-06-01", "09:00", "09:30").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.ReplaceDay(context.Background(), "doc-1", "2024-06-01", []Slot{slot}, RecurrenceNone); err != nil {
		t.Fatalf("ReplaceDay: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGMaterializeDayUpsertsAgainstConflictTarget(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	store := NewPGStore(mock)

	slot := Slot{ID: uuid.New(), Start: "09:00", End: "09:30"}

	// A concurrently materialized day answers with zero rows affected.
	mock.ExpectExec(`INSERT INTO slots(?s).+ON CONFLICT \(professional_id, day, start_time\) DO NOTHING`).
		WithArgs(slot.ID, "doc-1", "2024-06-08", "09:00", "09:30").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	if err := store.MaterializeDay(context.Background(), "doc-1", "2024-06-08", []Slot{slot}); err != nil {
		t.Fatalf("MaterializeDay: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGReserveSlotDistinguishesMissingFromTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()
	store := NewPGStore(mock)
	ctx := context.Background()

	// CAS misses and no row exists at all.
	mock.ExpectQuery("UPDATE slots SET is_booked = TRUE").
		WithArgs("doc-1", "2024-06-01", "09:00").
		WillReturnRows(pgxmock.NewRows([]string{"id", "professional_id", "day", "start_time", "end_time", "is_booked"}))
	mock.ExpectQuery("SELECT 1 FROM slots").
		WithArgs("doc-1", "2024-06-01", "09:00").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	if _, err := store.ReserveSlot(ctx, "doc-1", "2024-06-01", "09:00"); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}

	// CAS misses but the row is there, so it was already booked.
	mock.ExpectQuery("UPDATE slots SET is_booked = TRUE").
		WithArgs("doc-1", "2024-06-01", "09:00").
		WillReturnRows(pgxmock.NewRows([]string{"id", "professional_id", "day", "start_time", "end_time", "is_booked"}))
	mock.ExpectQuery("SELECT 1 FROM slots").
		WithArgs("doc-1", "2024-06-01", "09:00").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	if _, err := store.ReserveSlot(ctx, "doc-1", "2024-06-01", "09:00"); !errors.Is(err, ErrSlotAlreadyBooked) {
		t.Fatalf("expected ErrSlotAlreadyBooked, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

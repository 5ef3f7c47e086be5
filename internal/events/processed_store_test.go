package events

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStoreAlreadyProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("paystack", "evt-1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	store := NewProcessedStore(mock)
	seen, err := store.AlreadyProcessed(context.Background(), "paystack", "evt-1")
	if err != nil {
		t.Fatalf("AlreadyProcessed: %v", err)
	}
	if !seen {
		t.Fatal("expected event to be reported as processed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProcessedStoreMarkProcessedIdempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("paystack", "evt-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("paystack", "evt-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewProcessedStore(mock)

	first, err := store.MarkProcessed(context.Background(), "paystack", "evt-1")
	if err != nil || !first {
		t.Fatalf("first mark = %v, %v; want true, nil", first, err)
	}
	second, err := store.MarkProcessed(context.Background(), "paystack", "evt-1")
	if err != nil || second {
		t.Fatalf("second mark = %v, %v; want false, nil", second, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInMemoryProcessedStore(t *testing.T) {
	store := NewInMemoryProcessedStore()
	ctx := context.Background()

	seen, err := store.AlreadyProcessed(ctx, "paystack", "evt-1")
	if err != nil || seen {
		t.Fatalf("expected unseen event, got %v, %v", seen, err)
	}
	if ok, _ := store.MarkProcessed(ctx, "paystack", "evt-1"); !ok {
		t.Fatal("expected first mark to succeed")
	}
	if ok, _ := store.MarkProcessed(ctx, "paystack", "evt-1"); ok {
		t.Fatal("expected second mark to report duplicate")
	}
	if seen, _ := store.AlreadyProcessed(ctx, "paystack", "evt-1"); !seen {
		t.Fatal("expected event to be seen after mark")
	}
}

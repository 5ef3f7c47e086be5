package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for the payment audit trail.
var (
	ErrDuplicateReference = errors.New("payment reference already recorded")
	ErrRecordNotFound     = errors.New("payment record not found")
)

// PaymentRecord is the durable audit entry written once per verified
// transaction. The reference is the idempotency key; a duplicate write is
// rejected, never overwritten.
type PaymentRecord struct {
	Reference     string            `json:"reference"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	AmountMinor   int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Email         string            `json:"email"`
	FullName      string            `json:"full_name"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	FeeMinor      int64             `json:"transaction_fee"`
	CreatedAt     time.Time         `json:"created_at"`
}

// RecordStore persists payment records.
type RecordStore interface {
	Insert(ctx context.Context, rec *PaymentRecord) error
	GetByReference(ctx context.Context, reference string) (*PaymentRecord, error)
}

// recordDB abstracts the pgx query interface for testing.
type recordDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRecordStore is the Postgres-backed payment record store.
type PGRecordStore struct {
	db recordDB
}

// NewPGRecordStore creates a Postgres-backed payment record store.
func NewPGRecordStore(db recordDB) *PGRecordStore {
	if db == nil {
		panic("reconcile: db required")
	}
	return &PGRecordStore{db: db}
}

func (s *PGRecordStore) Insert(ctx context.Context, rec *PaymentRecord) error {
	rec.CreatedAt = time.Now().UTC()
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("reconcile: encode metadata: %w", err)
	}
	ct, err := s.db.Exec(ctx, `
		INSERT INTO payment_records (reference, appointment_id, amount, currency, email, full_name, status, metadata, transaction_fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (reference) DO NOTHING`,
		rec.Reference, rec.AppointmentID, rec.AmountMinor, rec.Currency, rec.Email,
		rec.FullName, rec.Status, meta, rec.FeeMinor, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("reconcile: insert record: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicateReference
	}
	return nil
}

func (s *PGRecordStore) GetByReference(ctx context.Context, reference string) (*PaymentRecord, error) {
	var rec PaymentRecord
	var meta []byte
	err := s.db.QueryRow(ctx, `
		SELECT reference, appointment_id, amount, currency, email, full_name, status, metadata, transaction_fee, created_at
		FROM payment_records WHERE reference = $1`,
		reference,
	).Scan(
		&rec.Reference, &rec.AppointmentID, &rec.AmountMinor, &rec.Currency, &rec.Email,
		&rec.FullName, &rec.Status, &meta, &rec.FeeMinor, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile: load record: %w", err)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &rec.Metadata)
	}
	return &rec, nil
}

// InMemoryRecordStore keeps payment records in process memory.
type InMemoryRecordStore struct {
	mu    sync.Mutex
	byRef map[string]PaymentRecord
}

// NewInMemoryRecordStore creates an empty in-memory record store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{byRef: make(map[string]PaymentRecord)}
}

func (s *InMemoryRecordStore) Insert(_ context.Context, rec *PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRef[rec.Reference]; exists {
		return ErrDuplicateReference
	}
	rec.CreatedAt = time.Now().UTC()
	s.byRef[rec.Reference] = *rec
	return nil
}

func (s *InMemoryRecordStore) GetByReference(_ context.Context, reference string) (*PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byRef[reference]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

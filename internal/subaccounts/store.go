package subaccounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store persists subaccount registrations.
type Store interface {
	Create(ctx context.Context, sub *Subaccount) error
	GetByProfessional(ctx context.Context, professionalID string) (*Subaccount, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore is the Postgres-backed subaccount store.
type PGStore struct {
	db DB
}

// NewPGStore creates a Postgres-backed subaccount store.
func NewPGStore(db DB) *PGStore {
	if db == nil {
		panic("subaccounts: db required")
	}
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, sub *Subaccount) error {
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	ct, err := s.db.Exec(ctx, `
		INSERT INTO subaccounts (professional_id, business_name, account_number, settlement_bank, currency, subaccount_code, percentage_charge, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (professional_id) DO NOTHING`,
		sub.ProfessionalID, sub.BusinessName, sub.AccountNumber, sub.SettlementBank,
		sub.Currency, sub.SubaccountCode, sub.PercentageCharge, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("subaccounts: create: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *PGStore) GetByProfessional(ctx context.Context, professionalID string) (*Subaccount, error) {
	var sub Subaccount
	err := s.db.QueryRow(ctx, `
		SELECT professional_id, business_name, account_number, settlement_bank, currency, subaccount_code, percentage_charge, created_at, updated_at
		FROM subaccounts WHERE professional_id = $1`,
		professionalID,
	).Scan(
		&sub.ProfessionalID, &sub.BusinessName, &sub.AccountNumber, &sub.SettlementBank,
		&sub.Currency, &sub.SubaccountCode, &sub.PercentageCharge, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("subaccounts: load: %w", err)
	}
	return &sub, nil
}

// InMemoryStore keeps subaccounts in process memory for development and tests.
type InMemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Subaccount
}

// NewInMemoryStore creates an empty in-memory subaccount store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]Subaccount)}
}

func (s *InMemoryStore) Create(_ context.Context, sub *Subaccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[sub.ProfessionalID]; exists {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.byID[sub.ProfessionalID] = *sub
	return nil
}

func (s *InMemoryStore) GetByProfessional(_ context.Context, professionalID string) (*Subaccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byID[professionalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

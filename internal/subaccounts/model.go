package subaccounts

import (
	"errors"
	"time"
)

// Sentinel errors for the registry.
var (
	ErrNotFound  = errors.New("subaccount not found")
	ErrDuplicate = errors.New("subaccount already registered")
)

// Subaccount maps a professional to the gateway sub-account their share of a
// split payment settles into. One per professional, read-only after creation
// except for administrative correction.
type Subaccount struct {
	ProfessionalID   string    `json:"professional_id"`
	BusinessName     string    `json:"business_name"`
	AccountNumber    string    `json:"account_number"`
	SettlementBank   string    `json:"settlement_bank"`
	Currency         string    `json:"currency"`
	SubaccountCode   string    `json:"subaccount_code"`
	PercentageCharge float64   `json:"percentage_charge"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

package subaccounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinicbook/booking-platform/internal/gateway"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// provisioner is the slice of the gateway client the registry needs.
type provisioner interface {
	CreateSubaccount(ctx context.Context, params gateway.SubaccountParams) (string, error)
}

// Registry provisions and resolves professionals' payout sub-accounts.
type Registry struct {
	store   Store
	gateway provisioner
	logger  *logging.Logger

	// Platform share applied when the caller does not specify one.
	defaultPercentage float64
	currency          string
}

// RegisterParams describes a professional's settlement details.
type RegisterParams struct {
	ProfessionalID   string  `json:"professional_id"`
	BusinessName     string  `json:"business_name"`
	AccountNumber    string  `json:"account_number"`
	SettlementBank   string  `json:"settlement_bank"`
	PercentageCharge float64 `json:"percentage_charge,omitempty"`
}

// NewRegistry constructs a subaccount registry.
func NewRegistry(store Store, gw provisioner, defaultPercentage float64, currency string, logger *logging.Logger) *Registry {
	if store == nil {
		panic("subaccounts: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		store:             store,
		gateway:           gw,
		logger:            logger,
		defaultPercentage: defaultPercentage,
		currency:          currency,
	}
}

// Register provisions a sub-account at the gateway and records the returned
// code. A professional can only be registered once.
func (r *Registry) Register(ctx context.Context, params RegisterParams) (*Subaccount, error) {
	if strings.TrimSpace(params.ProfessionalID) == "" {
		return nil, fmt.Errorf("subaccounts: professional id required")
	}
	if _, err := r.store.GetByProfessional(ctx, params.ProfessionalID); err == nil {
		return nil, ErrDuplicate
	}

	pct := params.PercentageCharge
	if pct <= 0 {
		pct = r.defaultPercentage
	}

	code, err := r.gateway.CreateSubaccount(ctx, gateway.SubaccountParams{
		BusinessName:     params.BusinessName,
		SettlementBank:   params.SettlementBank,
		AccountNumber:    params.AccountNumber,
		PercentageCharge: pct,
		Currency:         r.currency,
	})
	if err != nil {
		return nil, fmt.Errorf("subaccounts: gateway provisioning: %w", err)
	}

	sub := &Subaccount{
		ProfessionalID:   params.ProfessionalID,
		BusinessName:     params.BusinessName,
		AccountNumber:    params.AccountNumber,
		SettlementBank:   params.SettlementBank,
		Currency:         r.currency,
		SubaccountCode:   code,
		PercentageCharge: pct,
	}
	if err := r.store.Create(ctx, sub); err != nil {
		return nil, err
	}
	r.logger.Info("subaccount registered",
		"professional_id", sub.ProfessionalID,
		"subaccount_code", sub.SubaccountCode,
		"percentage_charge", sub.PercentageCharge,
	)
	return sub, nil
}

// Lookup returns the registration for a professional.
func (r *Registry) Lookup(ctx context.Context, professionalID string) (*Subaccount, error) {
	return r.store.GetByProfessional(ctx, professionalID)
}

// CodeFor resolves the routing code payments to this professional settle into.
func (r *Registry) CodeFor(ctx context.Context, professionalID string) (string, error) {
	sub, err := r.store.GetByProfessional(ctx, professionalID)
	if err != nil {
		return "", err
	}
	return sub.SubaccountCode, nil
}

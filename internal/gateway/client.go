package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

var tracer = otel.Tracer("clinicbook.internal.gateway")

// Sentinel errors for the gateway contract. Unavailable is the only one a
// caller may retry; retrying a rejected initiate could double-charge.
var (
	ErrUnavailable         = errors.New("payment gateway unavailable")
	ErrRejected            = errors.New("payment gateway rejected request")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidReference    = errors.New("invalid transaction reference")
)

// Client speaks the Paystack-compatible REST protocol. It is stateless beyond
// configuration; the secret key is injected and never logged.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// InitiateParams describes a transaction to initialize. AmountMinor is in the
// currency's smallest unit; callers converting major units multiply by 100.
type InitiateParams struct {
	AmountMinor    int64
	Email          string
	Currency       string
	Reference      string
	SubaccountCode string
	CallbackURL    string
	Metadata       map[string]string
}

// InitiateResult is the hosted-checkout session the client completes out of band.
type InitiateResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the normalized outcome of a verify-transaction call.
type VerifyResult struct {
	Status      string
	Success     bool
	AmountMinor int64
	Currency    string
	Email       string
	FeesMinor   int64
	PaidAt      time.Time
	Metadata    map[string]string
}

// SubaccountParams provisions a split-payment sub-account for a professional.
type SubaccountParams struct {
	BusinessName     string
	SettlementBank   string
	AccountNumber    string
	PercentageCharge float64
	Currency         string
}

// NewClient creates a gateway client. An empty baseURL targets the live API.
func NewClient(secretKey, baseURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &Client{
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// InitiateTransaction asks the gateway for a hosted authorization URL. The
// metadata map rides through the gateway unchanged and comes back on verify,
// which is how a transaction is tied to its appointment.
func (c *Client) InitiateTransaction(ctx context.Context, params InitiateParams) (*InitiateResult, error) {
	if params.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be a positive integer in minor units", ErrRejected)
	}
	if strings.TrimSpace(params.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrRejected)
	}

	ctx, span := tracer.Start(ctx, "gateway.initiate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("gateway.amount_minor", params.AmountMinor),
		attribute.String("gateway.currency", params.Currency),
	)

	body := map[string]any{
		"amount": params.AmountMinor,
		"email":  params.Email,
	}
	if params.Currency != "" {
		body["currency"] = params.Currency
	}
	if params.Reference != "" {
		body["reference"] = params.Reference
	}
	if params.SubaccountCode != "" {
		body["subaccount"] = params.SubaccountCode
	}
	if params.CallbackURL != "" {
		body["callback_url"] = params.CallbackURL
	}
	if len(params.Metadata) > 0 {
		body["metadata"] = params.Metadata
	}

	var parsed struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/transaction/initialize", body, &parsed); err != nil {
		return nil, err
	}
	if !parsed.Status || parsed.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, parsed.Message)
	}
	return &InitiateResult{
		AuthorizationURL: parsed.Data.AuthorizationURL,
		AccessCode:       parsed.Data.AccessCode,
		Reference:        parsed.Data.Reference,
	}, nil
}

// VerifyTransaction queries the gateway for the outcome of a reference.
// Transport failures and timeouts map to ErrUnavailable so callers can retry
// with backoff; an unknown reference is terminal.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, ErrInvalidReference
	}

	ctx, span := tracer.Start(ctx, "gateway.verify")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.reference", reference))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, redactSecret(err.Error(), c.secretKey))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: gateway status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: reference %s", ErrTransactionNotFound, reference)
	case resp.StatusCode >= http.StatusMultipleChoices:
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, raw)
	}

	var parsed struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status   string          `json:"status"`
			Amount   int64           `json:"amount"`
			Currency string          `json:"currency"`
			Fees     int64           `json:"fees"`
			PaidAt   string          `json:"paid_at"`
			Metadata json.RawMessage `json:"metadata"`
			Customer struct {
				Email string `json:"email"`
			} `json:"customer"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gateway: decode verify response: %w", err)
	}
	if !parsed.Status {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, parsed.Message)
	}

	result := &VerifyResult{
		Status:      parsed.Data.Status,
		Success:     parsed.Data.Status == "success",
		AmountMinor: parsed.Data.Amount,
		Currency:    parsed.Data.Currency,
		Email:       parsed.Data.Customer.Email,
		FeesMinor:   parsed.Data.Fees,
		Metadata:    decodeMetadata(parsed.Data.Metadata),
	}
	if parsed.Data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, parsed.Data.PaidAt); err == nil {
			result.PaidAt = t
		}
	}
	return result, nil
}

// CreateSubaccount provisions a split-payment sub-account and returns its code.
func (c *Client) CreateSubaccount(ctx context.Context, params SubaccountParams) (string, error) {
	if strings.TrimSpace(params.BusinessName) == "" ||
		strings.TrimSpace(params.AccountNumber) == "" ||
		strings.TrimSpace(params.SettlementBank) == "" {
		return "", fmt.Errorf("%w: business name, settlement bank and account number are required", ErrRejected)
	}

	ctx, span := tracer.Start(ctx, "gateway.create_subaccount")
	defer span.End()

	body := map[string]any{
		"business_name":     params.BusinessName,
		"settlement_bank":   params.SettlementBank,
		"account_number":    params.AccountNumber,
		"percentage_charge": params.PercentageCharge,
	}
	if params.Currency != "" {
		body["currency"] = params.Currency
	}

	var parsed struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			SubaccountCode string `json:"subaccount_code"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/subaccount", body, &parsed); err != nil {
		return "", err
	}
	if !parsed.Status || parsed.Data.SubaccountCode == "" {
		return "", fmt.Errorf("%w: %s", ErrRejected, parsed.Message)
	}
	return parsed.Data.SubaccountCode, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, redactSecret(err.Error(), c.secretKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: gateway status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}

// decodeMetadata tolerates the gateway echoing metadata as an object or as a
// JSON-encoded string.
func decodeMetadata(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		var asString string
		if err := json.Unmarshal(raw, &asString); err != nil || asString == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(asString), &asMap); err != nil {
			return nil
		}
	}
	out := make(map[string]string, len(asMap))
	for k, v := range asMap {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// redactSecret keeps credentials out of error chains and logs.
func redactSecret(msg, secret string) string {
	if secret == "" {
		return msg
	}
	return strings.ReplaceAll(msg, secret, "[redacted]")
}

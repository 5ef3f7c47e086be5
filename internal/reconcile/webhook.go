package reconcile

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/clinicbook/booking-platform/internal/gateway"
	"github.com/clinicbook/booking-platform/internal/observability/metrics"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

const (
	webhookProvider        = "paystack"
	webhookSignatureHeader = "X-Paystack-Signature"
	maxWebhookBody         = 1 << 20
)

// ProcessedStore tracks webhook deliveries already handled.
type ProcessedStore interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// WebhookHandler receives gateway event notifications, verifies their
// signature and feeds successful charges into the reconciliation path.
type WebhookHandler struct {
	secret    []byte
	service   *Service
	processed ProcessedStore
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

// NewWebhookHandler constructs the gateway webhook endpoint. The secret is
// the key the gateway signs payloads with; requests that fail verification
// are rejected before any parsing.
func NewWebhookHandler(secret string, service *Service, processed ProcessedStore, m *metrics.BookingMetrics, logger *logging.Logger) *WebhookHandler {
	if service == nil {
		panic("reconcile: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    []byte(secret),
		service:   service,
		processed: processed,
		metrics:   m,
		logger:    logger,
	}
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
		Status    string      `json:"status"`
	} `json:"data"`
}

// Handle processes one webhook delivery. The gateway retries on any
// non-2xx, so only retryable failures return 500; everything terminal is
// acknowledged to stop redelivery.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.metrics.ObserveWebhook("read_error")
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(body, r.Header.Get(webhookSignatureHeader)) {
		h.metrics.ObserveWebhook("bad_signature")
		h.logger.Warn("webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.metrics.ObserveWebhook("malformed")
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if event.Event != "charge.success" && event.Event != "charge.failed" {
		h.metrics.ObserveWebhook("ignored")
		w.WriteHeader(http.StatusOK)
		return
	}
	if event.Data.Reference == "" {
		h.metrics.ObserveWebhook("malformed")
		http.Error(w, "missing reference", http.StatusBadRequest)
		return
	}

	eventID := event.Event + ":" + event.Data.Reference
	if event.Data.ID.String() != "" {
		eventID = event.Data.ID.String()
	}
	if h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(ctx, webhookProvider, eventID)
		if err != nil {
			h.logger.Error("processed-event lookup failed", "error", err, "event_id", eventID)
			http.Error(w, "retry later", http.StatusInternalServerError)
			return
		}
		if seen {
			h.metrics.ObserveWebhook("duplicate")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	_, err = h.service.CompletePayment(ctx, event.Data.Reference)
	switch {
	case err == nil:
		// settled below
	case errors.Is(err, ErrVerifyInFlight), errors.Is(err, gateway.ErrUnavailable):
		// Another delivery or the callback is verifying, or the gateway is
		// down. Let the gateway redeliver.
		h.metrics.ObserveWebhook("retry")
		http.Error(w, "retry later", http.StatusInternalServerError)
		return
	case errors.Is(err, ErrPaymentFailed):
		// Terminal failure was reconciled (appointment cancelled). Ack so the
		// gateway stops retrying.
	case errors.Is(err, gateway.ErrTransactionNotFound):
		h.metrics.ObserveWebhook("unknown_reference")
		h.logger.Warn("webhook for unknown reference", "reference", event.Data.Reference)
		w.WriteHeader(http.StatusOK)
		return
	default:
		h.metrics.ObserveWebhook("unprocessable")
		h.logger.Error("webhook reconciliation failed", "error", err, "reference", event.Data.Reference)
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(ctx, webhookProvider, eventID); err != nil {
			h.logger.Error("failed to mark event processed", "error", err, "event_id", eventID)
		}
	}
	h.metrics.ObserveWebhook("ok")
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if len(h.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

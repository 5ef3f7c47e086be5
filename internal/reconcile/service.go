package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/internal/gateway"
	"github.com/clinicbook/booking-platform/internal/observability/metrics"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

var tracer = otel.Tracer("clinicbook.internal.reconcile")

// ErrPaymentFailed means the gateway reported a terminal non-success outcome
// for the reference. The appointment has been cancelled and its slot freed.
var ErrPaymentFailed = errors.New("payment was not successful")

// metadataAppointmentKey ties an initiated transaction back to its
// appointment when the gateway echoes metadata on verify.
const metadataAppointmentKey = "appointment_id"

// Gateway is the slice of the payment client the reconciler drives.
type Gateway interface {
	InitiateTransaction(ctx context.Context, params gateway.InitiateParams) (*gateway.InitiateResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*gateway.VerifyResult, error)
}

// Lifecycle is the slice of the appointment service the reconciler drives.
type Lifecycle interface {
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	MarkBooked(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointments.Appointment, error)
}

// SubaccountResolver maps a professional to their payout routing code.
type SubaccountResolver interface {
	CodeFor(ctx context.Context, professionalID string) (string, error)
}

// Service orchestrates the booking-to-payment protocol: initiation moves a
// pending appointment to booked, verification moves it to confirmed or
// cancelled, and the audit record is written exactly once per reference.
type Service struct {
	lifecycle     Lifecycle
	subaccounts   SubaccountResolver
	gateway       Gateway
	records       RecordStore
	locker        Locker
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
	callbackURL   string
	currency      string
	verifyTimeout time.Duration
}

// Config carries the reconciler's collaborators and policy knobs.
type Config struct {
	Lifecycle     Lifecycle
	Subaccounts   SubaccountResolver
	Gateway       Gateway
	Records       RecordStore
	Locker        Locker
	Metrics       *metrics.BookingMetrics
	Logger        *logging.Logger
	CallbackURL   string
	Currency      string
	VerifyTimeout time.Duration
}

// NewService constructs the reconciliation service.
func NewService(cfg Config) *Service {
	if cfg.Lifecycle == nil || cfg.Gateway == nil || cfg.Records == nil {
		panic("reconcile: lifecycle, gateway and records are required")
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 15 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	return &Service{
		lifecycle:     cfg.Lifecycle,
		subaccounts:   cfg.Subaccounts,
		gateway:       cfg.Gateway,
		records:       cfg.Records,
		locker:        cfg.Locker,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		callbackURL:   cfg.CallbackURL,
		currency:      cfg.Currency,
		verifyTimeout: cfg.VerifyTimeout,
	}
}

// StartPaymentParams describes a payment session request for a pending appointment.
type StartPaymentParams struct {
	AppointmentID uuid.UUID
	AmountMinor   int64
	Email         string
	FullName      string
}

// StartPaymentResult is the hosted checkout handed back to the client.
type StartPaymentResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

// StartPayment initiates a gateway transaction for a pending appointment and
// marks it booked. If the session cannot be opened the appointment is
// cancelled so the slot does not sit reserved behind a payment that can
// never arrive.
func (s *Service) StartPayment(ctx context.Context, params StartPaymentParams) (*StartPaymentResult, error) {
	if strings.TrimSpace(params.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", appointments.ErrValidation)
	}
	if params.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", appointments.ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "reconcile.start_payment")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", params.AppointmentID.String()))

	appt, err := s.lifecycle.Get(ctx, params.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointments.StatusPending {
		return nil, fmt.Errorf("%w: payment can only start for a pending appointment, got %s",
			appointments.ErrInvalidTransition, appt.Status)
	}

	var subaccountCode string
	if s.subaccounts != nil {
		subaccountCode, err = s.subaccounts.CodeFor(ctx, appt.DoctorID)
		if err != nil {
			s.metrics.ObserveInitiation("subaccount_error")
			s.cancelAfterFailure(ctx, appt.ID, "payout routing unavailable")
			return nil, fmt.Errorf("reconcile: resolve subaccount for %s: %w", appt.DoctorID, err)
		}
	}

	result, err := s.gateway.InitiateTransaction(ctx, gateway.InitiateParams{
		AmountMinor:    params.AmountMinor,
		Email:          params.Email,
		Currency:       s.currency,
		SubaccountCode: subaccountCode,
		CallbackURL:    s.callbackURL,
		Metadata: map[string]string{
			metadataAppointmentKey: appt.ID.String(),
			"full_name":            params.FullName,
		},
	})
	if err != nil {
		s.metrics.ObserveInitiation("error")
		s.cancelAfterFailure(ctx, appt.ID, "payment initiation failed")
		return nil, err
	}

	if _, err := s.lifecycle.MarkBooked(ctx, appt.ID); err != nil {
		return nil, err
	}
	s.metrics.ObserveInitiation("ok")
	s.logger.Info("payment session opened",
		"appointment_id", appt.ID,
		"reference", result.Reference,
	)
	return &StartPaymentResult{
		AuthorizationURL: result.AuthorizationURL,
		Reference:        result.Reference,
	}, nil
}

// CompletePayment verifies a gateway reference and settles the appointment it
// belongs to: confirmed on success, cancelled on terminal failure. It is safe
// to call from both the client callback and the webhook; the reference lock
// and the record store's unique key make redundant deliveries no-ops.
func (s *Service) CompletePayment(ctx context.Context, reference string) (*PaymentRecord, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, gateway.ErrInvalidReference
	}

	ctx, span := tracer.Start(ctx, "reconcile.complete_payment")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.reference", reference))

	release, err := s.locker.Acquire(ctx, reference, s.verifyTimeout+5*time.Second)
	if err != nil {
		return nil, err
	}
	defer release()

	// A recorded reference was already reconciled; acknowledge and stop.
	if rec, err := s.records.GetByReference(ctx, reference); err == nil {
		return rec, nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	started := time.Now()
	verified, err := s.gateway.VerifyTransaction(vctx, reference)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		// A timeout is an unavailable gateway, never a failed payment.
		if vctx.Err() != nil && !errors.Is(err, gateway.ErrTransactionNotFound) {
			err = fmt.Errorf("%w: verify timed out", gateway.ErrUnavailable)
		}
		s.metrics.ObserveVerification("error", elapsed)
		return nil, err
	}

	apptID, err := appointmentFromMetadata(verified.Metadata)
	if err != nil {
		s.metrics.ObserveVerification("unmatched", elapsed)
		return nil, err
	}

	if !verified.Success {
		s.metrics.ObserveVerification("failed", elapsed)
		s.cancelAfterFailure(ctx, apptID, "payment failed: "+verified.Status)
		return nil, fmt.Errorf("%w: gateway status %q for reference %s", ErrPaymentFailed, verified.Status, reference)
	}

	appt, err := s.lifecycle.Get(ctx, apptID)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case appointments.StatusPending:
		if _, err := s.lifecycle.MarkBooked(ctx, apptID); err != nil {
			return nil, err
		}
		fallthrough
	case appointments.StatusBooked:
		if _, err := s.lifecycle.Confirm(ctx, apptID); err != nil {
			return nil, err
		}
	case appointments.StatusConfirmed:
		// Already settled; fall through to the audit write below.
	default:
		s.logger.Warn("verified payment for terminal appointment",
			"appointment_id", apptID,
			"status", string(appt.Status),
			"reference", reference,
		)
		s.metrics.ObserveVerification("terminal", elapsed)
		return nil, nil
	}

	rec := &PaymentRecord{
		Reference:     reference,
		AppointmentID: apptID,
		AmountMinor:   verified.AmountMinor,
		Currency:      verified.Currency,
		Email:         verified.Email,
		FullName:      verified.Metadata["full_name"],
		Status:        verified.Status,
		Metadata:      verified.Metadata,
		FeeMinor:      verified.FeesMinor,
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			// Raced with another reconciler; the audit row exists, we are done.
			existing, getErr := s.records.GetByReference(ctx, reference)
			if getErr != nil {
				return nil, getErr
			}
			s.metrics.ObserveVerification("duplicate", elapsed)
			return existing, nil
		}
		return nil, err
	}

	s.metrics.ObserveVerification("success", elapsed)
	s.logger.Info("payment reconciled",
		"appointment_id", apptID,
		"reference", reference,
		"amount", rec.AmountMinor,
		"currency", rec.Currency,
	)
	return rec, nil
}

// cancelAfterFailure releases the appointment and its slot after a payment
// path failure. Cancellation errors are logged, not surfaced, so the original
// failure stays the caller's error.
func (s *Service) cancelAfterFailure(ctx context.Context, id uuid.UUID, reason string) {
	if _, err := s.lifecycle.Cancel(ctx, id, reason); err != nil {
		s.logger.Error("failed to cancel appointment after payment failure",
			"error", err,
			"appointment_id", id,
			"reason", reason,
		)
	}
}

func appointmentFromMetadata(meta map[string]string) (uuid.UUID, error) {
	raw, ok := meta[metadataAppointmentKey]
	if !ok || raw == "" {
		return uuid.Nil, fmt.Errorf("reconcile: transaction metadata carries no appointment id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reconcile: malformed appointment id %q in metadata", raw)
	}
	return id, nil
}

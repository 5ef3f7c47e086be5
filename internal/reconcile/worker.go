package reconcile

import (
	"context"
	"time"

	"github.com/clinicbook/booking-platform/internal/appointments"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// expiryLister is the slice of the appointment store the worker sweeps.
type expiryLister interface {
	ListBookedBefore(ctx context.Context, cutoff time.Time) ([]appointments.Appointment, error)
}

// ExpiryWorker cancels appointments whose payment session went stale: booked
// but never confirmed within the payment window. The slot is released by the
// cancel path so abandoned checkouts stop starving the schedule.
type ExpiryWorker struct {
	store     expiryLister
	lifecycle Lifecycle
	window    time.Duration
	interval  time.Duration
	logger    *logging.Logger
}

// NewExpiryWorker constructs the payment-session expiry sweeper.
func NewExpiryWorker(store expiryLister, lifecycle Lifecycle, window, interval time.Duration, logger *logging.Logger) *ExpiryWorker {
	if store == nil || lifecycle == nil {
		panic("reconcile: store and lifecycle required")
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ExpiryWorker{
		store:     store,
		lifecycle: lifecycle,
		window:    window,
		interval:  interval,
		logger:    logger,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("payment expiry worker started",
		"window", w.window.String(),
		"interval", w.interval.String(),
	)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("payment expiry worker stopped")
			return
		case <-ticker.C:
			if n, err := w.SweepOnce(ctx); err != nil {
				w.logger.Error("expiry sweep failed", "error", err)
			} else if n > 0 {
				w.logger.Info("expired stale payment sessions", "count", n)
			}
		}
	}
}

// SweepOnce cancels every appointment stuck in booked past the window and
// returns how many it expired.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-w.window)
	stale, err := w.store.ListBookedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, appt := range stale {
		if _, err := w.lifecycle.Cancel(ctx, appt.ID, "payment window elapsed"); err != nil {
			// One stuck row must not block the rest of the sweep.
			w.logger.Error("failed to expire appointment", "error", err, "appointment_id", appt.ID)
			continue
		}
		expired++
	}
	return expired, nil
}

package events

import (
	"context"
	"sync"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

// LogNotifier writes transition events to the structured log. It stands in
// for the external notification dispatcher.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Emit(_ context.Context, event AppointmentEvent) {
	n.logger.Info("appointment event",
		"type", event.Type,
		"appointment_id", event.AppointmentID,
		"doctor_id", event.DoctorID,
		"user_id", event.UserID,
		"reason", event.Reason,
	)
}

// CapturingNotifier records emitted events for assertions in tests.
type CapturingNotifier struct {
	mu     sync.Mutex
	Events []AppointmentEvent
}

func (n *CapturingNotifier) Emit(_ context.Context, event AppointmentEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, event)
}

// Emitted returns a copy of the captured events.
func (n *CapturingNotifier) Emitted() []AppointmentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]AppointmentEvent, len(n.Events))
	copy(out, n.Events)
	return out
}

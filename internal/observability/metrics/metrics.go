package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking and payment flows.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	initiationsTotal  *prometheus.CounterVec
	verifyTotal       *prometheus.CounterVec
	webhookTotal      *prometheus.CounterVec
	verifyLatency     prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "schedule",
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
		initiationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "payments",
			Name:      "initiations_total",
			Help:      "Gateway transaction initiations by outcome",
		}, []string{"outcome"}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "payments",
			Name:      "verifications_total",
			Help:      "Gateway verifications by result",
		}, []string{"result"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "payments",
			Name:      "webhook_total",
			Help:      "Inbound gateway webhooks by status",
		}, []string{"status"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicbook",
			Subsystem: "payments",
			Name:      "verify_latency_seconds",
			Help:      "Latency of gateway verify calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.initiationsTotal, m.verifyTotal, m.webhookTotal, m.verifyLatency)
	return m
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveInitiation(outcome string) {
	if m == nil {
		return
	}
	m.initiationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveVerification(result string, seconds float64) {
	if m == nil {
		return
	}
	m.verifyTotal.WithLabelValues(result).Inc()
	m.verifyLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveWebhook(status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(status).Inc()
}

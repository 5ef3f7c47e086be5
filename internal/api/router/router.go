package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicbook/booking-platform/internal/appointments"
	httpmiddleware "github.com/clinicbook/booking-platform/internal/http/middleware"
	"github.com/clinicbook/booking-platform/internal/reconcile"
	"github.com/clinicbook/booking-platform/internal/schedule"
	"github.com/clinicbook/booking-platform/internal/subaccounts"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ScheduleHandler     *schedule.Handler
	AppointmentsHandler *appointments.Handler
	SubaccountsHandler  *subaccounts.Handler
	PaymentsHandler     *reconcile.Handler
	WebhookHandler      *reconcile.WebhookHandler
	MetricsHandler      http.Handler
	OperatorJWTSecret   string
	CORSAllowedOrigins  []string
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ScheduleHandler != nil {
		r.Put("/schedule", cfg.ScheduleHandler.Upsert)
		r.Get("/schedule/{professionalID}/available-slots", cfg.ScheduleHandler.AvailableSlots)
	}

	if cfg.AppointmentsHandler != nil {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", cfg.AppointmentsHandler.Create)
			r.Get("/{id}", cfg.AppointmentsHandler.Get)
			r.Patch("/{id}/confirm", cfg.AppointmentsHandler.Confirm)
			r.Patch("/{id}/cancel", cfg.AppointmentsHandler.Cancel)
			// Completing is an operator action.
			r.With(httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret)).
				Patch("/{id}/complete", cfg.AppointmentsHandler.Complete)
		})
	}

	if cfg.PaymentsHandler != nil {
		r.Route("/payment", func(r chi.Router) {
			r.Post("/start-payment", cfg.PaymentsHandler.StartPayment)
			r.Post("/create-payment", cfg.PaymentsHandler.CreatePayment)
			if cfg.WebhookHandler != nil {
				r.Post("/webhook", cfg.WebhookHandler.Handle)
			}
		})
	}

	if cfg.SubaccountsHandler != nil {
		r.Get("/subaccount/{professionalID}", cfg.SubaccountsHandler.Get)
		r.With(httpmiddleware.OperatorJWT(cfg.OperatorJWTSecret)).
			Post("/subaccount", cfg.SubaccountsHandler.Create)
	}

	return r
}

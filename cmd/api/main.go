package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicbook/booking-platform/internal/api/router"
	"github.com/clinicbook/booking-platform/internal/appointments"
	appconfig "github.com/clinicbook/booking-platform/internal/config"
	"github.com/clinicbook/booking-platform/internal/events"
	"github.com/clinicbook/booking-platform/internal/gateway"
	"github.com/clinicbook/booking-platform/internal/observability/metrics"
	"github.com/clinicbook/booking-platform/internal/reconcile"
	"github.com/clinicbook/booking-platform/internal/schedule"
	"github.com/clinicbook/booking-platform/internal/subaccounts"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	if cfg.Env == "development" {
		logger = logging.NewText(cfg.LogLevel)
	}
	logger.Info("starting booking-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if cfg.PaystackSecretKey == "" {
		logger.Warn("PAYSTACK_SECRET_KEY is not set; payment initiation will fail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when configured, in-memory otherwise (development mode).
	var (
		scheduleStore    schedule.Store
		appointmentStore appointments.Store
		subaccountStore  subaccounts.Store
		recordStore      reconcile.RecordStore
		processedStore   reconcile.ProcessedStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		scheduleStore = schedule.NewPGStore(pool)
		appointmentStore = appointments.NewPGStore(pool)
		subaccountStore = subaccounts.NewPGStore(pool)
		recordStore = reconcile.NewPGRecordStore(pool)
		processedStore = events.NewProcessedStore(pool)
		logger.Info("using postgres stores")
	} else {
		scheduleStore = schedule.NewInMemoryStore()
		appointmentStore = appointments.NewInMemoryStore()
		subaccountStore = subaccounts.NewInMemoryStore()
		recordStore = reconcile.NewInMemoryRecordStore()
		processedStore = events.NewInMemoryProcessedStore()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	// Verification locking: Redis across instances, in-process otherwise.
	var locker reconcile.Locker = reconcile.NewLocalLocker()
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Error("redis unreachable", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		locker = reconcile.NewRedisLocker(client)
		logger.Info("using redis verification lock", "addr", cfg.RedisAddr)
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	scheduler := schedule.NewManager(scheduleStore, logger)
	notifier := events.NewLogNotifier(logger)
	lifecycle := appointments.NewService(appointmentStore, scheduler, notifier, logger).WithMetrics(bookingMetrics)

	gatewayClient := gateway.NewClient(cfg.PaystackSecretKey, cfg.PaystackBaseURL, logger)
	registry := subaccounts.NewRegistry(subaccountStore, gatewayClient, cfg.PlatformPercentage, cfg.CurrencyCode, logger)

	// The hosted checkout redirects here after payment unless an explicit
	// callback is configured.
	callbackURL := cfg.PaymentCallbackURL
	if callbackURL == "" && cfg.PublicBaseURL != "" {
		callbackURL = strings.TrimRight(cfg.PublicBaseURL, "/") + "/payment/callback"
	}

	reconciler := reconcile.NewService(reconcile.Config{
		Lifecycle:     lifecycle,
		Subaccounts:   registry,
		Gateway:       gatewayClient,
		Records:       recordStore,
		Locker:        locker,
		Metrics:       bookingMetrics,
		Logger:        logger,
		CallbackURL:   callbackURL,
		Currency:      cfg.CurrencyCode,
		VerifyTimeout: cfg.GatewayVerifyTimeout,
	})

	expiry := reconcile.NewExpiryWorker(appointmentStore, lifecycle, cfg.PaymentWindow, cfg.ExpirySweepInterval, logger)
	go expiry.Run(ctx)

	handler := router.New(&router.Config{
		Logger:              logger,
		ScheduleHandler:     schedule.NewHandler(scheduler, logger),
		AppointmentsHandler: appointments.NewHandler(lifecycle, logger),
		SubaccountsHandler:  subaccounts.NewHandler(registry, logger),
		PaymentsHandler:     reconcile.NewHandler(reconciler, cfg.ConsultationFeeMinor, logger),
		WebhookHandler:      reconcile.NewWebhookHandler(cfg.PaystackWebhookKey, reconciler, processedStore, bookingMetrics, logger),
		MetricsHandler:      promhttp.Handler(),
		OperatorJWTSecret:   cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Payment gateway (Paystack-compatible).
	PaystackSecretKey  string
	PaystackBaseURL    string
	PaystackWebhookKey string
	PaymentCallbackURL string
	CurrencyCode       string

	// Fee charged for a consultation when the caller does not supply one,
	// in minor currency units.
	ConsultationFeeMinor int64
	// Platform share of a split payment, in percent.
	PlatformPercentage float64

	// How long a booked appointment may wait for a payment notification
	// before the expiry worker cancels it.
	PaymentWindow        time.Duration
	ExpirySweepInterval  time.Duration
	GatewayVerifyTimeout time.Duration

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		PaystackSecretKey:  getEnv("PAYSTACK_SECRET_KEY", ""),
		PaystackBaseURL:    getEnv("PAYSTACK_BASE_URL", ""),
		PaystackWebhookKey: getEnv("PAYSTACK_WEBHOOK_KEY", ""),
		PaymentCallbackURL: getEnv("PAYMENT_CALLBACK_URL", ""),
		CurrencyCode:       getEnv("CURRENCY_CODE", "NGN"),

		ConsultationFeeMinor: getEnvAsInt64("CONSULTATION_FEE_MINOR", 50000),
		PlatformPercentage:   getEnvAsFloat("PLATFORM_PERCENTAGE", 10),

		PaymentWindow:        getEnvAsDuration("PAYMENT_WINDOW", 30*time.Minute),
		ExpirySweepInterval:  getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", 5*time.Minute),
		GatewayVerifyTimeout: getEnvAsDuration("GATEWAY_VERIFY_TIMEOUT", 15*time.Second),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full server configuration, loaded from HYPLEY_* env vars.
type Config struct {
	Addr string

	// DatabaseURL is the Postgres DSN.
	DatabaseURL string

	// GeminiAPIKey authenticates against the GenAI API.
	GeminiAPIKey string

	// WorkOS user management.
	WorkOSAPIKey   string
	WorkOSClientID string

	// Stripe token-pack checkout.
	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	// S3 uploads.
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3BaseURL   string

	// SignupTokens is the free-tier grant on account creation.
	SignupTokens int64
	SessionTTL   time.Duration

	// UsageDebounce is the quiet period before usage deltas hit the ledger.
	UsageDebounce time.Duration

	MaxBodyBytes int64

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Live WebSocket mode (/v1/live).
	LiveMaxJSONMessageBytes int64
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveHandshakeTimeout    time.Duration
	LiveMaxSessionDuration  time.Duration
	// LiveReconnectDelay is the single fixed delay before the gateway
	// redials a failed upstream while the mic intent is still on.
	LiveReconnectDelay time.Duration

	// In-memory limits (per principal).
	LimitRPS   float64
	LimitBurst int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

// LoadFromEnv reads and validates the configuration.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("HYPLEY_ADDR", ":8080"),
		DatabaseURL:             envOr("HYPLEY_DATABASE_URL", ""),
		GeminiAPIKey:            envOr("HYPLEY_GEMINI_API_KEY", ""),
		WorkOSAPIKey:            envOr("HYPLEY_WORKOS_API_KEY", ""),
		WorkOSClientID:          envOr("HYPLEY_WORKOS_CLIENT_ID", ""),
		StripeSecretKey:         envOr("HYPLEY_STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:     envOr("HYPLEY_STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:      envOr("HYPLEY_CHECKOUT_SUCCESS_URL", "https://app.hypley.ai/billing/success"),
		CheckoutCancelURL:       envOr("HYPLEY_CHECKOUT_CANCEL_URL", "https://app.hypley.ai/billing/cancel"),
		S3Region:                envOr("HYPLEY_S3_REGION", ""),
		S3Bucket:                envOr("HYPLEY_S3_BUCKET", ""),
		S3AccessKey:             envOr("HYPLEY_S3_ACCESS_KEY", ""),
		S3SecretKey:             envOr("HYPLEY_S3_SECRET_KEY", ""),
		S3BaseURL:               envOr("HYPLEY_S3_BASE_URL", ""),
		SignupTokens:            envInt64Or("HYPLEY_SIGNUP_TOKENS", 100_000),
		SessionTTL:              envDurationOr("HYPLEY_SESSION_TTL", 30*24*time.Hour),
		UsageDebounce:           envDurationOr("HYPLEY_USAGE_DEBOUNCE", 3*time.Second),
		MaxBodyBytes:            envInt64Or("HYPLEY_MAX_BODY_BYTES", 8<<20), // 8 MiB
		CORSAllowedOrigins:      make(map[string]struct{}),
		LiveMaxJSONMessageBytes: envInt64Or("HYPLEY_LIVE_MAX_JSON_MESSAGE_BYTES", 512*1024),
		LiveWSPingInterval:      envDurationOr("HYPLEY_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("HYPLEY_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveHandshakeTimeout:    envDurationOr("HYPLEY_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveMaxSessionDuration:  envDurationOr("HYPLEY_LIVE_MAX_DURATION", 2*time.Hour),
		LiveReconnectDelay:      envDurationOr("HYPLEY_LIVE_RECONNECT_DELAY", 2*time.Second),
		LimitRPS:                envFloat64Or("HYPLEY_RATE_LIMIT_RPS", 5.0),
		LimitBurst:              envIntOr("HYPLEY_RATE_LIMIT_BURST", 10),
		ReadHeaderTimeout:       envDurationOr("HYPLEY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:             envDurationOr("HYPLEY_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:          envDurationOr("HYPLEY_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:     envDurationOr("HYPLEY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("HYPLEY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("HYPLEY_DATABASE_URL must be set")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("HYPLEY_GEMINI_API_KEY must be set")
	}
	if cfg.SignupTokens < 0 {
		return Config{}, fmt.Errorf("HYPLEY_SIGNUP_TOKENS must be >= 0")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_SESSION_TTL must be > 0")
	}
	if cfg.UsageDebounce <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_USAGE_DEBOUNCE must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_MAX_BODY_BYTES must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_LIVE_MAX_DURATION must be > 0")
	}
	if cfg.LiveReconnectDelay < 0 {
		return Config{}, fmt.Errorf("HYPLEY_LIVE_RECONNECT_DELAY must be >= 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("HYPLEY_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("HYPLEY_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("HYPLEY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return Config{}, fmt.Errorf("HYPLEY_STRIPE_WEBHOOK_SECRET must be set when Stripe is enabled")
	}
	if cfg.S3Bucket != "" && cfg.S3Region == "" {
		return Config{}, fmt.Errorf("HYPLEY_S3_REGION must be set when HYPLEY_S3_BUCKET is set")
	}

	return cfg, nil
}

// BillingEnabled reports whether the Stripe surface should be mounted.
func (c Config) BillingEnabled() bool { return c.StripeSecretKey != "" }

// UploadsEnabled reports whether the S3 surface should be mounted.
func (c Config) UploadsEnabled() bool { return c.S3Bucket != "" }

// AuthEnabled reports whether WorkOS credential auth is configured.
func (c Config) AuthEnabled() bool { return c.WorkOSAPIKey != "" && c.WorkOSClientID != "" }

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Classifier scoring service
	ScorerURL     string        // Base URL of the ML scoring service (empty = static scorer)
	ScorerTimeout time.Duration // Per-call deadline for the scorer
	RiskThreshold float64       // Probability at or above which a transaction is challenged

	// Spike rule
	RuleLastN      int
	RuleMinPrev    int
	RuleMultiplier float64
	RuleMinDelta   float64

	// OTP challenge
	OTPTTL            time.Duration
	OTPResendCooldown time.Duration
	OTPMaxAttempts    int

	// Notifier
	Notifier         string // "console" or "twilio"
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	NotifyTimeout    time.Duration

	// HTTP hardening
	RateLimitRPM int

	// Tracing
	OTLPEndpoint string
}

// Defaults match the reference deployment.
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultScorerTimeout = 5 * time.Second
	DefaultNotifyTimeout = 10 * time.Second
	DefaultRiskThreshold = 0.5

	DefaultRuleLastN      = 4
	DefaultRuleMinPrev    = 3
	DefaultRuleMultiplier = 3.0
	DefaultRuleMinDelta   = 500.0

	DefaultOTPTTLSeconds        = 300
	DefaultOTPResendCooldownSec = 60
	DefaultOTPMaxAttempts       = 5

	DefaultRateLimitRPM = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", DefaultPort),
		Env:         getEnv("ENV", DefaultEnv),
		LogLevel:    getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL: os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set

		ScorerURL:     os.Getenv("SCORER_URL"),
		ScorerTimeout: time.Duration(getEnvInt64("SCORER_TIMEOUT_MS", int64(DefaultScorerTimeout/time.Millisecond))) * time.Millisecond,
		RiskThreshold: getEnvFloat("FRAUD_THRESHOLD", DefaultRiskThreshold),

		RuleLastN:      int(getEnvInt64("RULE_LAST_N", DefaultRuleLastN)),
		RuleMinPrev:    int(getEnvInt64("RULE_MIN_PREV", DefaultRuleMinPrev)),
		RuleMultiplier: getEnvFloat("RULE_MULTIPLIER", DefaultRuleMultiplier),
		RuleMinDelta:   getEnvFloat("RULE_MIN_DELTA", DefaultRuleMinDelta),

		OTPTTL:            time.Duration(getEnvInt64("OTP_TTL_SECONDS", DefaultOTPTTLSeconds)) * time.Second,
		OTPResendCooldown: time.Duration(getEnvInt64("OTP_RESEND_COOLDOWN", DefaultOTPResendCooldownSec)) * time.Second,
		OTPMaxAttempts:    int(getEnvInt64("OTP_MAX_ATTEMPTS", DefaultOTPMaxAttempts)),

		Notifier:         getEnv("NOTIFIER", "console"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: normalizePhone(firstEnv("TWILIO_FROM_NUMBER", "TWILIO_PHONE_NUMBER")),
		NotifyTimeout:    time.Duration(getEnvInt64("NOTIFY_TIMEOUT_MS", int64(DefaultNotifyTimeout/time.Millisecond))) * time.Millisecond,

		RateLimitRPM: int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.RiskThreshold < 0 || c.RiskThreshold > 1 {
		return fmt.Errorf("FRAUD_THRESHOLD must be in [0,1], got %v", c.RiskThreshold)
	}
	if c.RuleLastN < 1 {
		return fmt.Errorf("RULE_LAST_N must be >= 1, got %d", c.RuleLastN)
	}
	if c.RuleMinPrev < 1 {
		return fmt.Errorf("RULE_MIN_PREV must be >= 1, got %d", c.RuleMinPrev)
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL_SECONDS must be positive")
	}
	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be >= 1, got %d", c.OTPMaxAttempts)
	}

	switch c.Notifier {
	case "console":
		if c.IsProduction() {
			return fmt.Errorf("NOTIFIER=console is not allowed in production")
		}
	case "twilio":
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			return fmt.Errorf("NOTIFIER=twilio requires TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER")
		}
	default:
		return fmt.Errorf("NOTIFIER must be \"console\" or \"twilio\", got %q", c.Notifier)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DevCodeEnabled reports whether raw OTP codes may be surfaced to callers.
// Only outside production, and only with the console notifier; a real SMS
// provider and a leaked code at the same time would defeat the challenge.
func (c *Config) DevCodeEnabled() bool {
	return !c.IsProduction() && c.Notifier == "console"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// normalizePhone strips interior spaces: "+1 267 500 8164" -> "+12675008164".
func normalizePhone(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// Package config loads process configuration once at startup. The resulting
// Config is read-only; nothing in the pipeline mutates it at request time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	dErrors "veridoc/pkg/domain-errors"
)

// Environment selects between production and test behaviour. In production
// the fixture fallbacks are unreachable: client factories refuse to construct
// them and missing credentials are fatal at startup.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvTest       Environment = "test"
)

// IsProduction reports whether fallbacks must be disabled.
func (e Environment) IsProduction() bool { return e == EnvProduction }

// Registry holds connection settings for the population registry.
type Registry struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Matcher holds connection settings for the biometric matching service.
type Matcher struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Anchor holds connection settings for the anchor/signing collaborator.
type Anchor struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Thresholds holds the scoring knobs for the pipeline.
type Thresholds struct {
	BiometricQuality float64 // templates below this are rejected pre-match (default 60)
	BiometricMatch   float64 // scores below this are not_verified (default 70)
}

// Retry bounds the orchestrator's identity retry loop.
type Retry struct {
	MaxAttempts int           // total attempts including the first (default 3)
	Backoff     time.Duration // delay between attempts (default 2s)
}

// RedisConfig holds Redis connection settings for the anchor record store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds the audit sink settings.
type KafkaConfig struct {
	Brokers    string
	AuditTopic string
}

// Config is the full process configuration.
type Config struct {
	Addr        string
	Environment Environment
	Registry    Registry
	Matcher     Matcher
	Anchor      Anchor
	Thresholds  Thresholds
	Retry       Retry
	Redis       RedisConfig
	Kafka       KafkaConfig
	PostgresDSN string
	ReceiptKey  string        // HS256 key for issuance receipts
	FeatureKey  string        // keyed-MAC derivation key for security features
	Validity    time.Duration // issued document validity window
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("VERIDOC_ADDR", ":8080"),
		Environment: EnvTest,
		Registry: Registry{
			BaseURL: os.Getenv("VERIDOC_REGISTRY_URL"),
			APIKey:  os.Getenv("VERIDOC_REGISTRY_API_KEY"),
			Timeout: durationOr("VERIDOC_REGISTRY_TIMEOUT", 30*time.Second),
		},
		Matcher: Matcher{
			BaseURL: os.Getenv("VERIDOC_MATCHER_URL"),
			APIKey:  os.Getenv("VERIDOC_MATCHER_API_KEY"),
			Timeout: durationOr("VERIDOC_MATCHER_TIMEOUT", 30*time.Second),
		},
		Anchor: Anchor{
			BaseURL: os.Getenv("VERIDOC_ANCHOR_URL"),
			APIKey:  os.Getenv("VERIDOC_ANCHOR_API_KEY"),
			Timeout: durationOr("VERIDOC_ANCHOR_TIMEOUT", 30*time.Second),
		},
		Thresholds: Thresholds{
			BiometricQuality: floatOr("VERIDOC_QUALITY_THRESHOLD", 60),
			BiometricMatch:   floatOr("VERIDOC_MATCH_THRESHOLD", 70),
		},
		Retry: Retry{
			MaxAttempts: intOr("VERIDOC_IDENTITY_RETRIES", 3),
			Backoff:     durationOr("VERIDOC_IDENTITY_BACKOFF", 2*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("VERIDOC_REDIS_URL"),
			PoolSize:     intOr("VERIDOC_REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("VERIDOC_REDIS_MIN_IDLE", 2),
			DialTimeout:  durationOr("VERIDOC_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("VERIDOC_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("VERIDOC_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    os.Getenv("VERIDOC_KAFKA_BROKERS"),
			AuditTopic: envOr("VERIDOC_AUDIT_TOPIC", "veridoc.audit.events"),
		},
		PostgresDSN: os.Getenv("VERIDOC_POSTGRES_DSN"),
		ReceiptKey:  os.Getenv("VERIDOC_RECEIPT_KEY"),
		FeatureKey:  os.Getenv("VERIDOC_FEATURE_KEY"),
		Validity:    durationOr("VERIDOC_VALIDITY_WINDOW", 5*365*24*time.Hour),
	}

	if os.Getenv("VERIDOC_ENV") == string(EnvProduction) {
		cfg.Environment = EnvProduction
	}

	return cfg
}

// Validate enforces the fail-closed startup contract: production mode must
// have real credentials for every collaborator, since the fixture fallback is
// not constructible there.
func (c Config) Validate() error {
	if !c.Environment.IsProduction() {
		return nil
	}

	checks := []struct {
		name  string
		value string
	}{
		{"registry base URL", c.Registry.BaseURL},
		{"registry API key", c.Registry.APIKey},
		{"matcher base URL", c.Matcher.BaseURL},
		{"matcher API key", c.Matcher.APIKey},
		{"anchor base URL", c.Anchor.BaseURL},
		{"receipt signing key", c.ReceiptKey},
		{"feature derivation key", c.FeatureKey},
	}
	for _, check := range checks {
		if check.value == "" {
			return dErrors.New(dErrors.KindConfigurationError,
				fmt.Sprintf("%s is required in production mode", check.name))
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func floatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

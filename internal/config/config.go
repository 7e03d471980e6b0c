package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant      string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL        string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	SettingsCacheTTL   time.Duration `mapstructure:"SETTINGS_CACHE_TTL"`
	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OTelEnabled        bool          `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint       string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSamplingRatio  float64       `mapstructure:"OTEL_SAMPLING_RATIO"`
	Timezone           string        `mapstructure:"TIMEZONE"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DEFAULT_TENANT",
	"CORS_ORIGINS", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "REDIS_URL", "SETTINGS_CACHE_TTL",
	"KAFKA_BROKERS", "OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OTEL_ENABLED",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO", "TIMEZONE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("SETTINGS_CACHE_TTL", "5m")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "2s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode, every request gets an admin session.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves the clinic timezone used for "today" and for interpreting
// wall-clock appointment times.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development a
// token verification source (JWKS URL, issuer discovery, or a signing key) is
// required.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("one of AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is a development aid and is not accepted in production")
	}
	if c.OTelSamplingRatio < 0 || c.OTelSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be within [0,1], got %v", c.OTelSamplingRatio)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.OutboxBatchSize)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

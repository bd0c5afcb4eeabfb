package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Artifact store drivers.
const (
	DriverMemory = "memory"
	DriverS3     = "s3"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string        `mapstructure:"DB_SCHEMA"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	TLSEnabled     bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string        `mapstructure:"TLS_KEY_FILE"`

	ArtifactDriver     string        `mapstructure:"ARTIFACT_DRIVER"`
	ArtifactBucket     string        `mapstructure:"ARTIFACT_BUCKET"`
	ArtifactRegion     string        `mapstructure:"ARTIFACT_REGION"`
	ArtifactEndpoint   string        `mapstructure:"ARTIFACT_ENDPOINT"`
	ArtifactPathStyle  bool          `mapstructure:"ARTIFACT_PATH_STYLE"`
	ArtifactAccessKey  string        `mapstructure:"ARTIFACT_ACCESS_KEY_ID"`
	ArtifactSecretKey  string        `mapstructure:"ARTIFACT_SECRET_ACCESS_KEY"`
	ArtifactPrefix     string        `mapstructure:"ARTIFACT_PREFIX"`
	ArtifactURLTTL     time.Duration `mapstructure:"ARTIFACT_URL_TTL"`
	ArtifactSigningKey string        `mapstructure:"ARTIFACT_SIGNING_KEY"`
	PublicBaseURL      string        `mapstructure:"PUBLIC_BASE_URL"`

	WorkerPollInterval    time.Duration `mapstructure:"WORKER_POLL_INTERVAL"`
	ConceptDictionaryPath string        `mapstructure:"CONCEPT_DICTIONARY_PATH"`
	MetricsEnabled        bool          `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA", "MIGRATIONS_DIR",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"ARTIFACT_DRIVER", "ARTIFACT_BUCKET", "ARTIFACT_REGION", "ARTIFACT_ENDPOINT",
	"ARTIFACT_PATH_STYLE", "ARTIFACT_ACCESS_KEY_ID", "ARTIFACT_SECRET_ACCESS_KEY",
	"ARTIFACT_PREFIX", "ARTIFACT_URL_TTL", "ARTIFACT_SIGNING_KEY", "PUBLIC_BASE_URL",
	"WORKER_POLL_INTERVAL", "CONCEPT_DICTIONARY_PATH", "METRICS_ENABLED",
}

// Load reads .env (if present) and the environment. It does not validate;
// commands that need a database or artifact store call Validate.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("MIGRATIONS_DIR", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "64K")
	v.SetDefault("ARTIFACT_DRIVER", DriverMemory)
	v.SetDefault("ARTIFACT_REGION", "us-east-1")
	v.SetDefault("ARTIFACT_PREFIX", "omop")
	v.SetDefault("ARTIFACT_URL_TTL", "48h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("WORKER_POLL_INTERVAL", "5s")
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	cfg.ArtifactDriver = strings.ToLower(cfg.ArtifactDriver)

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the service is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SigningKey returns the decoded ARTIFACT_SIGNING_KEY. Outside production an
// unset key falls back to a fixed development key.
func (c *Config) SigningKey() string {
	if c.ArtifactSigningKey == "" {
		return "omop-export-development-signing-key"
	}
	key, _ := hex.DecodeString(c.ArtifactSigningKey)
	return string(key)
}

// Validate checks that the configuration is safe to run the pipeline with.
// The memory artifact driver is refused in production: its signed URLs do
// not survive a restart.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.WorkerPollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive, got %s", c.WorkerPollInterval)
	}
	if c.ArtifactURLTTL <= 0 {
		return fmt.Errorf("ARTIFACT_URL_TTL must be positive, got %s", c.ArtifactURLTTL)
	}

	switch c.ArtifactDriver {
	case DriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("ARTIFACT_DRIVER=memory is not allowed in production")
		}
		if _, err := url.ParseRequestURI(c.PublicBaseURL); err != nil {
			return fmt.Errorf("PUBLIC_BASE_URL is not a valid URL: %w", err)
		}
	case DriverS3:
		if c.ArtifactBucket == "" {
			return fmt.Errorf("ARTIFACT_BUCKET is required when ARTIFACT_DRIVER is \"s3\"")
		}
		if (c.ArtifactAccessKey == "") != (c.ArtifactSecretKey == "") {
			return fmt.Errorf("ARTIFACT_ACCESS_KEY_ID and ARTIFACT_SECRET_ACCESS_KEY must be set together")
		}
	default:
		return fmt.Errorf("ARTIFACT_DRIVER must be \"memory\" or \"s3\", got %q", c.ArtifactDriver)
	}

	// Signing key validation
	if c.ArtifactDriver == DriverMemory && c.IsProduction() && c.ArtifactSigningKey == "" {
		return fmt.Errorf("ARTIFACT_SIGNING_KEY is required in production")
	}
	if c.ArtifactSigningKey != "" {
		keyBytes, err := hex.DecodeString(c.ArtifactSigningKey)
		if err != nil {
			return fmt.Errorf("ARTIFACT_SIGNING_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) < 32 {
			return fmt.Errorf("ARTIFACT_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}

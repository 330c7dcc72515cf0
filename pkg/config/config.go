// Package config loads service and CLI configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file named by
// SPUR_CONFIG, then SPUR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings.
type Config struct {
	LogLevel  string `env:"SPUR_LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat string `env:"SPUR_LOG_FORMAT" envDefault:"text" yaml:"log_format"`

	// AdapterDir, when set, adds file-based adapter contracts to the registry.
	AdapterDir string `env:"SPUR_ADAPTER_DIR" yaml:"adapter_dir"`
	// RedisAddr, when set, adds a shared Redis-backed registry.
	RedisAddr string `env:"SPUR_REDIS_ADDR" yaml:"redis_addr"`

	// DatabaseURL selects the plan store: sqlite:<path> or postgres://...
	DatabaseURL string `env:"SPUR_DATABASE_URL" yaml:"database_url"`

	ArtifactStore string `env:"SPUR_ARTIFACT_STORE" envDefault:"fs" yaml:"artifact_store"`
	ArtifactDir   string `env:"SPUR_ARTIFACT_DIR" envDefault:"artifacts" yaml:"artifact_dir"`
	S3Bucket      string `env:"SPUR_S3_BUCKET" yaml:"s3_bucket"`
	S3Region      string `env:"SPUR_S3_REGION" envDefault:"us-east-1" yaml:"s3_region"`
	S3Endpoint    string `env:"SPUR_S3_ENDPOINT" yaml:"s3_endpoint"`
	GCSBucket     string `env:"SPUR_GCS_BUCKET" yaml:"gcs_bucket"`

	ListenAddr     string  `env:"SPUR_LISTEN_ADDR" envDefault:":8080" yaml:"listen_addr"`
	RateLimitRPS   float64 `env:"SPUR_RATE_LIMIT_RPS" envDefault:"10" yaml:"rate_limit_rps"`
	RateLimitBurst int     `env:"SPUR_RATE_LIMIT_BURST" envDefault:"20" yaml:"rate_limit_burst"`

	OTLPEndpoint string `env:"SPUR_OTLP_ENDPOINT" yaml:"otlp_endpoint"`
	ServiceName  string `env:"SPUR_SERVICE_NAME" envDefault:"spur" yaml:"service_name"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Defaults returns the configuration with only built-in defaults applied.
func Defaults() *Config {
	cfg := &Config{}
	// An empty environment leaves only envDefault values; it cannot fail.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("SPUR_CONFIG"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}

	// Defaults were applied above; this pass only copies variables that are
	// actually set so file values survive.
	if err := env.ParseWithOptions(cfg, env.Options{DefaultValueTagName: "envOverrideDefault"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeFile overlays the keys present in the YAML file at path.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log format %q must be text or json", c.LogFormat))
	}
	switch c.ArtifactStore {
	case "fs", "s3", "gcs":
	default:
		errs = append(errs, fmt.Errorf("config: artifact store %q must be fs, s3 or gcs", c.ArtifactStore))
	}
	if c.ArtifactStore == "s3" && c.S3Bucket == "" {
		errs = append(errs, errors.New("config: SPUR_S3_BUCKET is required for the s3 artifact store"))
	}
	if c.ArtifactStore == "gcs" && c.GCSBucket == "" {
		errs = append(errs, errors.New("config: SPUR_GCS_BUCKET is required for the gcs artifact store"))
	}
	if c.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("config: rate limit rps must be positive, got %v", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("config: rate limit burst must be at least 1, got %d", c.RateLimitBurst))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Logger returns a structured logger writing to w in the configured format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

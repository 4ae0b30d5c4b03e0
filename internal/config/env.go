// Package config loads process settings from the environment and compiles
// experiment definition files into domain configurations.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"labbench/internal/blob"
	"labbench/internal/core"
)

// EnvPrefix namespaces every variable read by AppConfig.
const EnvPrefix = "LABBENCH_"

// AppConfig is the process configuration shared by the CLI commands.
type AppConfig struct {
	Storage core.StorageConfig
	Blob    blob.Config

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	HistoryLimit int    `env:"HISTORY_LIMIT"`
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":8080"`
	// TraceStdout exports engine spans to stdout through OpenTelemetry.
	TraceStdout bool `env:"TRACE_STDOUT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	return parse(target, env.Options{})
}

// LoadAppConfig reads AppConfig from LABBENCH_* variables and validates it.
func LoadAppConfig() (AppConfig, error) {
	var cfg AppConfig
	if err := parse(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func parse(target any, opts env.Options) error {
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects values the commands cannot act on.
func (c AppConfig) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.LogFormat)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit must be non-negative, got %d", c.HistoryLimit)
	}
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres, "":
	default:
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}
	if c.Storage.Driver == core.StoragePostgres && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("postgres storage requires %sPOSTGRES_DSN", EnvPrefix)
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3, "":
	default:
		return fmt.Errorf("invalid blob driver: %s", c.Blob.Driver)
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("s3 blob driver requires %sBLOB_S3_BUCKET", EnvPrefix)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	readings "metering-dist/internal/readings/domain"
)

const (
	RegistrySourceUpload   = "upload"
	RegistrySourcePostgres = "postgres"

	// EnvConfigPath names the optional yaml config file.
	EnvConfigPath = "METERING_DIST_CONFIG"
)

// tableNamePattern accepts a plain or schema-qualified SQL identifier.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ExportConfig controls workbook presentation.
type ExportConfig struct {
	Formatting        bool   `yaml:"formatting"`
	FixedColumnPixels int    `yaml:"fixed_column_pixels"`
	Selection         string `yaml:"selection"`
}

// NotifyConfig configures the run webhook.
type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Config defines service configuration.
type Config struct {
	HTTPAddr       string       `yaml:"http_addr"`
	DatabaseURL    string       `yaml:"database_url"`
	RegistrySource string       `yaml:"registry_source"`
	RegistryTable  string       `yaml:"registry_table"`
	DefaultFormat  string       `yaml:"default_format"`
	MaxUploadMB    int          `yaml:"max_upload_mb"`
	Export         ExportConfig `yaml:"export"`
	Notify         NotifyConfig `yaml:"notify"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		RegistrySource: RegistrySourceUpload,
		RegistryTable:  "metering_points",
		DefaultFormat:  string(readings.FormatMQ),
		MaxUploadMB:    32,
		Export: ExportConfig{
			Formatting:        true,
			FixedColumnPixels: 130,
			Selection:         "C4",
		},
		Notify: NotifyConfig{Timeout: 10 * time.Second},
	}
}

// Load builds the configuration from defaults, the yaml file named by
// METERING_DIST_CONFIG and environment variables, in that order.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.RegistrySource = strings.ToLower(getenvDefault("REGISTRY_SOURCE", cfg.RegistrySource))
	cfg.RegistryTable = getenvDefault("REGISTRY_TABLE", cfg.RegistryTable)
	cfg.DefaultFormat = getenvDefault("DEFAULT_FORMAT", cfg.DefaultFormat)
	cfg.MaxUploadMB = getenvIntDefault("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.Export.Formatting = getenvBoolDefault("EXPORT_FORMATTING", cfg.Export.Formatting)
	cfg.Notify.WebhookURL = getenvDefault("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.Timeout = getenvDuration("NOTIFY_TIMEOUT", cfg.Notify.Timeout)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.RegistrySource {
	case RegistrySourceUpload:
	case RegistrySourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: postgres registry requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown registry source %q", c.RegistrySource)
	}
	if _, err := readings.ParseFormat(c.DefaultFormat); err != nil {
		return fmt.Errorf("config: default format: %w", err)
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("config: max upload must be positive")
	}
	if !tableNamePattern.MatchString(c.RegistryTable) {
		return fmt.Errorf("config: invalid registry table %q", c.RegistryTable)
	}
	return nil
}

// MaxUploadBytes returns the multipart size limit.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is shared by the dashboard, the CLI and the webhook stand-in.
type Config struct {
	// Dashboard
	Port               string        `yaml:"port"`
	SubmitWebhookURL   string        `yaml:"submit_webhook_url"`
	HistoryWebhookURL  string        `yaml:"history_webhook_url"`
	WebhookTimeout     time.Duration `yaml:"webhook_timeout"`
	FormResetDelay     time.Duration `yaml:"form_reset_delay"`
	DisplayTimezone    string        `yaml:"display_timezone"`
	LogLevel           string        `yaml:"log_level"`
	ChartCacheSize     int           `yaml:"chart_cache_size"`
	ChartCacheTTL      time.Duration `yaml:"chart_cache_ttl"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`

	// AMQP refresh fan-out, disabled when the URL is empty
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`

	// Webhook stand-in
	StubPort     string `yaml:"stub_port"`
	StubBackend  string `yaml:"stub_backend"`
	StubShape    string `yaml:"stub_shape"`
	SQLiteDBPath string `yaml:"sqlite_db_path"`
	DataDir      string `yaml:"data_dir"`

	GoogleSpreadsheetID      string `yaml:"google_spreadsheet_id"`
	GoogleSheetName          string `yaml:"google_sheet_name"`
	GoogleServiceAccountFile string `yaml:"google_service_account_file"`
	GoogleServiceAccountJSON string `yaml:"-"`
}

// FileEnv names the optional YAML file applied before the environment.
const FileEnv = "FUELTRACK_CONFIG"

var (
	validBackends = []string{"memory", "sqlite", "sheets"}
	validShapes   = []string{"flat", "wrapped", "bundle", "records", "fields", "started"}
)

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:               "8081",
		WebhookTimeout:     15 * time.Second,
		FormResetDelay:     3 * time.Second,
		DisplayTimezone:    "Europe/Paris",
		LogLevel:           "info",
		ChartCacheSize:     64,
		ChartCacheTTL:      10 * time.Minute,
		RateLimitPerMinute: 60,
		AMQPExchange:       "fueltrack.refresh",
		StubPort:           "8090",
		StubBackend:        "memory",
		StubShape:          "flat",
		DataDir:            "./data",
		SQLiteDBPath:       "./data/fueltrack.db",
		GoogleSheetName:    "Pleins",
	}
}

// Load builds the configuration from defaults, the YAML file named by
// FUELTRACK_CONFIG (if any) and then the environment.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.SubmitWebhookURL = getEnv("SUBMIT_WEBHOOK_URL", c.SubmitWebhookURL)
	c.HistoryWebhookURL = getEnv("HISTORY_WEBHOOK_URL", c.HistoryWebhookURL)
	c.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", c.WebhookTimeout)
	c.FormResetDelay = getEnvDuration("FORM_RESET_DELAY", c.FormResetDelay)
	c.DisplayTimezone = getEnv("DISPLAY_TIMEZONE", c.DisplayTimezone)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.ChartCacheSize = getEnvInt("CHART_CACHE_SIZE", c.ChartCacheSize)
	c.ChartCacheTTL = getEnvDuration("CHART_CACHE_TTL", c.ChartCacheTTL)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)

	c.StubPort = getEnv("STUB_PORT", c.StubPort)
	c.StubBackend = getEnv("STUB_BACKEND", c.StubBackend)
	c.StubShape = getEnv("STUB_SHAPE", c.StubShape)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", c.GoogleSheetName)
	c.GoogleServiceAccountFile = getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.GoogleServiceAccountJSON = getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", c.GoogleServiceAccountJSON)
}

// Location resolves DisplayTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks the settings used by the dashboard and the CLI.
func (c *Config) Validate() error {
	var errors []string

	errors = append(errors, validatePort("port", c.Port)...)

	for _, u := range []struct{ name, value string }{
		{"SUBMIT_WEBHOOK_URL", c.SubmitWebhookURL},
		{"HISTORY_WEBHOOK_URL", c.HistoryWebhookURL},
	} {
		if u.value == "" {
			errors = append(errors, fmt.Sprintf("%s is required", u.name))
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': must be an absolute http(s) URL", u.name, u.value))
		}
	}

	if c.WebhookTimeout < time.Second || c.WebhookTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid webhook timeout %v: must be between 1s and 5m", c.WebhookTimeout))
	}
	if c.FormResetDelay <= 0 {
		errors = append(errors, fmt.Sprintf("invalid form reset delay %v: must be positive", c.FormResetDelay))
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid display timezone '%s': %v", c.DisplayTimezone, err))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if c.ChartCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid chart cache size %d: must be at least 1", c.ChartCacheSize))
	}
	if c.ChartCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid chart cache TTL %v: must be at least 1 second", c.ChartCacheTTL))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	return combine(errors)
}

// ValidateStub checks the settings used by the webhook stand-in.
func (c *Config) ValidateStub() error {
	var errors []string

	errors = append(errors, validatePort("stub port", c.StubPort)...)
	if !contains(validBackends, c.StubBackend) {
		errors = append(errors, fmt.Sprintf("invalid stub backend '%s': must be one of %v", c.StubBackend, validBackends))
	}
	if !contains(validShapes, c.StubShape) {
		errors = append(errors, fmt.Sprintf("invalid stub shape '%s': must be one of %v", c.StubShape, validShapes))
	}

	switch c.StubBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			errors = append(errors, "service account credentials are required for sheets backend (GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_APPLICATION_CREDENTIALS)")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	return combine(errors)
}

func validatePort(name, value string) []string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': must be a number", name, value)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)}
	}
	return nil
}

func combine(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

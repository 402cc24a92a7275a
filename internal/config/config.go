// Package config handles configuration loading from environment variables and optional YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Unified   UnifiedConfig
	Google    GoogleConfig
	ICS       ICSConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Display   DisplayConfig
	Expansion ExpansionConfig
	Sync      SyncConfig

	Notifications NotificationsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit is requests per minute per client on /api/*; zero disables it.
	RateLimit      int
	RateLimitBurst int

	// CORSOrigins may call the API from a browser; "*" allows any origin.
	CORSOrigins []string
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path          string
	WALMode       bool
	BusyTimeoutMs int
}

// UnifiedConfig holds settings for the unified calendar API provider.
type UnifiedConfig struct {
	BaseURL           string
	APIKey            string
	AppID             string
	Timeout           time.Duration
	PageSize          int
	ExpandRecurrences bool
}

// Enabled reports whether the unified provider has credentials.
func (c UnifiedConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIKey != ""
}

// GoogleConfig holds Google OAuth settings for directly connected accounts.
type GoogleConfig struct {
	ClientID          string
	ClientSecret      string
	RedirectURI       string
	Scopes            []string
	ExpandRecurrences bool
}

// Enabled reports whether direct Google accounts can be connected.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// ICSConfig holds settings for ICS feed subscriptions.
type ICSConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// AuthConfig holds authentication and secret material.
type AuthConfig struct {
	// APIToken protects /api/*. Empty disables API authentication.
	APIToken      string
	SecretKey     string
	EncryptionKey string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level         string
	Format        string
	IncludeCaller bool
}

// DisplayConfig holds presentation settings.
type DisplayConfig struct {
	// Timezone is used for events that carry no timezone of their own.
	Timezone string
}

// ExpansionConfig bounds recurrence expansion.
type ExpansionConfig struct {
	MaxOccurrencesPerEvent int
	MaxWindow              time.Duration
}

// SyncConfig holds background account sync settings.
type SyncConfig struct {
	Enabled        bool
	Schedule       string
	VacuumInterval time.Duration
	// AuditRetentionDays is how long audit entries are kept; zero keeps them forever.
	AuditRetentionDays int
}

// NotificationsConfig holds alert delivery settings.
type NotificationsConfig struct {
	Ntfy    NtfyConfig
	Webhook WebhookConfig
}

// NtfyConfig holds ntfy push settings.
type NtfyConfig struct {
	Enabled bool
	Server  string
	Topic   string
	Token   string
}

// WebhookConfig holds generic webhook settings. Secret signs the body.
type WebhookConfig struct {
	Enabled bool
	URL     string
	Secret  string
	Timeout time.Duration
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	dataDir := DefaultDataDir
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			BaseURL:      DefaultBaseURL,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,

			RateLimit:      DefaultRateLimit,
			RateLimitBurst: DefaultRateLimitBurst,
		},
		Database: DatabaseConfig{
			Path:          filepath.Join(dataDir, DefaultDatabaseName),
			WALMode:       true,
			BusyTimeoutMs: DefaultBusyTimeoutMs,
		},
		Unified: UnifiedConfig{
			BaseURL:           DefaultUnifiedBaseURL,
			Timeout:           DefaultUnifiedTimeout,
			PageSize:          DefaultUnifiedPage,
			ExpandRecurrences: true,
		},
		Google: GoogleConfig{
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar",
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		ICS: ICSConfig{
			Timeout:   DefaultICSTimeout,
			UserAgent: DefaultICSUserAgent,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Display: DisplayConfig{
			Timezone: DefaultTimezone,
		},
		Expansion: ExpansionConfig{
			MaxOccurrencesPerEvent: DefaultMaxOccurrencesPerEvent,
			MaxWindow:              DefaultMaxWindow,
		},
		Sync: SyncConfig{
			Enabled:        true,
			Schedule:       DefaultSyncSchedule,
			VacuumInterval: DefaultVacuumInterval,

			AuditRetentionDays: DefaultAuditRetentionDays,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file, then
// environment variables, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if dataDir, ok := lookupEnvAny("CALMERGE_DATA_DIR", "DATA_DIR"); ok {
		cfg.Database.Path = filepath.Join(dataDir, DefaultDatabaseName)
	}

	if err := loadConfigFile(cfg, GetConfigFilePath()); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	applyEnv(cfg)

	if cfg.Google.RedirectURI == "" {
		cfg.Google.RedirectURI = strings.TrimRight(cfg.Server.BaseURL, "/") + "/oauth/google/callback"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnvAny(cfg.Server.Host, "CALMERGE_HOST", "HOST")
	cfg.Server.Port = getEnvInt(cfg.Server.Port, "CALMERGE_SERVER_PORT", "PORT")
	cfg.Server.BaseURL = getEnvAny(cfg.Server.BaseURL, "CALMERGE_BASE_URL", "BASE_URL")
	cfg.Server.ReadTimeout = getEnvDuration(cfg.Server.ReadTimeout, "CALMERGE_READ_TIMEOUT")
	cfg.Server.WriteTimeout = getEnvDuration(cfg.Server.WriteTimeout, "CALMERGE_WRITE_TIMEOUT")
	cfg.Server.RateLimit = getEnvInt(cfg.Server.RateLimit, "CALMERGE_RATE_LIMIT")
	cfg.Server.RateLimitBurst = getEnvInt(cfg.Server.RateLimitBurst, "CALMERGE_RATE_LIMIT_BURST")

	cfg.Database.Path = getEnvAny(cfg.Database.Path, "CALMERGE_DATABASE_PATH")

	cfg.Unified.BaseURL = getEnvAny(cfg.Unified.BaseURL, "CALMERGE_UNIFIED_URL", "ONECAL_UNIFIED_URL")
	cfg.Unified.APIKey = getEnvAny(cfg.Unified.APIKey, "CALMERGE_UNIFIED_API_KEY", "ONECAL_UNIFIED_API_KEY")
	cfg.Unified.AppID = getEnvAny(cfg.Unified.AppID, "CALMERGE_UNIFIED_APP_ID", "ONECAL_UNIFIED_APP_ID")
	cfg.Unified.Timeout = getEnvDuration(cfg.Unified.Timeout, "CALMERGE_UNIFIED_TIMEOUT")
	cfg.Unified.ExpandRecurrences = getEnvBool(cfg.Unified.ExpandRecurrences, "CALMERGE_UNIFIED_EXPAND_RECURRENCES")

	cfg.Google.ClientID = getEnvAny(cfg.Google.ClientID, "CALMERGE_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	cfg.Google.ClientSecret = getEnvAny(cfg.Google.ClientSecret, "CALMERGE_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET")
	cfg.Google.RedirectURI = getEnvAny(cfg.Google.RedirectURI, "CALMERGE_GOOGLE_REDIRECT_URI")
	cfg.Google.ExpandRecurrences = getEnvBool(cfg.Google.ExpandRecurrences, "CALMERGE_GOOGLE_EXPAND_RECURRENCES")

	cfg.Auth.APIToken = getEnvAny(cfg.Auth.APIToken, "CALMERGE_API_TOKEN")
	cfg.Auth.SecretKey = getEnvAny(cfg.Auth.SecretKey, "CALMERGE_SECRET_KEY", "SECRET_KEY")
	cfg.Auth.EncryptionKey = getEnvAny(cfg.Auth.EncryptionKey, "CALMERGE_ENCRYPTION_KEY", "ENCRYPTION_KEY")

	cfg.Logging.Level = getEnvAny(cfg.Logging.Level, "CALMERGE_LOG_LEVEL", "LOG_LEVEL")
	cfg.Logging.Format = getEnvAny(cfg.Logging.Format, "CALMERGE_LOG_FORMAT", "LOG_FORMAT")
	cfg.Logging.IncludeCaller = getEnvBool(cfg.Logging.IncludeCaller, "CALMERGE_LOG_INCLUDE_CALLER")

	cfg.Display.Timezone = getEnvAny(cfg.Display.Timezone, "CALMERGE_DISPLAY_TIMEZONE", "DISPLAY_TIMEZONE")

	cfg.Expansion.MaxOccurrencesPerEvent = getEnvInt(cfg.Expansion.MaxOccurrencesPerEvent, "CALMERGE_MAX_OCCURRENCES")

	cfg.Notifications.Ntfy.Enabled = getEnvBool(cfg.Notifications.Ntfy.Enabled, "CALMERGE_NTFY_ENABLED")
	cfg.Notifications.Ntfy.Server = getEnvAny(cfg.Notifications.Ntfy.Server, "CALMERGE_NTFY_SERVER")
	cfg.Notifications.Ntfy.Topic = getEnvAny(cfg.Notifications.Ntfy.Topic, "CALMERGE_NTFY_TOPIC")
	cfg.Notifications.Ntfy.Token = getEnvAny(cfg.Notifications.Ntfy.Token, "CALMERGE_NTFY_TOKEN")
	cfg.Notifications.Webhook.Enabled = getEnvBool(cfg.Notifications.Webhook.Enabled, "CALMERGE_WEBHOOK_ENABLED")
	cfg.Notifications.Webhook.URL = getEnvAny(cfg.Notifications.Webhook.URL, "CALMERGE_WEBHOOK_URL")
	cfg.Notifications.Webhook.Secret = getEnvAny(cfg.Notifications.Webhook.Secret, "CALMERGE_WEBHOOK_SECRET")

	if origins, ok := lookupEnvAny("CALMERGE_CORS_ORIGINS"); ok {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	cfg.Sync.Enabled = getEnvBool(cfg.Sync.Enabled, "CALMERGE_SYNC_ENABLED")
	cfg.Sync.Schedule = getEnvAny(cfg.Sync.Schedule, "CALMERGE_SYNC_SCHEDULE")
	cfg.Sync.AuditRetentionDays = getEnvInt(cfg.Sync.AuditRetentionDays, "CALMERGE_AUDIT_RETENTION_DAYS")
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Notifications.Ntfy.Enabled && c.Notifications.Ntfy.Topic == "" {
		return fmt.Errorf("ntfy topic is required when ntfy is enabled")
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("webhook URL is required when webhook notifications are enabled")
	}
	if c.Sync.AuditRetentionDays < 0 {
		return fmt.Errorf("audit retention days cannot be negative")
	}
	if c.Server.RateLimit < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if _, err := time.LoadLocation(c.Display.Timezone); err != nil {
		return fmt.Errorf("invalid display timezone %q: %w", c.Display.Timezone, err)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q (expected json or text)", c.Logging.Format)
	}
	if c.Expansion.MaxOccurrencesPerEvent <= 0 {
		return fmt.Errorf("expansion max occurrences must be positive")
	}
	if c.Google.Enabled() && c.Auth.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required when Google accounts are enabled")
	}
	if c.Unified.APIKey != "" && c.Unified.BaseURL == "" {
		return fmt.Errorf("unified API base URL is required when an API key is set")
	}
	if c.Sync.Enabled && strings.TrimSpace(c.Sync.Schedule) == "" {
		return fmt.Errorf("sync schedule is required when sync is enabled")
	}
	return nil
}

// GetConfigFilePath returns the path to the config file based on environment variables.
func GetConfigFilePath() string {
	dataDir := getEnvAny(DefaultDataDir, "CALMERGE_DATA_DIR", "DATA_DIR")
	return getEnvAny(filepath.Join(dataDir, "config.yaml"), "CALMERGE_CONFIG_FILE", "CONFIG_FILE")
}

func lookupEnvAny(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			return value, true
		}
	}
	return "", false
}

func getEnvAny(defaultValue string, keys ...string) string {
	if value, ok := lookupEnvAny(keys...); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(defaultValue int, keys ...string) int {
	if value, ok := lookupEnvAny(keys...); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(defaultValue bool, keys ...string) bool {
	if value, ok := lookupEnvAny(keys...); ok {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(defaultValue time.Duration, keys ...string) time.Duration {
	if value, ok := lookupEnvAny(keys...); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

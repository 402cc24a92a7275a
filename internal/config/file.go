package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// fileDuration accepts either an integer number of seconds or a Go duration string.
type fileDuration time.Duration

func (d *fileDuration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid duration type")
	}
	if value.Tag == "!!int" {
		var seconds int64
		if err := value.Decode(&seconds); err != nil {
			return err
		}
		*d = fileDuration(time.Duration(seconds) * time.Second)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = fileDuration(parsed)
	return nil
}

type ConfigFile struct {
	Server    *ServerConfigFile    `yaml:"server"`
	Database  *DatabaseConfigFile  `yaml:"database"`
	Unified   *UnifiedConfigFile   `yaml:"unified"`
	Google    *GoogleConfigFile    `yaml:"google"`
	ICS       *ICSConfigFile       `yaml:"ics"`
	Auth      *AuthConfigFile      `yaml:"auth"`
	Logging   *LoggingConfigFile   `yaml:"logging"`
	Display   *DisplayConfigFile   `yaml:"display"`
	Expansion *ExpansionConfigFile `yaml:"expansion"`
	Sync      *SyncConfigFile      `yaml:"sync"`

	Notifications *NotificationsConfigFile `yaml:"notifications"`
}

type ServerConfigFile struct {
	Host         *string       `yaml:"host"`
	Port         *int          `yaml:"port"`
	BaseURL      *string       `yaml:"base_url"`
	ReadTimeout  *fileDuration `yaml:"read_timeout"`
	WriteTimeout *fileDuration `yaml:"write_timeout"`

	RateLimit      *int `yaml:"rate_limit"`
	RateLimitBurst *int `yaml:"rate_limit_burst"`

	CORSOrigins *[]string `yaml:"cors_origins"`
}

type DatabaseConfigFile struct {
	Path          *string `yaml:"path"`
	WALMode       *bool   `yaml:"wal_mode"`
	BusyTimeoutMs *int    `yaml:"busy_timeout_ms"`
}

type UnifiedConfigFile struct {
	BaseURL           *string       `yaml:"base_url"`
	APIKey            *string       `yaml:"api_key"`
	AppID             *string       `yaml:"app_id"`
	Timeout           *fileDuration `yaml:"timeout"`
	PageSize          *int          `yaml:"page_size"`
	ExpandRecurrences *bool         `yaml:"expand_recurrences"`
}

type GoogleConfigFile struct {
	ClientID          *string   `yaml:"client_id"`
	ClientSecret      *string   `yaml:"client_secret"`
	RedirectURI       *string   `yaml:"redirect_uri"`
	Scopes            *[]string `yaml:"scopes"`
	ExpandRecurrences *bool     `yaml:"expand_recurrences"`
}

type ICSConfigFile struct {
	Timeout   *fileDuration `yaml:"timeout"`
	UserAgent *string       `yaml:"user_agent"`
}

type AuthConfigFile struct {
	APIToken      *string `yaml:"api_token"`
	SecretKey     *string `yaml:"secret_key"`
	EncryptionKey *string `yaml:"encryption_key"`
}

type LoggingConfigFile struct {
	Level         *string `yaml:"level"`
	Format        *string `yaml:"format"`
	IncludeCaller *bool   `yaml:"include_caller"`
}

type DisplayConfigFile struct {
	Timezone *string `yaml:"timezone"`
}

type ExpansionConfigFile struct {
	MaxOccurrencesPerEvent *int          `yaml:"max_occurrences_per_event"`
	MaxWindow              *fileDuration `yaml:"max_window"`
}

type SyncConfigFile struct {
	Enabled        *bool         `yaml:"enabled"`
	Schedule       *string       `yaml:"schedule"`
	VacuumInterval *fileDuration `yaml:"vacuum_interval"`
	AuditRetention *int          `yaml:"audit_retention_days"`
}

type NotificationsConfigFile struct {
	Ntfy    *NtfyConfigFile    `yaml:"ntfy"`
	Webhook *WebhookConfigFile `yaml:"webhook"`
}

type NtfyConfigFile struct {
	Enabled *bool   `yaml:"enabled"`
	Server  *string `yaml:"server"`
	Topic   *string `yaml:"topic"`
	Token   *string `yaml:"token"`
}

type WebhookConfigFile struct {
	Enabled *bool         `yaml:"enabled"`
	URL     *string       `yaml:"url"`
	Secret  *string       `yaml:"secret"`
	Timeout *fileDuration `yaml:"timeout"`
}

func loadConfigFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	applyConfigFile(cfg, &file)
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *fileDuration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}

func applyConfigFile(cfg *Config, file *ConfigFile) {
	if cfg == nil || file == nil {
		return
	}

	if s := file.Server; s != nil {
		setString(&cfg.Server.Host, s.Host)
		setInt(&cfg.Server.Port, s.Port)
		setString(&cfg.Server.BaseURL, s.BaseURL)
		setDuration(&cfg.Server.ReadTimeout, s.ReadTimeout)
		setDuration(&cfg.Server.WriteTimeout, s.WriteTimeout)
		setInt(&cfg.Server.RateLimit, s.RateLimit)
		setInt(&cfg.Server.RateLimitBurst, s.RateLimitBurst)
		if s.CORSOrigins != nil {
			cfg.Server.CORSOrigins = *s.CORSOrigins
		}
	}

	if d := file.Database; d != nil {
		if d.Path != nil {
			cfg.Database.Path = filepath.Clean(*d.Path)
		}
		setBool(&cfg.Database.WALMode, d.WALMode)
		setInt(&cfg.Database.BusyTimeoutMs, d.BusyTimeoutMs)
	}

	if u := file.Unified; u != nil {
		setString(&cfg.Unified.BaseURL, u.BaseURL)
		setString(&cfg.Unified.APIKey, u.APIKey)
		setString(&cfg.Unified.AppID, u.AppID)
		setDuration(&cfg.Unified.Timeout, u.Timeout)
		setInt(&cfg.Unified.PageSize, u.PageSize)
		setBool(&cfg.Unified.ExpandRecurrences, u.ExpandRecurrences)
	}

	if g := file.Google; g != nil {
		setString(&cfg.Google.ClientID, g.ClientID)
		setString(&cfg.Google.ClientSecret, g.ClientSecret)
		setString(&cfg.Google.RedirectURI, g.RedirectURI)
		if g.Scopes != nil {
			cfg.Google.Scopes = *g.Scopes
		}
		setBool(&cfg.Google.ExpandRecurrences, g.ExpandRecurrences)
	}

	if i := file.ICS; i != nil {
		setDuration(&cfg.ICS.Timeout, i.Timeout)
		setString(&cfg.ICS.UserAgent, i.UserAgent)
	}

	if a := file.Auth; a != nil {
		setString(&cfg.Auth.APIToken, a.APIToken)
		setString(&cfg.Auth.SecretKey, a.SecretKey)
		setString(&cfg.Auth.EncryptionKey, a.EncryptionKey)
	}

	if l := file.Logging; l != nil {
		setString(&cfg.Logging.Level, l.Level)
		setString(&cfg.Logging.Format, l.Format)
		setBool(&cfg.Logging.IncludeCaller, l.IncludeCaller)
	}

	if d := file.Display; d != nil {
		setString(&cfg.Display.Timezone, d.Timezone)
	}

	if e := file.Expansion; e != nil {
		setInt(&cfg.Expansion.MaxOccurrencesPerEvent, e.MaxOccurrencesPerEvent)
		setDuration(&cfg.Expansion.MaxWindow, e.MaxWindow)
	}

	if s := file.Sync; s != nil {
		setBool(&cfg.Sync.Enabled, s.Enabled)
		setString(&cfg.Sync.Schedule, s.Schedule)
		setDuration(&cfg.Sync.VacuumInterval, s.VacuumInterval)
		setInt(&cfg.Sync.AuditRetentionDays, s.AuditRetention)
	}

	if n := file.Notifications; n != nil {
		if f := n.Ntfy; f != nil {
			setBool(&cfg.Notifications.Ntfy.Enabled, f.Enabled)
			setString(&cfg.Notifications.Ntfy.Server, f.Server)
			setString(&cfg.Notifications.Ntfy.Topic, f.Topic)
			setString(&cfg.Notifications.Ntfy.Token, f.Token)
		}
		if f := n.Webhook; f != nil {
			setBool(&cfg.Notifications.Webhook.Enabled, f.Enabled)
			setString(&cfg.Notifications.Webhook.URL, f.URL)
			setString(&cfg.Notifications.Webhook.Secret, f.Secret)
			setDuration(&cfg.Notifications.Webhook.Timeout, f.Timeout)
		}
	}
}

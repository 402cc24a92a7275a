// Package settings stores runtime settings and worker bookkeeping in the
// settings table.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/recurrence"
	"github.com/dtorcivia/calmerge/internal/util"
)

const runtimeSettingsKey = "runtime_settings"

// Keys for worker bookkeeping.
const (
	KeyLastAccountSync = "last_account_sync"
	KeyLastVacuum      = "last_vacuum"
)

// Store manages key/value settings stored in the database.
type Store struct {
	db *database.DB
}

// NewStore creates a new settings store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// RuntimeSettings are settings the API can change without a restart.
type RuntimeSettings struct {
	Logging   *LoggingSettings   `json:"logging,omitempty"`
	Display   *DisplaySettings   `json:"display,omitempty"`
	Expansion *ExpansionSettings `json:"expansion,omitempty"`
}

type LoggingSettings struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type DisplaySettings struct {
	Timezone string `json:"timezone"`
}

type ExpansionSettings struct {
	MaxOccurrencesPerEvent int `json:"max_occurrences_per_event"`
}

// Get returns the raw value for key; ok is false when the key is unset.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a raw value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = datetime('now')
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting an unset key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// GetTime returns a timestamp stored with SetTime; the zero time when unset.
func (s *Store) GetTime(ctx context.Context, key string) (time.Time, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp in setting %s: %w", key, err)
	}
	return t, nil
}

// SetTime stores t in UTC.
func (s *Store) SetTime(ctx context.Context, key string, t time.Time) error {
	return s.Set(ctx, key, t.UTC().Format(time.RFC3339Nano))
}

// Load retrieves runtime settings from the database.
func (s *Store) Load(ctx context.Context) (*RuntimeSettings, error) {
	raw, ok, err := s.Get(ctx, runtimeSettingsKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return &RuntimeSettings{}, nil
	}

	var settings RuntimeSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("invalid runtime settings: %w", err)
	}
	return &settings, nil
}

// Save validates and stores runtime settings.
func (s *Store) Save(ctx context.Context, settings *RuntimeSettings) error {
	if settings == nil {
		return nil
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to serialize settings: %w", err)
	}
	return s.Set(ctx, runtimeSettingsKey, string(data))
}

// Validate ensures runtime settings are valid.
func (s *RuntimeSettings) Validate() error {
	if s == nil {
		return nil
	}
	if s.Logging != nil {
		switch s.Logging.Level {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("invalid log level")
		}
		switch s.Logging.Format {
		case "", "json", "text":
		default:
			return fmt.Errorf("invalid log format")
		}
	}
	if s.Display != nil && s.Display.Timezone != "" {
		if _, err := time.LoadLocation(s.Display.Timezone); err != nil {
			return fmt.Errorf("invalid display timezone: %w", err)
		}
	}
	if s.Expansion != nil {
		n := s.Expansion.MaxOccurrencesPerEvent
		if n < 0 || n > recurrence.DefaultMaxOccurrences*10 {
			return fmt.Errorf("max occurrences per event must be between 1 and %d", recurrence.DefaultMaxOccurrences*10)
		}
	}
	return nil
}

// ApplyTo applies runtime settings to the provided config.
func (s *RuntimeSettings) ApplyTo(cfg *config.Config) error {
	if cfg == nil || s == nil {
		return nil
	}
	if err := s.Validate(); err != nil {
		return err
	}

	if s.Logging != nil {
		if s.Logging.Level != "" {
			cfg.Logging.Level = s.Logging.Level
		}
		if s.Logging.Format != "" {
			cfg.Logging.Format = s.Logging.Format
		}
	}
	if s.Display != nil && s.Display.Timezone != "" {
		cfg.Display.Timezone = s.Display.Timezone
	}
	if s.Expansion != nil && s.Expansion.MaxOccurrencesPerEvent > 0 {
		cfg.Expansion.MaxOccurrencesPerEvent = s.Expansion.MaxOccurrencesPerEvent
	}
	return nil
}

// DisplayLocation returns the configured display timezone, UTC when invalid.
func DisplayLocation(cfg *config.Config) *time.Location {
	return util.LoadLocation(cfg.Display.Timezone, time.UTC)
}

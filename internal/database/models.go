// Package database provides shared model structs used across the application.
package database

import (
	"database/sql"
	"time"
)

// Account backends.
const (
	BackendUnified = "unified"
	BackendGoogle  = "google"
	BackendICS     = "ics"
)

// Account providers as reported upstream.
const (
	ProviderGoogle    = "GOOGLE"
	ProviderMicrosoft = "MICROSOFT"
	ProviderICS       = "ICS"
)

// Account status constants
const (
	AccountStatusActive  = "ACTIVE"
	AccountStatusExpired = "EXPIRED"
)

// Account is a connected calendar account.
type Account struct {
	ID                    string       `db:"id" json:"id"`
	Backend               string       `db:"backend" json:"backend"`
	Provider              string       `db:"provider" json:"provider"`
	ExternalID            string       `db:"external_id" json:"externalId"`
	Email                 string       `db:"email" json:"email"`
	Status                string       `db:"status" json:"status"`
	OnboardingCompletedAt sql.NullTime `db:"onboarding_completed_at" json:"-"`
	LastSyncedAt          sql.NullTime `db:"last_synced_at" json:"-"`
	CreatedAt             time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time    `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether the account's connection is usable.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Calendar is one calendar belonging to an account.
type Calendar struct {
	ID         string    `db:"id" json:"id"`
	AccountID  string    `db:"account_id" json:"accountId"`
	ExternalID string    `db:"external_id" json:"externalId"`
	Name       string    `db:"name" json:"name"`
	Color      string    `db:"color" json:"color"`
	TimeZone   string    `db:"time_zone" json:"timeZone"`
	IsPrimary  bool      `db:"is_primary" json:"isPrimary"`
	IsHidden   bool      `db:"is_hidden" json:"isHidden"`
	ReadOnly   bool      `db:"read_only" json:"readOnly"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// Audit event types
const (
	AuditAccountConnected = "account.connected"
	AuditAccountSynced    = "account.synced"
	AuditAccountExpired   = "account.expired"
	AuditAccountDeleted   = "account.deleted"
	AuditCalendarHidden   = "calendar.visibility"
	AuditEventCreated     = "event.created"
	AuditEventUpdated     = "event.updated"
	AuditEventDeleted     = "event.deleted"
)

// AuditLogEntry is one recorded mutation.
type AuditLogEntry struct {
	ID         int64     `db:"id" json:"id"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	EventType  string    `db:"event_type" json:"eventType"`
	AccountID  string    `db:"account_id" json:"accountId,omitempty"`
	CalendarID string    `db:"calendar_id" json:"calendarId,omitempty"`
	EventID    string    `db:"event_id" json:"eventId,omitempty"`
	Actor      string    `db:"actor" json:"actor"`
	// Details is a JSON object, or empty.
	Details string `db:"details" json:"details,omitempty"`
}

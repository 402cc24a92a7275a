package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/util"
)

// AuditEntry describes one mutation to record.
type AuditEntry struct {
	EventType  string
	AccountID  string
	CalendarID string
	EventID    string
	Actor      string
	Details    map[string]interface{}
}

// AuditLogger records account and event mutations.
type AuditLogger struct {
	db *sqlx.DB
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(db *database.DB) *AuditLogger {
	return &AuditLogger{db: sqlx.NewDb(db.DB, database.DriverName)}
}

// Log records an entry. Failures are logged, never returned.
func (a *AuditLogger) Log(ctx context.Context, entry AuditEntry) {
	var details []byte
	if len(entry.Details) > 0 {
		details, _ = json.Marshal(entry.Details)
	}
	if entry.Actor == "" {
		entry.Actor = "api"
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, account_id, calendar_id, event_id, actor, details)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''))
	`, entry.EventType, entry.AccountID, entry.CalendarID, entry.EventID, entry.Actor, string(details))
	if err != nil {
		util.Error("Failed to write audit log", "error", err, "event_type", entry.EventType)
	}
}

const auditSelect = `
	SELECT id, timestamp, event_type,
		COALESCE(account_id, '') AS account_id,
		COALESCE(calendar_id, '') AS calendar_id,
		COALESCE(event_id, '') AS event_id,
		actor,
		COALESCE(details, '') AS details
	FROM audit_log`

// Recent returns the newest entries first.
func (a *AuditLogger) Recent(ctx context.Context, limit int) ([]database.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []database.AuditLogEntry
	err := a.db.SelectContext(ctx, &entries, auditSelect+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}

// ForAccount returns an account's entries, newest first.
func (a *AuditLogger) ForAccount(ctx context.Context, accountID string, limit int) ([]database.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []database.AuditLogEntry
	err := a.db.SelectContext(ctx, &entries, auditSelect+` WHERE account_id = ? ORDER BY id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan removes entries older than days.
func (a *AuditLogger) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	res, err := a.db.ExecContext(ctx, `
		DELETE FROM audit_log WHERE timestamp < datetime('now', ?)
	`, fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

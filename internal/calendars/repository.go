// Package calendars persists connected accounts and their calendars.
package calendars

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dtorcivia/calmerge/internal/database"
)

// ErrNotFound is returned when an account or calendar does not exist.
var ErrNotFound = errors.New("not found")

// VisibleCalendar pairs a calendar with its owning account.
type VisibleCalendar struct {
	Calendar database.Calendar `json:"calendar"`
	Account  database.Account  `json:"account"`
}

// CalendarView is a calendar annotated with its account for listing.
type CalendarView struct {
	database.Calendar
	AccountEmail    string `db:"account_email" json:"accountEmail"`
	AccountProvider string `db:"account_provider" json:"accountProvider"`
	AccountStatus   string `db:"account_status" json:"accountStatus"`
}

// AccountInfo identifies an account reported by a provider.
type AccountInfo struct {
	Backend    string
	Provider   string
	ExternalID string
	Email      string
}

// CalendarInfo describes a calendar reported by a provider.
type CalendarInfo struct {
	ExternalID string
	Name       string
	Color      string
	TimeZone   string
	IsPrimary  bool
	ReadOnly   bool
}

// Repository handles account and calendar persistence.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: sqlx.NewDb(db.DB, database.DriverName)}
}

const accountColumns = `id, backend, provider, external_id, email, status,
	onboarding_completed_at, last_synced_at, created_at, updated_at`

const calendarColumns = `id, account_id, external_id, name, color, time_zone,
	is_primary, is_hidden, read_only, created_at, updated_at`

// pairRow flattens a calendar/account join.
type pairRow struct {
	database.Calendar
	AccBackend            string       `db:"acc_backend"`
	AccProvider           string       `db:"acc_provider"`
	AccExternalID         string       `db:"acc_external_id"`
	AccEmail              string       `db:"acc_email"`
	AccStatus             string       `db:"acc_status"`
	AccOnboardingComplete sql.NullTime `db:"acc_onboarding_completed_at"`
	AccLastSyncedAt       sql.NullTime `db:"acc_last_synced_at"`
	AccCreatedAt          time.Time    `db:"acc_created_at"`
	AccUpdatedAt          time.Time    `db:"acc_updated_at"`
}

func (r pairRow) convert() VisibleCalendar {
	return VisibleCalendar{
		Calendar: r.Calendar,
		Account: database.Account{
			ID:                    r.AccountID,
			Backend:               r.AccBackend,
			Provider:              r.AccProvider,
			ExternalID:            r.AccExternalID,
			Email:                 r.AccEmail,
			Status:                r.AccStatus,
			OnboardingCompletedAt: r.AccOnboardingComplete,
			LastSyncedAt:          r.AccLastSyncedAt,
			CreatedAt:             r.AccCreatedAt,
			UpdatedAt:             r.AccUpdatedAt,
		},
	}
}

const pairSelect = `
	SELECT c.id, c.account_id, c.external_id, c.name, c.color, c.time_zone,
		c.is_primary, c.is_hidden, c.read_only, c.created_at, c.updated_at,
		a.backend AS acc_backend, a.provider AS acc_provider,
		a.external_id AS acc_external_id, a.email AS acc_email, a.status AS acc_status,
		a.onboarding_completed_at AS acc_onboarding_completed_at,
		a.last_synced_at AS acc_last_synced_at,
		a.created_at AS acc_created_at, a.updated_at AS acc_updated_at
	FROM calendars c
	INNER JOIN accounts a ON a.id = c.account_id`

// ListVisible returns every calendar that is not hidden and whose account is active.
func (r *Repository) ListVisible(ctx context.Context) ([]VisibleCalendar, error) {
	var rows []pairRow
	err := r.db.SelectContext(ctx, &rows, pairSelect+`
		WHERE c.is_hidden = 0 AND a.status = ?
		ORDER BY a.email, c.is_primary DESC, c.name`, database.AccountStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible calendars: %w", err)
	}

	out := make([]VisibleCalendar, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.convert())
	}
	return out, nil
}

// GetCalendar returns a calendar with its account regardless of visibility.
func (r *Repository) GetCalendar(ctx context.Context, id string) (*VisibleCalendar, error) {
	var row pairRow
	err := r.db.GetContext(ctx, &row, pairSelect+` WHERE c.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar: %w", err)
	}
	vc := row.convert()
	return &vc, nil
}

// ListCalendars returns all calendars with their account's email, provider and status.
func (r *Repository) ListCalendars(ctx context.Context) ([]CalendarView, error) {
	out := []CalendarView{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT c.id, c.account_id, c.external_id, c.name, c.color, c.time_zone,
			c.is_primary, c.is_hidden, c.read_only, c.created_at, c.updated_at,
			a.email AS account_email, a.provider AS account_provider, a.status AS account_status
		FROM calendars c
		INNER JOIN accounts a ON a.id = c.account_id
		ORDER BY a.email, c.is_primary DESC, c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return out, nil
}

// ListAccountCalendars returns the calendars belonging to one account.
func (r *Repository) ListAccountCalendars(ctx context.Context, accountID string) ([]database.Calendar, error) {
	out := []database.Calendar{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+calendarColumns+` FROM calendars WHERE account_id = ? ORDER BY is_primary DESC, name`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account calendars: %w", err)
	}
	return out, nil
}

// SetHidden toggles whether a calendar contributes to merged queries.
func (r *Repository) SetHidden(ctx context.Context, id string, hidden bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE calendars SET is_hidden = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, hidden, id)
	if err != nil {
		return fmt.Errorf("failed to update calendar: %w", err)
	}
	return requireRow(res)
}

// ListAccounts returns every connected account.
func (r *Repository) ListAccounts(ctx context.Context) ([]database.Account, error) {
	out := []database.Account{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+accountColumns+` FROM accounts ORDER BY email, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return out, nil
}

// GetAccount returns one account.
func (r *Repository) GetAccount(ctx context.Context, id string) (*database.Account, error) {
	var acc database.Account
	err := r.db.GetContext(ctx, &acc, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

// UpsertAccount creates the account or refreshes an existing one with the same
// backend and external id. Reconnecting reactivates an expired account.
func (r *Repository) UpsertAccount(ctx context.Context, info AccountInfo) (*database.Account, error) {
	if info.Backend == "" || info.ExternalID == "" {
		return nil, fmt.Errorf("account backend and external id are required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, backend, provider, external_id, email, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(backend, external_id) DO UPDATE SET
			provider = excluded.provider,
			email = excluded.email,
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP
	`, uuid.NewString(), info.Backend, info.Provider, info.ExternalID, info.Email, database.AccountStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}

	var acc database.Account
	err = r.db.GetContext(ctx, &acc, `SELECT `+accountColumns+` FROM accounts WHERE backend = ? AND external_id = ?`,
		info.Backend, info.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload account: %w", err)
	}
	return &acc, nil
}

// SyncCalendars makes the stored calendars of an account match cals: new ones
// are inserted, known ones updated with visibility preserved, and calendars no
// longer reported are deleted.
func (r *Repository) SyncCalendars(ctx context.Context, accountID string, cals []CalendarInfo) ([]database.Calendar, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	keep := make([]string, 0, len(cals))
	for _, c := range cals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calendars (id, account_id, external_id, name, color, time_zone, is_primary, read_only)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id, external_id) DO UPDATE SET
				name = excluded.name,
				color = excluded.color,
				time_zone = excluded.time_zone,
				is_primary = excluded.is_primary,
				read_only = excluded.read_only,
				updated_at = CURRENT_TIMESTAMP
		`, uuid.NewString(), accountID, c.ExternalID, c.Name, c.Color, c.TimeZone, c.IsPrimary, c.ReadOnly)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert calendar %s: %w", c.ExternalID, err)
		}
		keep = append(keep, c.ExternalID)
	}

	if len(keep) == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM calendars WHERE account_id = ?`, accountID)
	} else {
		var query string
		var args []interface{}
		query, args, err = sqlx.In(`DELETE FROM calendars WHERE account_id = ? AND external_id NOT IN (?)`, accountID, keep)
		if err == nil {
			_, err = tx.ExecContext(ctx, tx.Rebind(query), args...)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prune calendars: %w", err)
	}

	out := []database.Calendar{}
	err = tx.SelectContext(ctx, &out,
		`SELECT `+calendarColumns+` FROM calendars WHERE account_id = ? ORDER BY is_primary DESC, name`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload calendars: %w", err)
	}
	return out, tx.Commit()
}

// MarkAccountExpired flags an account whose upstream credentials were rejected.
func (r *Repository) MarkAccountExpired(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, database.AccountStatusExpired, id)
	if err != nil {
		return fmt.Errorf("failed to mark account expired: %w", err)
	}
	return requireRow(res)
}

// MarkOnboardingComplete records when an account finished connecting, once.
func (r *Repository) MarkOnboardingComplete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET onboarding_completed_at = COALESCE(onboarding_completed_at, ?), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark onboarding complete: %w", err)
	}
	return requireRow(res)
}

// TouchSynced records a successful calendar sync.
func (r *Repository) TouchSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET last_synced_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record sync: %w", err)
	}
	return requireRow(res)
}

// DeleteAccount removes an account; its calendars and tokens cascade.
func (r *Repository) DeleteAccount(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

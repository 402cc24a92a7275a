package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/util"
)

// ErrBackendDisabled is returned when connecting through an unconfigured backend.
var ErrBackendDisabled = errors.New("calendar backend is not configured")

// UnifiedLookup resolves a unified account id into its identity.
type UnifiedLookup interface {
	LookupAccount(ctx context.Context, accountID string) (calendars.AccountInfo, error)
}

// FeedSubscriber validates an ICS feed and describes its single calendar.
type FeedSubscriber interface {
	Subscribe(ctx context.Context, url string) (calendars.AccountInfo, calendars.CalendarInfo, error)
}

// SetUnified enables connecting unified accounts.
func (e *Engine) SetUnified(l UnifiedLookup) {
	e.unified = l
}

// SetFeeds enables ICS subscriptions.
func (e *Engine) SetFeeds(f FeedSubscriber) {
	e.feeds = f
}

// ListAccounts returns all connected accounts.
func (e *Engine) ListAccounts(ctx context.Context) ([]database.Account, error) {
	return e.repo.ListAccounts(ctx)
}

// ListCalendars returns every calendar with its account details.
func (e *Engine) ListCalendars(ctx context.Context) ([]calendars.CalendarView, error) {
	return e.repo.ListCalendars(ctx)
}

// SetCalendarHidden toggles whether a calendar contributes occurrences.
func (e *Engine) SetCalendarHidden(ctx context.Context, calendarID string, hidden bool) (*calendars.VisibleCalendar, error) {
	if err := e.repo.SetHidden(ctx, calendarID, hidden); err != nil {
		return nil, err
	}
	cal, err := e.repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	e.audit.Log(ctx, AuditEntry{
		EventType:  database.AuditCalendarHidden,
		AccountID:  cal.Account.ID,
		CalendarID: calendarID,
		Details:    map[string]interface{}{"hidden": hidden},
	})
	return cal, nil
}

// RegisterAccount stores an account identity, reactivating it if it exists.
func (e *Engine) RegisterAccount(ctx context.Context, info calendars.AccountInfo) (*database.Account, error) {
	acc, err := e.repo.UpsertAccount(ctx, info)
	if err != nil {
		return nil, err
	}
	e.audit.Log(ctx, AuditEntry{
		EventType: database.AuditAccountConnected,
		AccountID: acc.ID,
		Details:   map[string]interface{}{"backend": acc.Backend, "provider": acc.Provider},
	})
	util.Info("Account connected", "account_id", acc.ID, "backend", acc.Backend, "provider", acc.Provider)
	return acc, nil
}

// ConnectUnified registers a unified account and imports its calendars.
func (e *Engine) ConnectUnified(ctx context.Context, unifiedAccountID string) (*database.Account, []database.Calendar, error) {
	if e.unified == nil {
		return nil, nil, ErrBackendDisabled
	}
	info, err := e.unified.LookupAccount(ctx, unifiedAccountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up account: %w", err)
	}
	acc, err := e.RegisterAccount(ctx, info)
	if err != nil {
		return nil, nil, err
	}
	cals, err := e.SyncAccount(ctx, acc.ID)
	if err != nil {
		return acc, nil, err
	}
	return acc, cals, nil
}

// SubscribeFeed registers an ICS subscription.
func (e *Engine) SubscribeFeed(ctx context.Context, url string) (*database.Account, []database.Calendar, error) {
	if e.feeds == nil {
		return nil, nil, ErrBackendDisabled
	}
	info, cal, err := e.feeds.Subscribe(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	acc, err := e.RegisterAccount(ctx, info)
	if err != nil {
		return nil, nil, err
	}
	cals, err := e.storeCalendars(ctx, acc, []calendars.CalendarInfo{cal})
	if err != nil {
		return acc, nil, err
	}
	return acc, cals, nil
}

// SyncAccount re-reads an account's calendar list: new calendars are added,
// existing ones updated with their visibility kept and missing ones removed.
func (e *Engine) SyncAccount(ctx context.Context, accountID string) ([]database.Calendar, error) {
	acc, err := e.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	d, err := e.gateway.Mux().Discoverer(acc.Backend)
	if err != nil {
		return nil, err
	}

	infos, err := d.ListCalendars(ctx, *acc)
	if err != nil {
		if errors.Is(err, gateway.ErrAuthExpired) {
			if markErr := e.repo.MarkAccountExpired(ctx, acc.ID); markErr != nil {
				util.Error("Failed to mark account expired", "account_id", acc.ID, "error", markErr)
			} else {
				e.expired(ctx, acc.ID, "sync")
			}
		}
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return e.storeCalendars(ctx, acc, infos)
}

func (e *Engine) storeCalendars(ctx context.Context, acc *database.Account, infos []calendars.CalendarInfo) ([]database.Calendar, error) {
	cals, err := e.repo.SyncCalendars(ctx, acc.ID, infos)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := e.repo.MarkOnboardingComplete(ctx, acc.ID, now); err != nil {
		return nil, err
	}
	if err := e.repo.TouchSynced(ctx, acc.ID, now); err != nil {
		return nil, err
	}

	e.audit.Log(ctx, AuditEntry{
		EventType: database.AuditAccountSynced,
		AccountID: acc.ID,
		Actor:     "sync",
		Details:   map[string]interface{}{"calendars": len(cals)},
	})
	util.Info("Account calendars synced", "account_id", acc.ID, "calendars", len(cals))
	return cals, nil
}

// SyncAll re-syncs every active account. Failures are logged and counted.
func (e *Engine) SyncAll(ctx context.Context) (synced, failed int, err error) {
	accounts, err := e.repo.ListAccounts(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, acc := range accounts {
		if !acc.IsActive() {
			continue
		}
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if _, err := e.SyncAccount(ctx, acc.ID); err != nil {
			failed++
			util.Warn("Account sync failed", "account_id", acc.ID, "error", err)
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// DeleteAccount removes an account and, by cascade, its calendars and tokens.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	acc, err := e.repo.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := e.repo.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	e.audit.Log(ctx, AuditEntry{
		EventType: database.AuditAccountDeleted,
		AccountID: accountID,
		Details:   map[string]interface{}{"backend": acc.Backend, "email": acc.Email},
	})
	util.Info("Account deleted", "account_id", accountID)
	return nil
}

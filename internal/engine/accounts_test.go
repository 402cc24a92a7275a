package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/gateway"
)

type stubUnified struct {
	info calendars.AccountInfo
	err  error
}

func (s stubUnified) LookupAccount(_ context.Context, _ string) (calendars.AccountInfo, error) {
	return s.info, s.err
}

type stubFeeds struct{}

func (stubFeeds) Subscribe(_ context.Context, url string) (calendars.AccountInfo, calendars.CalendarInfo, error) {
	return calendars.AccountInfo{
			Backend: database.BackendICS, Provider: database.ProviderICS, ExternalID: url, Email: url,
		}, calendars.CalendarInfo{
			ExternalID: url, Name: "Holidays", ReadOnly: true, IsPrimary: true,
		}, nil
}

func TestConnectUnifiedImportsCalendars(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.engine.ConnectUnified(ctx, "ua-1")
	assert.ErrorIs(t, err, ErrBackendDisabled)

	h.engine.SetUnified(stubUnified{info: calendars.AccountInfo{
		Backend: database.BackendUnified, Provider: database.ProviderMicrosoft, ExternalID: "ua-1", Email: "me@example.com",
	}})
	h.backend.listed = []calendars.CalendarInfo{
		{ExternalID: "cal-a", Name: "A", IsPrimary: true},
		{ExternalID: "cal-b", Name: "B"},
	}

	acc, cals, err := h.engine.ConnectUnified(ctx, "ua-1")
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", acc.Email)
	require.Len(t, cals, 2)
	assert.Equal(t, "cal-a", cals[0].ExternalID)

	stored, err := h.repo.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, stored.OnboardingCompletedAt.Valid)
	assert.True(t, stored.LastSyncedAt.Valid)
}

func TestConnectUnifiedLookupFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.SetUnified(stubUnified{err: errors.New("404")})

	_, _, err := h.engine.ConnectUnified(context.Background(), "ua-1")
	assert.Error(t, err)

	accounts, err := h.engine.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSubscribeFeed(t *testing.T) {
	h := newHarness(t)
	h.engine.SetFeeds(stubFeeds{})

	acc, cals, err := h.engine.SubscribeFeed(context.Background(), "https://example.com/holidays.ics")
	require.NoError(t, err)
	assert.Equal(t, database.BackendICS, acc.Backend)
	require.Len(t, cals, 1)
	assert.True(t, cals[0].ReadOnly)
}

func TestSyncAccountPreservesVisibility(t *testing.T) {
	h := newHarness(t)
	acc, ids := h.connect(t, "acc-1",
		calendars.CalendarInfo{ExternalID: "work", Name: "Work"},
		calendars.CalendarInfo{ExternalID: "old", Name: "Old"},
	)
	ctx := context.Background()
	_, err := h.engine.SetCalendarHidden(ctx, ids["work"], true)
	require.NoError(t, err)

	h.backend.listed = []calendars.CalendarInfo{
		{ExternalID: "work", Name: "Work renamed"},
		{ExternalID: "new", Name: "New"},
	}
	cals, err := h.engine.SyncAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, cals, 2)

	byExt := map[string]database.Calendar{}
	for _, c := range cals {
		byExt[c.ExternalID] = c
	}
	assert.True(t, byExt["work"].IsHidden)
	assert.Equal(t, "Work renamed", byExt["work"].Name)
	assert.Contains(t, byExt, "new")
	assert.NotContains(t, byExt, "old")
}

type recordingNotifier struct {
	mu      sync.Mutex
	expired []string
}

func (n *recordingNotifier) AccountExpired(ctx context.Context, acc database.Account) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, acc.Email)
}

func TestSyncAccountAuthExpired(t *testing.T) {
	h := newHarness(t)
	notifier := &recordingNotifier{}
	h.engine.SetNotifier(notifier)
	acc, _ := h.connect(t, "acc-1", calendars.CalendarInfo{ExternalID: "work", Name: "Work"})
	h.backend.listErr = gateway.ErrAuthExpired
	ctx := context.Background()

	_, err := h.engine.SyncAccount(ctx, acc.ID)
	assert.ErrorIs(t, err, gateway.ErrAuthExpired)

	stored, err := h.repo.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive())
	assert.Equal(t, []string{acc.Email}, notifier.expired)
}

func TestSyncAllSkipsExpired(t *testing.T) {
	h := newHarness(t)
	active, _ := h.connect(t, "acc-1", calendars.CalendarInfo{ExternalID: "work", Name: "Work"})
	expired, _ := h.connect(t, "acc-2", calendars.CalendarInfo{ExternalID: "work", Name: "Work"})
	ctx := context.Background()
	require.NoError(t, h.repo.MarkAccountExpired(ctx, expired.ID))

	synced, failed, err := h.engine.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 0, failed)

	entries, err := h.engine.Audit().ForAccount(ctx, active.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, database.AuditAccountSynced, entries[0].EventType)
}

func TestDeleteAccountCascades(t *testing.T) {
	h := newHarness(t)
	acc, _ := h.connect(t, "acc-1", calendars.CalendarInfo{ExternalID: "work", Name: "Work"})
	ctx := context.Background()

	require.NoError(t, h.engine.DeleteAccount(ctx, acc.ID))

	cals, err := h.engine.ListCalendars(ctx)
	require.NoError(t, err)
	assert.Empty(t, cals)

	assert.ErrorIs(t, h.engine.DeleteAccount(ctx, acc.ID), calendars.ErrNotFound)

	recent, err := h.engine.Audit().Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, database.AuditAccountDeleted, recent[0].EventType)
}

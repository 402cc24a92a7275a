package calendars

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dtorcivia/calmerge/internal/database"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func connect(t *testing.T, repo *Repository, externalID string, cals ...CalendarInfo) (*database.Account, []database.Calendar) {
	t.Helper()
	ctx := context.Background()
	acc, err := repo.UpsertAccount(ctx, AccountInfo{
		Backend:    database.BackendUnified,
		Provider:   database.ProviderGoogle,
		ExternalID: externalID,
		Email:      externalID + "@example.com",
	})
	if err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	stored, err := repo.SyncCalendars(ctx, acc.ID, cals)
	if err != nil {
		t.Fatalf("SyncCalendars failed: %v", err)
	}
	return acc, stored
}

func TestUpsertAccountIsIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first, _ := connect(t, repo, "acc-1")
	if err := repo.MarkAccountExpired(ctx, first.ID); err != nil {
		t.Fatalf("MarkAccountExpired failed: %v", err)
	}

	second, _ := connect(t, repo, "acc-1")
	if second.ID != first.ID {
		t.Fatalf("expected same account id, got %s and %s", first.ID, second.ID)
	}
	if second.Status != database.AccountStatusActive {
		t.Fatalf("expected reconnect to reactivate, got %s", second.Status)
	}

	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
}

func TestSyncCalendarsPrunesAndPreservesVisibility(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	acc, stored := connect(t, repo, "acc-1",
		CalendarInfo{ExternalID: "work", Name: "Work", Color: "#112233", IsPrimary: true},
		CalendarInfo{ExternalID: "old", Name: "Old"},
	)
	if len(stored) != 2 {
		t.Fatalf("expected 2 calendars, got %d", len(stored))
	}
	if stored[0].ExternalID != "work" {
		t.Fatalf("expected primary calendar first, got %s", stored[0].ExternalID)
	}
	if err := repo.SetHidden(ctx, stored[0].ID, true); err != nil {
		t.Fatalf("SetHidden failed: %v", err)
	}

	stored, err := repo.SyncCalendars(ctx, acc.ID, []CalendarInfo{
		{ExternalID: "work", Name: "Work (renamed)", IsPrimary: true},
		{ExternalID: "new", Name: "New"},
	})
	if err != nil {
		t.Fatalf("SyncCalendars failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 calendars after sync, got %d", len(stored))
	}
	byExternal := map[string]database.Calendar{}
	for _, c := range stored {
		byExternal[c.ExternalID] = c
	}
	if _, ok := byExternal["old"]; ok {
		t.Error("expected calendar no longer reported to be deleted")
	}
	if work := byExternal["work"]; !work.IsHidden || work.Name != "Work (renamed)" {
		t.Errorf("expected work to stay hidden and be renamed, got %+v", work)
	}

	stored, err = repo.SyncCalendars(ctx, acc.ID, nil)
	if err != nil {
		t.Fatalf("SyncCalendars with no calendars failed: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("expected all calendars pruned, got %d", len(stored))
	}
}

func TestListVisibleFiltersHiddenAndExpired(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, calsA := connect(t, repo, "acc-a",
		CalendarInfo{ExternalID: "a1", Name: "A1", Color: "#ff0000"},
		CalendarInfo{ExternalID: "a2", Name: "A2"},
	)
	accB, _ := connect(t, repo, "acc-b", CalendarInfo{ExternalID: "b1", Name: "B1"})

	var hidden string
	for _, c := range calsA {
		if c.ExternalID == "a2" {
			hidden = c.ID
		}
	}
	if err := repo.SetHidden(ctx, hidden, true); err != nil {
		t.Fatalf("SetHidden failed: %v", err)
	}
	if err := repo.MarkAccountExpired(ctx, accB.ID); err != nil {
		t.Fatalf("MarkAccountExpired failed: %v", err)
	}

	visible, err := repo.ListVisible(ctx)
	if err != nil {
		t.Fatalf("ListVisible failed: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("expected 1 visible calendar, got %d", len(visible))
	}
	vc := visible[0]
	if vc.Calendar.ExternalID != "a1" || vc.Calendar.Color != "#ff0000" {
		t.Errorf("unexpected visible calendar %+v", vc.Calendar)
	}
	if vc.Account.ExternalID != "acc-a" || vc.Account.Email != "acc-a@example.com" {
		t.Errorf("unexpected account %+v", vc.Account)
	}

	all, err := repo.ListCalendars(ctx)
	if err != nil {
		t.Fatalf("ListCalendars failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 calendars in listing, got %d", len(all))
	}
	for _, c := range all {
		if c.AccountID == accB.ID && c.AccountStatus != database.AccountStatusExpired {
			t.Errorf("expected expired status in listing, got %s", c.AccountStatus)
		}
	}
}

func TestGetCalendarAndAccount(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	acc, cals := connect(t, repo, "acc-1", CalendarInfo{ExternalID: "c1", Name: "C1", TimeZone: "Europe/Berlin"})

	got, err := repo.GetCalendar(ctx, cals[0].ID)
	if err != nil {
		t.Fatalf("GetCalendar failed: %v", err)
	}
	if got.Account.ID != acc.ID || got.Calendar.TimeZone != "Europe/Berlin" {
		t.Errorf("unexpected calendar %+v", got)
	}

	if _, err := repo.GetCalendar(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetAccount(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.SetHidden(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOnboardingAndSyncTimestamps(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	acc, _ := connect(t, repo, "acc-1")

	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.MarkOnboardingComplete(ctx, acc.ID, first); err != nil {
		t.Fatalf("MarkOnboardingComplete failed: %v", err)
	}
	if err := repo.MarkOnboardingComplete(ctx, acc.ID, first.Add(time.Hour)); err != nil {
		t.Fatalf("MarkOnboardingComplete failed: %v", err)
	}
	if err := repo.TouchSynced(ctx, acc.ID, first.Add(2*time.Hour)); err != nil {
		t.Fatalf("TouchSynced failed: %v", err)
	}

	got, err := repo.GetAccount(ctx, acc.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !got.OnboardingCompletedAt.Valid || !got.OnboardingCompletedAt.Time.Equal(first) {
		t.Errorf("expected onboarding time to be kept from the first call, got %+v", got.OnboardingCompletedAt)
	}
	if !got.LastSyncedAt.Valid || !got.LastSyncedAt.Time.Equal(first.Add(2*time.Hour)) {
		t.Errorf("unexpected last synced %+v", got.LastSyncedAt)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	acc, _ := connect(t, repo, "acc-1", CalendarInfo{ExternalID: "c1", Name: "C1"})

	if err := repo.DeleteAccount(ctx, acc.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	cals, err := repo.ListCalendars(ctx)
	if err != nil {
		t.Fatalf("ListCalendars failed: %v", err)
	}
	if len(cals) != 0 {
		t.Fatalf("expected calendars to cascade, got %d", len(cals))
	}
	if err := repo.DeleteAccount(ctx, acc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

package workers

import (
	"context"
	"time"

	"github.com/dtorcivia/calmerge/internal/settings"
	"github.com/dtorcivia/calmerge/internal/util"
)

// AccountSyncer refreshes every connected account's calendar list.
type AccountSyncer interface {
	SyncAll(ctx context.Context) (synced, failed int, err error)
}

// SyncWorker periodically re-discovers calendars for all accounts.
type SyncWorker struct {
	syncer   AccountSyncer
	settings *settings.Store
	now      func() time.Time
}

// NewSyncWorker creates a new sync worker.
func NewSyncWorker(syncer AccountSyncer, store *settings.Store) *SyncWorker {
	return &SyncWorker{syncer: syncer, settings: store, now: time.Now}
}

// Name implements Job.
func (w *SyncWorker) Name() string { return "account_sync" }

// Run implements Job.
func (w *SyncWorker) Run(ctx context.Context) {
	start := w.now()
	synced, failed, err := w.syncer.SyncAll(ctx)
	if err != nil {
		util.Error("Account sync failed", "error", err)
		return
	}

	if err := w.settings.SetTime(ctx, settings.KeyLastAccountSync, start); err != nil {
		util.Error("Failed to record account sync time", "error", err)
	}

	util.Info("Account sync complete",
		"synced", synced,
		"failed", failed,
		"duration_ms", w.now().Sub(start).Milliseconds(),
	)
}

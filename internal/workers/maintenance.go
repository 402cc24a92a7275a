package workers

import (
	"context"
	"time"

	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/settings"
	"github.com/dtorcivia/calmerge/internal/util"
)

// AuditPruner removes old audit entries.
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}

// MaintenanceWorker prunes the audit log and vacuums the database.
type MaintenanceWorker struct {
	db             *database.DB
	settings       *settings.Store
	audit          AuditPruner
	retentionDays  int
	vacuumInterval time.Duration
	now            func() time.Time
}

// NewMaintenanceWorker creates a new maintenance worker. A zero retention
// keeps audit entries forever; a zero interval disables VACUUM.
func NewMaintenanceWorker(db *database.DB, store *settings.Store, audit AuditPruner, retentionDays int, vacuumInterval time.Duration) *MaintenanceWorker {
	return &MaintenanceWorker{
		db:             db,
		settings:       store,
		audit:          audit,
		retentionDays:  retentionDays,
		vacuumInterval: vacuumInterval,
		now:            time.Now,
	}
}

// Name implements Job.
func (w *MaintenanceWorker) Name() string { return "maintenance" }

// Run implements Job.
func (w *MaintenanceWorker) Run(ctx context.Context) {
	w.pruneAudit(ctx)
	w.maybeVacuum(ctx)
}

func (w *MaintenanceWorker) pruneAudit(ctx context.Context) {
	if w.retentionDays <= 0 || w.audit == nil {
		return
	}
	rows, err := w.audit.DeleteOlderThan(ctx, w.retentionDays)
	if err != nil {
		util.Error("Failed to cleanup audit logs", "error", err)
		return
	}
	if rows > 0 {
		util.Info("Cleaned up old audit logs", "count", rows)
	}
}

// maybeVacuum runs VACUUM when the last run is older than the interval.
func (w *MaintenanceWorker) maybeVacuum(ctx context.Context) {
	if w.vacuumInterval <= 0 {
		return
	}
	last, err := w.settings.GetTime(ctx, settings.KeyLastVacuum)
	if err != nil {
		util.Warn("Ignoring unreadable last vacuum time", "error", err)
	}
	if !last.IsZero() && w.now().Sub(last) < w.vacuumInterval {
		return
	}

	util.Info("Running database VACUUM")
	if err := w.db.Vacuum(ctx); err != nil {
		util.Error("Failed to VACUUM database", "error", err)
		return
	}
	if err := w.settings.SetTime(ctx, settings.KeyLastVacuum, w.now()); err != nil {
		util.Error("Failed to update last vacuum time", "error", err)
	}
}

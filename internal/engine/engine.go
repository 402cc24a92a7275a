// Package engine merges visible calendars into one occurrence list and
// applies account and event mutations through the providers.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/recurrence"
	"github.com/dtorcivia/calmerge/internal/util"
)

// Options tunes the engine.
type Options struct {
	// MaxOccurrences caps instances per recurring master.
	MaxOccurrences int
	// MaxWindow bounds a query window; zero disables the check.
	MaxWindow time.Duration
	// Location is the fallback for times that carry no timezone.
	Location *time.Location
}

// Engine orchestrates occurrence queries and mutations.
type Engine struct {
	repo    *calendars.Repository
	gateway *gateway.Gateway
	audit   *AuditLogger
	queue   *ExpiryQueue
	opts    Options
	logger  *util.Logger

	unified  UnifiedLookup
	feeds    FeedSubscriber
	notifier Notifier
}

// Notifier is told about accounts that need to be reconnected.
type Notifier interface {
	AccountExpired(ctx context.Context, acc database.Account)
}

// SetNotifier registers n for account expiry alerts.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// expired records and announces that accountID lost authorization.
func (e *Engine) expired(ctx context.Context, accountID, actor string) {
	e.audit.Log(ctx, AuditEntry{EventType: database.AuditAccountExpired, AccountID: accountID, Actor: actor})
	if e.notifier == nil {
		return
	}
	acc, err := e.repo.GetAccount(ctx, accountID)
	if err != nil {
		util.Warn("Skipping expiry alert", "account_id", accountID, "error", err)
		return
	}
	e.notifier.AccountExpired(ctx, *acc)
}

// New creates an engine. The gateway's expirer should be queue.
func New(repo *calendars.Repository, gw *gateway.Gateway, audit *AuditLogger, queue *ExpiryQueue, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = recurrence.DefaultMaxOccurrences
	}
	e := &Engine{
		repo:    repo,
		gateway: gw,
		audit:   audit,
		queue:   queue,
		opts:    opts,
		logger:  util.GetDefaultLogger(),
	}
	queue.OnExpire(func(ctx context.Context, accountID string) {
		e.expired(ctx, accountID, "engine")
	})
	return e
}

// Start starts the expiry queue worker.
func (e *Engine) Start(ctx context.Context) {
	e.queue.Start(ctx)
}

// Stop drains the expiry queue.
func (e *Engine) Stop() {
	e.queue.Stop()
}

// Audit returns the audit logger.
func (e *Engine) Audit() *AuditLogger {
	return e.audit
}

// Location returns the display fallback location.
func (e *Engine) Location() *time.Location {
	return e.opts.Location
}

// GetOccurrences returns every occurrence overlapping [start, end] across
// visible calendars of active accounts, sorted by start then id. A calendar
// that fails to fetch contributes nothing; only a failure to read the local
// store fails the query.
func (e *Engine) GetOccurrences(ctx context.Context, start, end time.Time) ([]recurrence.Occurrence, error) {
	if err := util.ValidateWindow(start, end, e.opts.MaxWindow); err != nil {
		return nil, err
	}

	cals, err := e.repo.ListVisible(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list visible calendars: %w", err)
	}
	if len(cals) == 0 {
		return []recurrence.Occurrence{}, nil
	}

	batches := e.gateway.Fetch(ctx, cals, gateway.Window{
		Start:    start,
		End:      end,
		TimeZone: e.opts.Location.String(),
	})
	out := e.merge(batches, start, end)

	e.logger.Debug("Occurrences computed",
		"calendars", len(cals),
		"occurrences", len(out),
		"window_start", util.FormatRFC3339(start),
		"window_end", util.FormatRFC3339(end),
	)
	return out, nil
}

func (e *Engine) merge(batches []gateway.Batch, start, end time.Time) []recurrence.Occurrence {
	seen := make(map[string]bool)
	out := make([]recurrence.Occurrence, 0)

	for _, b := range batches {
		opts := []recurrence.Option{
			recurrence.WithFallbackLocation(util.LoadLocation(b.Calendar.Calendar.TimeZone, e.opts.Location)),
			recurrence.WithMaxOccurrences(e.opts.MaxOccurrences),
			recurrence.WithLogger(e.logger),
		}

		var occs []recurrence.Occurrence
		if b.PreExpanded {
			occs = recurrence.Passthrough(b.Events, opts...)
		} else {
			occs = recurrence.Expand(b.Events, start, end, opts...)
		}

		for _, o := range occs {
			if !o.Synthetic() && !overlaps(o, start, end) {
				continue
			}
			key := o.CalendarID + "\x00" + o.ID
			if seen[key] {
				continue
			}
			seen[key] = true

			o.Color = events.ResolveColor(o.Event)
			o.Attendees = o.OrderedAttendees()
			out = append(out, o)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// overlaps reports whether o touches the inclusive window. Records whose
// times could not be parsed are kept.
func overlaps(o recurrence.Occurrence, start, end time.Time) bool {
	if o.StartTime.IsZero() {
		return true
	}
	if o.StartTime.After(end) {
		return false
	}
	finish := o.EndTime
	if finish.IsZero() || finish.Before(o.StartTime) {
		finish = o.StartTime
	}
	return !finish.Before(start)
}

package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/util"
)

// Expirer records that an account's credentials were rejected. Enqueue must
// not block the caller for long.
type Expirer interface {
	Enqueue(accountID string)
}

// Batch is the tagged result for one calendar. A failed fetch yields an empty batch.
type Batch struct {
	Calendar    calendars.VisibleCalendar
	Events      []events.Event
	PreExpanded bool
	Failed      bool
}

// Gateway fetches every visible calendar concurrently.
type Gateway struct {
	mux     *Mux
	expirer Expirer
	logger  *util.Logger
}

// New creates a gateway. expirer may be nil.
func New(mux *Mux, expirer Expirer, logger *util.Logger) *Gateway {
	if logger == nil {
		logger = util.GetDefaultLogger()
	}
	return &Gateway{mux: mux, expirer: expirer, logger: logger}
}

// Mux returns the provider mux.
func (g *Gateway) Mux() *Mux {
	return g.mux
}

// Fetch queries each calendar in its own goroutine and returns one batch per
// calendar in input order. Failures never propagate: an auth failure queues
// the account for expiry, anything else is logged.
func (g *Gateway) Fetch(ctx context.Context, cals []calendars.VisibleCalendar, w Window) []Batch {
	batches := make([]Batch, len(cals))

	var wg sync.WaitGroup
	for i := range cals {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batches[i] = g.fetchOne(ctx, cals[i], w)
		}(i)
	}
	wg.Wait()

	return batches
}

func (g *Gateway) fetchOne(ctx context.Context, cal calendars.VisibleCalendar, w Window) Batch {
	batch := Batch{Calendar: cal}

	provider, err := g.mux.Get(cal.Account.Backend)
	if err == nil {
		var res Result
		res, err = provider.FetchEvents(ctx, cal, w)
		if err == nil {
			batch.Events = tag(res.Events, cal)
			batch.PreExpanded = res.PreExpanded
			return batch
		}
	}

	batch.Failed = true
	if errors.Is(err, ErrAuthExpired) {
		g.logger.Warn("Calendar account authorization expired",
			"account_id", cal.Account.ID, "calendar_id", cal.Calendar.ID)
		if g.expirer != nil {
			g.expirer.Enqueue(cal.Account.ID)
		}
		return batch
	}

	g.logger.Error("Failed to fetch calendar events",
		"calendar_id", cal.Calendar.ID, "message", err.Error())
	return batch
}

func tag(evs []events.Event, cal calendars.VisibleCalendar) []events.Event {
	ref := events.CalendarRef{
		CalendarID:               cal.Calendar.ID,
		CalendarColor:            cal.Calendar.Color,
		CalendarUnifiedID:        cal.Calendar.ExternalID,
		CalendarUnifiedAccountID: cal.Account.ExternalID,
	}
	out := make([]events.Event, len(evs))
	for i, e := range evs {
		e.CalendarRef = ref
		out[i] = e
	}
	return out
}

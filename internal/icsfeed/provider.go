package icsfeed

import (
	"context"
	"time"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/util"
)

// Provider serves ICS subscriptions. A feed account has exactly one calendar
// whose external id is the feed URL. Feeds are never expanded upstream and
// cannot be written.
type Provider struct {
	fetcher  *Fetcher
	fallback *time.Location
}

// NewProvider creates a provider. fallback is used for floating times in
// feeds without X-WR-TIMEZONE.
func NewProvider(fetcher *Fetcher, fallback *time.Location) *Provider {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Provider{fetcher: fetcher, fallback: fallback}
}

func (p *Provider) load(ctx context.Context, url string) (*Feed, error) {
	body, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Parse(body, p.fallback)
}

// FetchEvents implements gateway.Provider. The whole feed is returned; the
// expansion engine applies the window.
func (p *Provider) FetchEvents(ctx context.Context, cal calendars.VisibleCalendar, _ gateway.Window) (gateway.Result, error) {
	feed, err := p.load(ctx, cal.Calendar.ExternalID)
	if err != nil {
		return gateway.Result{}, err
	}
	return gateway.Result{Events: feed.Events}, nil
}

// ListCalendars implements gateway.Discoverer.
func (p *Provider) ListCalendars(ctx context.Context, acc database.Account) ([]calendars.CalendarInfo, error) {
	feed, err := p.load(ctx, acc.ExternalID)
	if err != nil {
		return nil, err
	}
	return []calendars.CalendarInfo{feedCalendar(acc.ExternalID, feed)}, nil
}

// Subscribe validates a feed URL by fetching it and returns the account and
// calendar to store for it.
func (p *Provider) Subscribe(ctx context.Context, rawURL string) (calendars.AccountInfo, calendars.CalendarInfo, error) {
	url, err := util.NormalizeFeedURL(rawURL)
	if err != nil {
		return calendars.AccountInfo{}, calendars.CalendarInfo{}, err
	}
	feed, err := p.load(ctx, url)
	if err != nil {
		return calendars.AccountInfo{}, calendars.CalendarInfo{}, err
	}
	info := calendars.AccountInfo{
		Backend:    database.BackendICS,
		Provider:   database.ProviderICS,
		ExternalID: url,
	}
	return info, feedCalendar(url, feed), nil
}

func feedCalendar(url string, feed *Feed) calendars.CalendarInfo {
	name := feed.Name
	if name == "" {
		name = util.RedactURL(url)
	}
	return calendars.CalendarInfo{
		ExternalID: url,
		Name:       name,
		TimeZone:   feed.TimeZone,
		IsPrimary:  true,
		ReadOnly:   true,
	}
}

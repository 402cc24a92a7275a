package unified

import (
	"context"
	"fmt"
	"strings"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/util"
)

// Provider adapts Client to the gateway interfaces.
type Provider struct {
	client *Client
	expand bool
}

// NewProvider creates a provider. expand asks the API to expand recurring
// series, in which case returned batches are reported as pre-expanded.
func NewProvider(client *Client, expand bool) *Provider {
	return &Provider{client: client, expand: expand}
}

// FetchEvents implements gateway.Provider.
func (p *Provider) FetchEvents(ctx context.Context, cal calendars.VisibleCalendar, w gateway.Window) (gateway.Result, error) {
	evs, err := p.client.ListEvents(ctx, cal.Account.ExternalID, cal.Calendar.ExternalID, EventsQuery{
		StartDateTime:     util.FormatRFC3339(w.Start),
		EndDateTime:       util.FormatRFC3339(w.End),
		TimeZone:          w.TimeZone,
		ExpandRecurrences: p.expand,
	})
	if err != nil {
		return gateway.Result{}, translate(err)
	}
	for i := range evs {
		evs[i].ColorID = events.NormalizeColorID(evs[i].ColorID)
	}
	return gateway.Result{Events: evs, PreExpanded: p.expand}, nil
}

// GetEvent implements gateway.Writer.
func (p *Provider) GetEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string) (*events.Event, error) {
	e, err := p.client.GetEvent(ctx, cal.Account.ExternalID, cal.Calendar.ExternalID, eventID)
	return e, translate(err)
}

// CreateEvent implements gateway.Writer.
func (p *Provider) CreateEvent(ctx context.Context, cal calendars.VisibleCalendar, e events.Event) (*events.Event, error) {
	created, err := p.client.CreateEvent(ctx, cal.Account.ExternalID, cal.Calendar.ExternalID, NewEventInput(e))
	return created, translate(err)
}

// UpdateEvent implements gateway.Writer.
func (p *Provider) UpdateEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string, e events.Event) (*events.Event, error) {
	updated, err := p.client.UpdateEvent(ctx, cal.Account.ExternalID, cal.Calendar.ExternalID, eventID, NewEventInput(e))
	return updated, translate(err)
}

// DeleteEvent implements gateway.Writer.
func (p *Provider) DeleteEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string) error {
	return translate(p.client.DeleteEvent(ctx, cal.Account.ExternalID, cal.Calendar.ExternalID, eventID))
}

// ListCalendars implements gateway.Discoverer.
func (p *Provider) ListCalendars(ctx context.Context, acc database.Account) ([]calendars.CalendarInfo, error) {
	cals, err := p.client.ListCalendars(ctx, acc.ExternalID)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]calendars.CalendarInfo, 0, len(cals))
	for _, c := range cals {
		out = append(out, calendars.CalendarInfo{
			ExternalID: c.ID,
			Name:       c.Name,
			Color:      c.HexColor,
			TimeZone:   c.TimeZone,
			IsPrimary:  c.IsPrimary,
			ReadOnly:   c.ReadOnly,
		})
	}
	return out, nil
}

// LookupAccount resolves a unified account id into the identity to store.
func (p *Provider) LookupAccount(ctx context.Context, accountID string) (calendars.AccountInfo, error) {
	acc, err := p.client.GetEndUserAccount(ctx, accountID)
	if err != nil {
		return calendars.AccountInfo{}, translate(err)
	}
	provider := strings.ToUpper(acc.ProviderType)
	switch provider {
	case database.ProviderGoogle, database.ProviderMicrosoft:
	default:
		return calendars.AccountInfo{}, fmt.Errorf("unsupported provider type %q", acc.ProviderType)
	}
	return calendars.AccountInfo{
		Backend:    database.BackendUnified,
		Provider:   provider,
		ExternalID: acc.ID,
		Email:      acc.Email,
	}, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case IsInvalidRefreshToken(err):
		return fmt.Errorf("%w: %v", gateway.ErrAuthExpired, err)
	case IsNotFound(err):
		return fmt.Errorf("%w: %v", gateway.ErrEventNotFound, err)
	default:
		return err
	}
}

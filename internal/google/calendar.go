package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/util"
)

// ServiceFunc builds a Calendar API service for an account.
type ServiceFunc func(ctx context.Context, accountID string) (*calendar.Service, error)

// Provider serves directly connected Google accounts.
type Provider struct {
	service ServiceFunc
	oauth   *OAuthManager
	expand  bool
}

// NewProvider creates a provider backed by oauth. expand asks Google for
// single events, in which case batches are reported as pre-expanded.
func NewProvider(oauth *OAuthManager, expand bool) *Provider {
	p := &Provider{oauth: oauth, expand: expand}
	p.service = func(ctx context.Context, accountID string) (*calendar.Service, error) {
		httpClient, err := oauth.Client(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	}
	return p
}

// NewProviderWithService creates a provider over a custom service factory.
func NewProviderWithService(fn ServiceFunc, expand bool) *Provider {
	return &Provider{service: fn, expand: expand}
}

func (p *Provider) svc(ctx context.Context, accountID string) (*calendar.Service, error) {
	s, err := p.service(ctx, accountID)
	if err != nil {
		return nil, translate(fmt.Errorf("failed to create Calendar service: %w", err))
	}
	return s, nil
}

// FetchEvents implements gateway.Provider.
func (p *Provider) FetchEvents(ctx context.Context, cal calendars.VisibleCalendar, w gateway.Window) (gateway.Result, error) {
	service, err := p.svc(ctx, cal.Account.ID)
	if err != nil {
		return gateway.Result{}, err
	}

	call := service.Events.List(cal.Calendar.ExternalID).Context(ctx).
		TimeMin(util.FormatRFC3339(w.Start)).
		TimeMax(util.FormatRFC3339(w.End)).
		SingleEvents(p.expand).
		MaxResults(2500)
	if !p.expand {
		// Cancelled instances of a series are returned only with showDeleted.
		call = call.ShowDeleted(true)
	}
	if w.TimeZone != "" {
		call = call.TimeZone(w.TimeZone)
	}

	var out []events.Event
	err = call.Pages(ctx, func(page *calendar.Events) error {
		tz := page.TimeZone
		if tz == "" {
			tz = cal.Calendar.TimeZone
		}
		for _, item := range page.Items {
			out = append(out, convertEvent(item, tz))
		}
		return nil
	})
	if err != nil {
		return gateway.Result{}, translate(fmt.Errorf("failed to list events: %w", err))
	}
	return gateway.Result{Events: out, PreExpanded: p.expand}, nil
}

// GetEvent implements gateway.Writer.
func (p *Provider) GetEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string) (*events.Event, error) {
	service, err := p.svc(ctx, cal.Account.ID)
	if err != nil {
		return nil, err
	}
	item, err := service.Events.Get(cal.Calendar.ExternalID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, translate(fmt.Errorf("failed to get event: %w", err))
	}
	e := convertEvent(item, cal.Calendar.TimeZone)
	return &e, nil
}

// CreateEvent implements gateway.Writer.
func (p *Provider) CreateEvent(ctx context.Context, cal calendars.VisibleCalendar, e events.Event) (*events.Event, error) {
	service, err := p.svc(ctx, cal.Account.ID)
	if err != nil {
		return nil, err
	}
	body, err := toGoogleEvent(e, nil)
	if err != nil {
		return nil, err
	}
	created, err := service.Events.Insert(cal.Calendar.ExternalID, body).Context(ctx).Do()
	if err != nil {
		return nil, translate(fmt.Errorf("failed to create event: %w", err))
	}
	out := convertEvent(created, cal.Calendar.TimeZone)
	return &out, nil
}

// UpdateEvent implements gateway.Writer. Fields the event model does not carry,
// such as reminders, are kept from the stored event.
func (p *Provider) UpdateEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string, e events.Event) (*events.Event, error) {
	service, err := p.svc(ctx, cal.Account.ID)
	if err != nil {
		return nil, err
	}

	existing, err := service.Events.Get(cal.Calendar.ExternalID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, translate(fmt.Errorf("failed to get existing event (calendar=%s, event=%s): %w", cal.Calendar.ExternalID, eventID, err))
	}
	body, err := toGoogleEvent(e, existing)
	if err != nil {
		return nil, err
	}

	updated, err := service.Events.Update(cal.Calendar.ExternalID, eventID, body).Context(ctx).Do()
	if err != nil {
		return nil, translate(fmt.Errorf("failed to update event (calendar=%s, event=%s): %w", cal.Calendar.ExternalID, eventID, err))
	}
	out := convertEvent(updated, cal.Calendar.TimeZone)
	return &out, nil
}

// DeleteEvent implements gateway.Writer.
func (p *Provider) DeleteEvent(ctx context.Context, cal calendars.VisibleCalendar, eventID string) error {
	service, err := p.svc(ctx, cal.Account.ID)
	if err != nil {
		return err
	}
	if err := service.Events.Delete(cal.Calendar.ExternalID, eventID).Context(ctx).Do(); err != nil {
		return translate(fmt.Errorf("failed to delete event (calendar=%s, event=%s): %w", cal.Calendar.ExternalID, eventID, err))
	}
	return nil
}

// ListCalendars implements gateway.Discoverer.
func (p *Provider) ListCalendars(ctx context.Context, acc database.Account) ([]calendars.CalendarInfo, error) {
	service, err := p.svc(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	return listCalendars(ctx, service)
}

func listCalendars(ctx context.Context, service *calendar.Service) ([]calendars.CalendarInfo, error) {
	var out []calendars.CalendarInfo
	err := service.CalendarList.List().Context(ctx).Pages(ctx, func(list *calendar.CalendarList) error {
		for _, item := range list.Items {
			out = append(out, convertCalendar(item))
		}
		return nil
	})
	if err != nil {
		return nil, translate(fmt.Errorf("failed to list calendars: %w", err))
	}
	return out, nil
}

// Identify resolves the account behind a freshly exchanged token. The primary
// calendar's id is the account's email address.
func (p *Provider) Identify(ctx context.Context, token *oauth2.Token) (calendars.AccountInfo, error) {
	service, err := calendar.NewService(ctx, option.WithHTTPClient(p.oauth.ClientForToken(ctx, token)))
	if err != nil {
		return calendars.AccountInfo{}, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return identify(ctx, service)
}

func identify(ctx context.Context, service *calendar.Service) (calendars.AccountInfo, error) {
	primary, err := service.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		return calendars.AccountInfo{}, translate(fmt.Errorf("failed to read primary calendar: %w", err))
	}
	return calendars.AccountInfo{
		Backend:    database.BackendGoogle,
		Provider:   database.ProviderGoogle,
		ExternalID: primary.Id,
		Email:      primary.Id,
	}, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case isAuthError(err):
		return fmt.Errorf("%w: %v", gateway.ErrAuthExpired, err)
	case isHTTPStatus(err, http.StatusNotFound, http.StatusGone):
		return fmt.Errorf("%w: %v", gateway.ErrEventNotFound, err)
	default:
		return err
	}
}

func isAuthError(err error) bool {
	if errors.Is(err, ErrNoToken) {
		return true
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return rErr.ErrorCode == "invalid_grant" || strings.Contains(string(rErr.Body), "invalid_grant")
	}
	return isHTTPStatus(err, http.StatusUnauthorized)
}

func isHTTPStatus(err error, codes ...int) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	for _, c := range codes {
		if gErr.Code == c {
			return true
		}
	}
	return false
}

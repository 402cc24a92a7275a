package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/gateway"
	"github.com/dtorcivia/calmerge/internal/recurrence"
	"github.com/dtorcivia/calmerge/internal/util"
)

// Scope selects what an edit or delete of a recurring instance applies to.
type Scope string

const (
	ScopeOccurrence Scope = "occurrence"
	ScopeSeries     Scope = "series"
)

// ErrInvalidScope is returned for an unknown scope value.
var ErrInvalidScope = errors.New("invalid scope (expected occurrence or series)")

// ParseScope accepts "", "occurrence" and "series"; empty means occurrence.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeOccurrence:
		return ScopeOccurrence, nil
	case ScopeSeries:
		return ScopeSeries, nil
	default:
		return "", ErrInvalidScope
	}
}

// Target names the event a mutation applies to.
type Target struct {
	EventID string
	// RecurringEventID is the master of an instance, if any.
	RecurringEventID string
	Scope            Scope
}

// id resolves the upstream event id: the master for series-wide changes to an
// instance, the event itself otherwise.
func (t Target) id() string {
	if t.Scope == ScopeSeries && t.RecurringEventID != "" {
		return t.RecurringEventID
	}
	return t.EventID
}

func (e *Engine) writer(ctx context.Context, calendarID string) (calendars.VisibleCalendar, gateway.Writer, error) {
	cal, err := e.repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return calendars.VisibleCalendar{}, nil, err
	}
	if cal.Calendar.ReadOnly {
		return *cal, nil, gateway.ErrReadOnly
	}
	w, err := e.gateway.Mux().Writer(cal.Account.Backend)
	if err != nil {
		return *cal, nil, err
	}
	return *cal, w, nil
}

// observe queues an account for expiry when a write was rejected for auth.
func (e *Engine) observe(cal calendars.VisibleCalendar, err error) error {
	if errors.Is(err, gateway.ErrAuthExpired) {
		e.queue.Enqueue(cal.Account.ID)
	}
	return err
}

// ValidateEvent checks an event submitted for create or update.
func ValidateEvent(ev events.Event) error {
	start, err := ev.Start.Time(time.UTC)
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	end, err := ev.End.Time(ev.Start.Location(time.UTC))
	if err != nil {
		return fmt.Errorf("invalid end: %w", err)
	}
	if err := util.ValidateEventRange(start, end); err != nil {
		return err
	}
	if err := util.ValidateTransparency(ev.Transparency); err != nil {
		return err
	}
	if err := util.ValidateHexColor(ev.CustomColor); err != nil {
		return err
	}
	for _, a := range ev.Attendees {
		if err := util.ValidateEmail(a.Email); err != nil {
			return fmt.Errorf("attendee %q: %w", a.Email, err)
		}
	}
	return recurrence.ValidateRecurrence(ev.Recurrence)
}

func (e *Engine) tagged(ev *events.Event, cal calendars.VisibleCalendar) *events.Event {
	if ev == nil {
		return nil
	}
	ev.CalendarRef = events.CalendarRef{
		CalendarID:               cal.Calendar.ID,
		CalendarColor:            cal.Calendar.Color,
		CalendarUnifiedID:        cal.Calendar.ExternalID,
		CalendarUnifiedAccountID: cal.Account.ExternalID,
	}
	return ev
}

// GetEvent reads one event from its calendar's provider.
func (e *Engine) GetEvent(ctx context.Context, calendarID, eventID string) (*events.Event, error) {
	cal, err := e.repo.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	w, err := e.gateway.Mux().Writer(cal.Account.Backend)
	if err != nil {
		return nil, err
	}
	ev, err := w.GetEvent(ctx, *cal, eventID)
	if err != nil {
		return nil, e.observe(*cal, err)
	}
	return e.tagged(ev, *cal), nil
}

// CreateEvent creates ev on the calendar.
func (e *Engine) CreateEvent(ctx context.Context, calendarID string, ev events.Event) (*events.Event, error) {
	if err := ValidateEvent(ev); err != nil {
		return nil, err
	}
	cal, w, err := e.writer(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	created, err := w.CreateEvent(ctx, cal, ev)
	if err != nil {
		return nil, e.observe(cal, fmt.Errorf("failed to create event: %w", err))
	}

	e.audit.Log(ctx, AuditEntry{
		EventType:  database.AuditEventCreated,
		AccountID:  cal.Account.ID,
		CalendarID: cal.Calendar.ID,
		EventID:    created.ID,
		Details:    map[string]interface{}{"title": created.Title, "recurring": len(ev.Recurrence) > 0},
	})
	util.Info("Event created", "calendar_id", cal.Calendar.ID, "event_id", created.ID)
	return e.tagged(created, cal), nil
}

// UpdateEvent edits an event. With ScopeSeries on an instance the master is
// edited. Recurrence is only sent for series edits or events outside a series.
func (e *Engine) UpdateEvent(ctx context.Context, calendarID string, t Target, ev events.Event) (*events.Event, error) {
	if err := ValidateEvent(ev); err != nil {
		return nil, err
	}
	cal, w, err := e.writer(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	id := t.id()
	if t.Scope != ScopeSeries && t.RecurringEventID != "" {
		ev.Recurrence = nil
	}

	updated, err := w.UpdateEvent(ctx, cal, id, ev)
	if err != nil {
		return nil, e.observe(cal, fmt.Errorf("failed to update event: %w", err))
	}

	e.audit.Log(ctx, AuditEntry{
		EventType:  database.AuditEventUpdated,
		AccountID:  cal.Account.ID,
		CalendarID: cal.Calendar.ID,
		EventID:    id,
		Details:    map[string]interface{}{"scope": string(t.Scope), "requested_id": t.EventID},
	})
	util.Info("Event updated", "calendar_id", cal.Calendar.ID, "event_id", id, "scope", t.Scope)
	return e.tagged(updated, cal), nil
}

// DeleteEvent deletes an event, or its whole series with ScopeSeries.
func (e *Engine) DeleteEvent(ctx context.Context, calendarID string, t Target) error {
	cal, w, err := e.writer(ctx, calendarID)
	if err != nil {
		return err
	}

	id := t.id()
	if err := w.DeleteEvent(ctx, cal, id); err != nil {
		return e.observe(cal, fmt.Errorf("failed to delete event: %w", err))
	}

	e.audit.Log(ctx, AuditEntry{
		EventType:  database.AuditEventDeleted,
		AccountID:  cal.Account.ID,
		CalendarID: cal.Calendar.ID,
		EventID:    id,
		Details:    map[string]interface{}{"scope": string(t.Scope)},
	})
	util.Info("Event deleted", "calendar_id", cal.Calendar.ID, "event_id", id, "scope", t.Scope)
	return nil
}

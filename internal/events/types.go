// Package events defines the calendar event record shared by providers, the
// recurrence engine and the HTTP API.
package events

import (
	"strings"
	"time"

	"github.com/dtorcivia/calmerge/internal/util"
)

// Transparency values.
const (
	TransparencyTransparent = "transparent"
	TransparencyOpaque      = "opaque"
)

// EventTime is a civil or absolute timestamp paired with an IANA timezone.
// All-day events carry a plain date in DateTime.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// IsZero reports whether no timestamp is set.
func (t EventTime) IsZero() bool {
	return strings.TrimSpace(t.DateTime) == ""
}

// Location resolves TimeZone, falling back when it is empty or unknown.
func (t EventTime) Location(fallback *time.Location) *time.Location {
	return util.LoadLocation(t.TimeZone, fallback)
}

// Time parses DateTime in the timestamp's own timezone.
func (t EventTime) Time(fallback *time.Location) (time.Time, error) {
	parsed, _, err := util.ParseEventTime(t.DateTime, t.Location(fallback))
	return parsed, err
}

// NewEventTime renders t as a civil dateTime in its own location.
func NewEventTime(t time.Time, allDay bool) EventTime {
	tz := t.Location().String()
	if tz == "Local" {
		tz = ""
	}
	if allDay {
		return EventTime{DateTime: t.Format(util.CivilDate), TimeZone: tz}
	}
	return EventTime{DateTime: util.FormatCivil(t), TimeZone: tz}
}

// Attendee is a participant; the organizer is conventionally listed first.
type Attendee struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CalendarRef tags an event with the calendar it was fetched from.
type CalendarRef struct {
	CalendarID               string `json:"calendarId,omitempty"`
	CalendarColor            string `json:"calendarColor,omitempty"`
	CalendarUnifiedID        string `json:"calendarUnifiedId,omitempty"`
	CalendarUnifiedAccountID string `json:"calendarUnifiedAccountId,omitempty"`
}

// Event is a raw event record as returned by a provider. One record can be a
// plain event, a recurring master, an exception or a cancellation; use
// Classify to get the typed view.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	Start    EventTime `json:"start"`
	End      EventTime `json:"end"`
	IsAllDay bool      `json:"isAllDay,omitempty"`

	IsRecurring      bool       `json:"isRecurring,omitempty"`
	Recurrence       []string   `json:"recurrence,omitempty"`
	RecurringEventID string     `json:"recurringEventId,omitempty"`
	IsException      bool       `json:"isException,omitempty"`
	IsCancelled      bool       `json:"isCancelled,omitempty"`
	OriginalStart    *EventTime `json:"originalStartTime,omitempty"`

	Attendees    []Attendee `json:"attendees,omitempty"`
	Organizer    *Attendee  `json:"organizer,omitempty"`
	Transparency string     `json:"transparency,omitempty"`
	ColorID      string     `json:"colorId,omitempty"`
	CustomColor  string     `json:"customColor,omitempty"`

	CalendarRef
}

// Clone returns a copy that shares no slices or pointers with e.
func (e Event) Clone() Event {
	out := e
	if e.Recurrence != nil {
		out.Recurrence = append([]string(nil), e.Recurrence...)
	}
	if e.Attendees != nil {
		out.Attendees = append([]Attendee(nil), e.Attendees...)
	}
	if e.OriginalStart != nil {
		orig := *e.OriginalStart
		out.OriginalStart = &orig
	}
	if e.Organizer != nil {
		org := *e.Organizer
		out.Organizer = &org
	}
	return out
}

// FirstRule returns the body of the first RRULE entry in recurrence, without
// the "RRULE:" marker, or "" when there is none.
func FirstRule(recurrence []string) string {
	for _, line := range recurrence {
		line = strings.TrimSpace(line)
		if len(line) > len("RRULE:") && strings.EqualFold(line[:len("RRULE:")], "RRULE:") {
			return strings.TrimSpace(line[len("RRULE:"):])
		}
	}
	return ""
}

// OrderedAttendees returns attendees with the organizer first and not repeated.
func (e Event) OrderedAttendees() []Attendee {
	if e.Organizer == nil || e.Organizer.Email == "" {
		return e.Attendees
	}
	out := make([]Attendee, 0, len(e.Attendees)+1)
	out = append(out, *e.Organizer)
	for _, a := range e.Attendees {
		if strings.EqualFold(a.Email, e.Organizer.Email) {
			if out[0].Name == "" {
				out[0].Name = a.Name
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

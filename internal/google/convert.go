package google

import (
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/dtorcivia/calmerge/internal/calendars"
	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/util"
)

const statusCancelled = "cancelled"

func convertCalendar(item *calendar.CalendarListEntry) calendars.CalendarInfo {
	name := item.SummaryOverride
	if name == "" {
		name = item.Summary
	}
	return calendars.CalendarInfo{
		ExternalID: item.Id,
		Name:       name,
		Color:      item.BackgroundColor,
		TimeZone:   item.TimeZone,
		IsPrimary:  item.Primary,
		ReadOnly:   item.AccessRole == "reader" || item.AccessRole == "freeBusyReader",
	}
}

// convertEvent maps a Google event onto the shared record. calendarTZ fills in
// missing timezones, which Google omits when the event uses the calendar's zone.
func convertEvent(item *calendar.Event, calendarTZ string) events.Event {
	e := events.Event{
		ID:               item.Id,
		Title:            item.Summary,
		Description:      item.Description,
		Location:         item.Location,
		Recurrence:       item.Recurrence,
		RecurringEventID: item.RecurringEventId,
		IsCancelled:      item.Status == statusCancelled,
		Transparency:     item.Transparency,
		ColorID:          events.NormalizeColorID(item.ColorId),
	}
	if e.Transparency == "" {
		e.Transparency = events.TransparencyOpaque
	}

	var allDay bool
	e.Start, allDay = convertTime(item.Start, calendarTZ)
	e.End, _ = convertTime(item.End, calendarTZ)
	e.IsAllDay = allDay
	e.IsRecurring = events.FirstRule(item.Recurrence) != ""

	if item.OriginalStartTime != nil {
		orig, _ := convertTime(item.OriginalStartTime, calendarTZ)
		e.OriginalStart = &orig
		e.IsException = item.RecurringEventId != ""
	}

	if item.Organizer != nil && item.Organizer.Email != "" {
		e.Organizer = &events.Attendee{Email: item.Organizer.Email, Name: item.Organizer.DisplayName}
	}
	for _, a := range item.Attendees {
		if a.Resource {
			continue
		}
		e.Attendees = append(e.Attendees, events.Attendee{Email: a.Email, Name: a.DisplayName})
	}
	return e
}

func convertTime(t *calendar.EventDateTime, fallbackTZ string) (events.EventTime, bool) {
	if t == nil {
		return events.EventTime{}, false
	}
	tz := t.TimeZone
	if tz == "" {
		tz = fallbackTZ
	}
	if t.Date != "" {
		return events.EventTime{DateTime: t.Date, TimeZone: tz}, true
	}
	return events.EventTime{DateTime: t.DateTime, TimeZone: tz}, false
}

// toGoogleEvent renders e for insert or update. When base is set the result
// starts from it so unmodelled fields survive the update.
func toGoogleEvent(e events.Event, base *calendar.Event) (*calendar.Event, error) {
	out := &calendar.Event{}
	if base != nil {
		copied := *base
		out = &copied
	}

	start, err := toGoogleTime(e.Start, e.IsAllDay)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	end, err := toGoogleTime(e.End, e.IsAllDay)
	if err != nil {
		return nil, fmt.Errorf("invalid end: %w", err)
	}

	out.Summary = e.Title
	out.Description = e.Description
	out.Location = e.Location
	out.Start = start
	out.End = end
	out.Transparency = e.Transparency
	out.ColorId = events.GoogleColorID(e.ColorID)
	if e.Recurrence != nil {
		out.Recurrence = e.Recurrence
	}

	out.Attendees = nil
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, &calendar.EventAttendee{Email: a.Email, DisplayName: a.Name})
	}
	return out, nil
}

func toGoogleTime(t events.EventTime, allDay bool) (*calendar.EventDateTime, error) {
	parsed, err := t.Time(time.UTC)
	if err != nil {
		return nil, err
	}
	if allDay {
		return &calendar.EventDateTime{Date: parsed.Format(util.CivilDate)}, nil
	}
	return &calendar.EventDateTime{DateTime: parsed.Format(time.RFC3339), TimeZone: t.TimeZone}, nil
}

package icsfeed

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/recurrence"
)

// ProductID identifies exported calendars.
const ProductID = "-//calmerge//occurrences//EN"

// Export writes occurrences as a flat iCalendar with one VEVENT per
// occurrence. Recurring series are not re-folded into RRULEs.
func Export(w io.Writer, name string, occs []recurrence.Occurrence, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, o := range occs {
		uid := o.ID
		if o.CalendarID != "" {
			uid = o.CalendarID + "/" + o.ID
		}
		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(now)
		if o.IsAllDay {
			ev.SetAllDayStartAt(o.StartTime)
			ev.SetAllDayEndAt(o.EndTime)
		} else {
			ev.SetStartAt(o.StartTime)
			ev.SetEndAt(o.EndTime)
		}
		if o.Title != "" {
			ev.SetSummary(o.Title)
		}
		if o.Description != "" {
			ev.SetDescription(o.Description)
		}
		if o.Location != "" {
			ev.SetLocation(o.Location)
		}
		if o.Transparency == events.TransparencyTransparent {
			ev.SetProperty(ical.ComponentPropertyTransp, "TRANSPARENT")
		}
		if c := events.ResolveColor(o.Event); c != "" {
			ev.SetProperty(propColor, c)
		}
		for _, a := range o.OrderedAttendees() {
			if a.Email == "" {
				continue
			}
			if o.Organizer != nil && a.Email == o.Organizer.Email {
				ev.SetOrganizer("mailto:" + a.Email)
				continue
			}
			ev.AddAttendee("mailto:" + a.Email)
		}
	}

	return cal.SerializeTo(w)
}

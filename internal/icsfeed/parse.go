package icsfeed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"

	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/recurrence"
	"github.com/dtorcivia/calmerge/internal/util"
)

// Feed is a parsed subscription.
type Feed struct {
	Name     string
	TimeZone string
	Events   []events.Event
}

const (
	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
	propDuration     = ical.ComponentProperty("DURATION")
	propColor        = ical.ComponentProperty("COLOR")
)

// Parse decodes an iCalendar body. Series become recurring masters, RECURRENCE-ID
// overrides become exceptions and each EXDATE becomes a cancellation record.
// Floating times are read in fallback, or the feed's X-WR-TIMEZONE when set.
func Parse(body []byte, fallback *time.Location) (*Feed, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty feed body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	feed := &Feed{}
	for _, p := range cal.CalendarProperties {
		switch strings.ToUpper(p.IANAToken) {
		case "X-WR-CALNAME", "NAME":
			if feed.Name == "" {
				feed.Name = p.Value
			}
		case "X-WR-TIMEZONE":
			feed.TimeZone = strings.TrimSpace(p.Value)
		}
	}
	loc := util.LoadLocation(feed.TimeZone, fallback)

	for _, ve := range cal.Events() {
		evs, err := convertVEvent(ve, loc)
		if err != nil {
			util.Debug("Skipping feed event", "error", err)
			continue
		}
		feed.Events = append(feed.Events, evs...)
	}
	return feed, nil
}

type icalTime struct {
	t      time.Time
	tz     string
	allDay bool
}

// parseProp reads a DATE or DATE-TIME property honouring VALUE and TZID.
func parseProp(p *ical.IANAProperty, fallback *time.Location) (icalTime, error) {
	if p == nil || strings.TrimSpace(p.Value) == "" {
		return icalTime{}, errors.New("missing value")
	}
	return parseValue(p.Value, p.ICalParameters, fallback)
}

func parseValue(value string, params map[string][]string, fallback *time.Location) (icalTime, error) {
	value = strings.TrimSpace(value)
	loc := fallback
	tz := fallback.String()
	if tzids := params["TZID"]; len(tzids) > 0 {
		loc = util.LoadLocation(tzids[0], fallback)
		tz = loc.String()
	}

	allDay := !strings.Contains(value, "T")
	if vs := params["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	if strings.HasSuffix(value, "Z") {
		tz = "UTC"
		loc = time.UTC
	}

	t, err := util.ParseICalTime(value, loc)
	if err != nil {
		return icalTime{}, err
	}
	return icalTime{t: t.In(loc), tz: tz, allDay: allDay}, nil
}

func (it icalTime) eventTime() events.EventTime {
	if it.allDay {
		return events.EventTime{DateTime: it.t.Format(util.CivilDate), TimeZone: it.tz}
	}
	return events.EventTime{DateTime: util.FormatCivil(it.t), TimeZone: it.tz}
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func convertVEvent(ve *ical.VEvent, loc *time.Location) ([]events.Event, error) {
	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return nil, errors.New("missing UID")
	}

	start, err := parseProp(ve.GetProperty(ical.ComponentPropertyDtStart), loc)
	if err != nil {
		return nil, fmt.Errorf("event %s: invalid DTSTART: %w", uid, err)
	}
	end, err := eventEnd(ve, start, loc)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", uid, err)
	}

	e := events.Event{
		ID:           uid,
		Title:        propValue(ve, ical.ComponentPropertySummary),
		Description:  propValue(ve, ical.ComponentPropertyDescription),
		Location:     propValue(ve, ical.ComponentPropertyLocation),
		Start:        start.eventTime(),
		End:          end.eventTime(),
		IsAllDay:     start.allDay,
		IsCancelled:  strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), "CANCELLED"),
		Transparency: events.TransparencyOpaque,
		CustomColor:  cssColor(propValue(ve, propColor)),
	}
	if strings.EqualFold(propValue(ve, ical.ComponentPropertyTransp), "TRANSPARENT") {
		e.Transparency = events.TransparencyTransparent
	}
	if org := ve.GetProperty(ical.ComponentPropertyOrganizer); org != nil {
		a := attendee(org)
		e.Organizer = &a
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		e.Attendees = append(e.Attendees, attendee(p))
	}

	if rid := ve.GetProperty(propRecurrenceID); rid != nil {
		orig, err := parseProp(rid, loc)
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid RECURRENCE-ID: %w", uid, err)
		}
		origTime := orig.eventTime()
		e.ID = recurrence.OccurrenceID(uid, orig.t, orig.allDay)
		e.RecurringEventID = uid
		e.IsException = true
		e.OriginalStart = &origTime
		return []events.Event{e}, nil
	}

	rule := propValue(ve, ical.ComponentPropertyRrule)
	if rule == "" {
		return []events.Event{e}, nil
	}
	e.IsRecurring = true
	e.Recurrence = []string{"RRULE:" + rule}

	out := []events.Event{e}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			ex, err := parseValue(part, p.ICalParameters, start.t.Location())
			if err != nil {
				util.Debug("Skipping invalid EXDATE", "event_id", uid, "value", part)
				continue
			}
			origTime := ex.eventTime()
			out = append(out, events.Event{
				ID:               recurrence.OccurrenceID(uid, ex.t, start.allDay),
				RecurringEventID: uid,
				IsCancelled:      true,
				IsAllDay:         start.allDay,
				OriginalStart:    &origTime,
			})
		}
	}
	return out, nil
}

// eventEnd reads DTEND, then DURATION, defaulting to one day for all-day
// events and zero length otherwise.
func eventEnd(ve *ical.VEvent, start icalTime, loc *time.Location) (icalTime, error) {
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		end, err := parseProp(p, loc)
		if err != nil {
			return icalTime{}, fmt.Errorf("invalid DTEND: %w", err)
		}
		return end, nil
	}
	if raw := propValue(ve, propDuration); raw != "" {
		d, err := parseDuration(raw)
		if err != nil {
			return icalTime{}, fmt.Errorf("invalid DURATION: %w", err)
		}
		return icalTime{t: start.t.Add(d), tz: start.tz, allDay: start.allDay}, nil
	}
	if start.allDay {
		return icalTime{t: start.t.AddDate(0, 0, 1), tz: start.tz, allDay: true}, nil
	}
	return start, nil
}

// parseDuration handles the RFC 5545 dur-value forms, e.g. PT1H30M or P1D.
func parseDuration(raw string) (time.Duration, error) {
	prop := goical.NewProp(goical.PropDuration)
	prop.Value = strings.TrimSpace(raw)
	return prop.Duration()
}

func attendee(p *ical.IANAProperty) events.Attendee {
	email := strings.TrimSpace(p.Value)
	if len(email) > len("mailto:") && strings.EqualFold(email[:len("mailto:")], "mailto:") {
		email = email[len("mailto:"):]
	}
	a := events.Attendee{Email: email}
	if cn := p.ICalParameters["CN"]; len(cn) > 0 {
		a.Name = strings.Trim(cn[0], `"`)
	}
	return a
}

// cssColor keeps #RRGGBB colours and drops CSS names, which the UI cannot map.
func cssColor(v string) string {
	if util.ValidateHexColor(v) == nil {
		return v
	}
	return ""
}

package icsfeed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/recurrence"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimLeft(s, "\n"), "\n", "\r\n"))
}

var sampleFeed = crlf(`
BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
X-WR-CALNAME:Team
X-WR-TIMEZONE:Europe/Berlin
BEGIN:VEVENT
UID:series-1
DTSTAMP:20240101T000000Z
DTSTART;TZID=Europe/Berlin:20240101T090000
DTEND;TZID=Europe/Berlin:20240101T093000
RRULE:FREQ=WEEKLY;BYDAY=MO
EXDATE;TZID=Europe/Berlin:20240115T090000
SUMMARY:Standup
ORGANIZER;CN=Boss:mailto:boss@example.com
ATTENDEE;CN=Dev:mailto:dev@example.com
END:VEVENT
BEGIN:VEVENT
UID:series-1
DTSTAMP:20240101T000000Z
RECURRENCE-ID;TZID=Europe/Berlin:20240108T090000
DTSTART;TZID=Europe/Berlin:20240108T100000
DTEND;TZID=Europe/Berlin:20240108T103000
SUMMARY:Standup (moved)
END:VEVENT
BEGIN:VEVENT
UID:holiday
DTSTAMP:20240101T000000Z
DTSTART;VALUE=DATE:20240103
SUMMARY:Holiday
TRANSP:TRANSPARENT
COLOR:#ff0000
END:VEVENT
BEGIN:VEVENT
UID:workshop
DTSTAMP:20240101T000000Z
DTSTART:20240104T130000Z
DURATION:PT2H
SUMMARY:Workshop
END:VEVENT
BEGIN:VEVENT
UID:dropped
DTSTAMP:20240101T000000Z
DTSTART:20240105T130000Z
STATUS:CANCELLED
END:VEVENT
BEGIN:VEVENT
UID:broken
DTSTAMP:20240101T000000Z
SUMMARY:No start
END:VEVENT
END:VCALENDAR
`)

func byID(evs []events.Event) map[string]events.Event {
	out := make(map[string]events.Event, len(evs))
	for _, e := range evs {
		out[e.ID] = e
	}
	return out
}

func TestParse(t *testing.T) {
	feed, err := Parse(sampleFeed, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, "Team", feed.Name)
	assert.Equal(t, "Europe/Berlin", feed.TimeZone)

	evs := byID(feed.Events)
	assert.Len(t, evs, 6)

	master := evs["series-1"]
	assert.True(t, master.IsRecurring)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;BYDAY=MO"}, master.Recurrence)
	assert.Equal(t, events.EventTime{DateTime: "2024-01-01T09:00:00", TimeZone: "Europe/Berlin"}, master.Start)
	require.NotNil(t, master.Organizer)
	assert.Equal(t, "boss@example.com", master.Organizer.Email)
	assert.Equal(t, "Boss", master.Organizer.Name)
	require.Len(t, master.Attendees, 1)
	assert.Equal(t, "Dev", master.Attendees[0].Name)

	cancel, ok := evs["series-1_20240115T080000Z"]
	require.True(t, ok, "EXDATE should become a cancellation")
	assert.True(t, cancel.IsCancelled)
	assert.Equal(t, "series-1", cancel.RecurringEventID)

	moved, ok := evs["series-1_20240108T080000Z"]
	require.True(t, ok, "RECURRENCE-ID should become an exception")
	assert.True(t, moved.IsException)
	assert.Equal(t, "Standup (moved)", moved.Title)

	holiday := evs["holiday"]
	assert.True(t, holiday.IsAllDay)
	assert.Equal(t, "2024-01-04", holiday.End.DateTime)
	assert.Equal(t, events.TransparencyTransparent, holiday.Transparency)
	assert.Equal(t, "#ff0000", holiday.CustomColor)

	workshop := evs["workshop"]
	assert.Equal(t, events.EventTime{DateTime: "2024-01-04T15:00:00", TimeZone: "UTC"}, workshop.End)

	assert.True(t, evs["dropped"].IsCancelled)
	_, hasBroken := evs["broken"]
	assert.False(t, hasBroken)
}

func TestParse_ExpandsWithOverrides(t *testing.T) {
	feed, err := Parse(sampleFeed, time.UTC)
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC)
	occs := recurrence.Expand(feed.Events, start, end)

	var standups []string
	for _, o := range occs {
		if o.RecurringEventID == "series-1" || o.MasterID == "series-1" {
			standups = append(standups, o.ID+"|"+o.Title)
		}
	}
	assert.ElementsMatch(t, []string{
		"series-1_20240101T080000Z|Standup",
		"series-1_20240108T080000Z|Standup (moved)",
		"series-1_20240122T080000Z|Standup",
	}, standups)
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse(nil, time.UTC)
	assert.Error(t, err)
	_, err = Parse([]byte("   "), time.UTC)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"PT1H30M": 90 * time.Minute,
		"P1D":     24 * time.Hour,
		"P1W":     7 * 24 * time.Hour,
		"-PT15M":  -15 * time.Minute,
	}
	for in, want := range tests {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseDuration("1H")
	assert.Error(t, err)
}

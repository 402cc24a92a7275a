package recurrence

import (
	"io"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/util"
)

func quietLogger() *util.Logger {
	l := util.NewLogger("debug", "json")
	l.SetOutput(io.Discard)
	return l
}

func mustUTC(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func mondayStandup() events.Event {
	return events.Event{
		ID:          "m1",
		Title:       "Standup",
		Start:       events.EventTime{DateTime: "2024-01-01T09:00:00", TimeZone: "America/New_York"},
		End:         events.EventTime{DateTime: "2024-01-01T09:30:00", TimeZone: "America/New_York"},
		IsRecurring: true,
		Recurrence:  []string{"RRULE:FREQ=WEEKLY;BYDAY=MO"},
	}
}

func ids(occs []Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.ID)
	}
	sort.Strings(out)
	return out
}

func expand(t *testing.T, raw []events.Event, start, end string, opts ...Option) []Occurrence {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return Expand(raw, mustUTC(t, start), mustUTC(t, end), opts...)
}

func TestExpand_WeeklyInTwoWeekWindow(t *testing.T) {
	occs := expand(t, []events.Event{mondayStandup()}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")

	require.Len(t, occs, 2)
	sort.Slice(occs, func(i, j int) bool { return occs[i].StartTime.Before(occs[j].StartTime) })
	assert.Equal(t, 7*24*time.Hour, occs[1].StartTime.Sub(occs[0].StartTime))
	assert.Equal(t, "m1_20240101T140000Z", occs[0].ID)
	assert.Equal(t, "m1_20240108T140000Z", occs[1].ID)

	for _, o := range occs {
		assert.Equal(t, "m1", o.MasterID)
		assert.True(t, o.Synthetic())
		assert.Equal(t, "Standup", o.Title)
		assert.Equal(t, 30*time.Minute, o.EndTime.Sub(o.StartTime))
		assert.Equal(t, "America/New_York", o.Start.TimeZone)
	}
	assert.Equal(t, "2024-01-08T09:00:00", occs[1].Start.DateTime)
	assert.Equal(t, "2024-01-08T09:30:00", occs[1].End.DateTime)
}

func TestExpand_WindowBoundsAreInclusive(t *testing.T) {
	occs := expand(t, []events.Event{mondayStandup()}, "2024-01-01T14:00:00Z", "2024-01-08T14:00:00Z")
	assert.Equal(t, []string{"m1_20240101T140000Z", "m1_20240108T140000Z"}, ids(occs))

	occs = expand(t, []events.Event{mondayStandup()}, "2024-01-01T14:00:01Z", "2024-01-08T13:59:59Z")
	assert.Empty(t, occs)
}

func TestExpand_IsIdempotent(t *testing.T) {
	raw := []events.Event{mondayStandup()}
	first := expand(t, raw, "2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z")
	second := expand(t, raw, "2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z")
	assert.Equal(t, ids(first), ids(second))
	assert.Len(t, first, 5)
}

func TestExpand_ExceptionReplacesItsDate(t *testing.T) {
	exception := events.Event{
		ID:               "x1",
		Title:            "Standup (moved)",
		Start:            events.EventTime{DateTime: "2024-01-08T10:00:00", TimeZone: "America/New_York"},
		End:              events.EventTime{DateTime: "2024-01-08T10:30:00", TimeZone: "America/New_York"},
		IsException:      true,
		RecurringEventID: "m1",
		OriginalStart:    &events.EventTime{DateTime: "2024-01-08T09:00:00", TimeZone: "America/New_York"},
	}

	occs := expand(t, []events.Event{mondayStandup(), exception}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")
	assert.Equal(t, []string{"m1_20240101T140000Z", "x1"}, ids(occs))

	for _, o := range occs {
		if o.ID == "x1" {
			assert.False(t, o.Synthetic())
			assert.True(t, mustUTC(t, "2024-01-08T15:00:00Z").Equal(o.StartTime))
		}
	}
}

func TestExpand_CancellationRemovesDate(t *testing.T) {
	cancel := events.Event{
		ID:               "c1",
		IsCancelled:      true,
		RecurringEventID: "m1",
		OriginalStart:    &events.EventTime{DateTime: "2024-01-08T09:00:00", TimeZone: "America/New_York"},
	}
	occs := expand(t, []events.Event{mondayStandup(), cancel}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")
	assert.Equal(t, []string{"m1_20240101T140000Z"}, ids(occs))
}

func TestExpand_MasterExDateLines(t *testing.T) {
	m := mondayStandup()
	m.Recurrence = []string{"RRULE:FREQ=WEEKLY;BYDAY=MO", "EXDATE;TZID=America/New_York:20240108T090000"}
	occs := expand(t, []events.Event{m}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")
	assert.Equal(t, []string{"m1_20240101T140000Z"}, ids(occs))

	// UTC values, several per line.
	m.Recurrence = []string{"RRULE:FREQ=WEEKLY;BYDAY=MO", "EXDATE:20240101T140000Z,20240115T140000Z"}
	occs = expand(t, []events.Event{m}, "2024-01-01T00:00:00Z", "2024-01-21T23:59:59Z")
	assert.Equal(t, []string{"m1_20240108T140000Z"}, ids(occs))

	// A date-only value removes that day's instance.
	m.Recurrence = []string{"RRULE:FREQ=WEEKLY;BYDAY=MO", "EXDATE;VALUE=DATE:20240108"}
	occs = expand(t, []events.Event{m}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")
	assert.Equal(t, []string{"m1_20240101T140000Z"}, ids(occs))
}

func TestExpand_MasterExDateOnAllDaySeries(t *testing.T) {
	master := events.Event{
		ID:          "holiday",
		Start:       events.EventTime{DateTime: "2024-01-01", TimeZone: "America/New_York"},
		End:         events.EventTime{DateTime: "2024-01-02", TimeZone: "America/New_York"},
		IsAllDay:    true,
		IsRecurring: true,
		Recurrence:  []string{"RRULE:FREQ=DAILY;COUNT=3", "EXDATE;VALUE=DATE:20240102"},
	}
	occs := expand(t, []events.Event{master}, "2024-01-01T00:00:00Z", "2024-01-10T00:00:00Z")
	assert.Equal(t, []string{"holiday_20240101", "holiday_20240103"}, ids(occs))
}

func TestExpand_MasterRDateLines(t *testing.T) {
	m := mondayStandup()
	m.Recurrence = []string{"RRULE:FREQ=WEEKLY;BYDAY=MO;COUNT=1", "RDATE;TZID=America/New_York:20240110T090000"}
	occs := expand(t, []events.Event{m}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")
	assert.Equal(t, []string{"m1_20240101T140000Z", "m1_20240110T140000Z"}, ids(occs))
}

func TestExpand_IterationLimitBoundsWork(t *testing.T) {
	m := mondayStandup()
	m.Start = events.EventTime{DateTime: "2023-06-01T00:00:00Z", TimeZone: "UTC"}
	m.End = events.EventTime{DateTime: "2023-06-01T00:00:01Z", TimeZone: "UTC"}
	m.Recurrence = []string{"RRULE:FREQ=SECONDLY"}

	// The window is far past what the limit lets the iterator reach.
	occs := expand(t, []events.Event{m}, "2024-01-01T00:00:00Z", "2024-01-01T00:00:10Z", WithMaxIterations(1000))
	assert.Empty(t, occs)

	// Instants walked before the window count against the limit too.
	occs = expand(t, []events.Event{m}, "2023-06-01T00:00:00Z", "2023-06-01T00:00:10Z", WithMaxIterations(1000))
	assert.Len(t, occs, 11)
	occs = expand(t, []events.Event{m}, "2023-06-01T00:20:00Z", "2023-06-01T00:20:10Z", WithMaxIterations(1000))
	assert.Empty(t, occs)
}

func TestExpand_ExclusionAcrossTimezones(t *testing.T) {
	// Same instant as 09:00 New York, expressed in UTC.
	cancel := events.Event{
		ID:               "c1",
		IsCancelled:      true,
		RecurringEventID: "m1",
		OriginalStart:    &events.EventTime{DateTime: "2024-01-08T14:00:00Z", TimeZone: "UTC"},
	}
	occs := expand(t, []events.Event{mondayStandup(), cancel}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")
	assert.Equal(t, []string{"m1_20240101T140000Z"}, ids(occs))

	cancel.OriginalStart = &events.EventTime{DateTime: "2024-01-08T15:00:00+01:00"}
	occs = expand(t, []events.Event{mondayStandup(), cancel}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")
	assert.Equal(t, []string{"m1_20240101T140000Z"}, ids(occs))
}

func TestExpand_ExclusionForOtherMasterIgnored(t *testing.T) {
	cancel := events.Event{
		ID:               "c1",
		IsCancelled:      true,
		RecurringEventID: "someone-else",
		OriginalStart:    &events.EventTime{DateTime: "2024-01-08T14:00:00Z"},
	}
	occs := expand(t, []events.Event{mondayStandup(), cancel}, "2024-01-01T00:00:00Z", "2024-01-14T23:59:59Z")
	assert.Len(t, occs, 2)
}

func TestExpand_KeepsWallClockAcrossDST(t *testing.T) {
	occs := expand(t, []events.Event{mondayStandup()}, "2024-03-04T00:00:00Z", "2024-03-12T00:00:00Z")
	assert.Equal(t, []string{"m1_20240304T140000Z", "m1_20240311T130000Z"}, ids(occs))
}

func TestExpand_PlainAndCancelledRecords(t *testing.T) {
	plain := events.Event{
		ID:    "p1",
		Start: events.EventTime{DateTime: "2024-01-03T12:00:00Z"},
		End:   events.EventTime{DateTime: "2024-01-03T13:00:00Z"},
	}
	dropped := events.Event{ID: "gone", IsCancelled: true}

	occs := expand(t, []events.Event{plain, dropped}, "2024-01-01T00:00:00Z", "2024-01-14T00:00:00Z")
	require.Len(t, occs, 1)
	assert.Equal(t, "p1", occs[0].ID)
	assert.Equal(t, time.Hour, occs[0].EndTime.Sub(occs[0].StartTime))
}

func TestExpand_SkipsUnusableMasters(t *testing.T) {
	malformed := mondayStandup()
	malformed.ID = "bad-rule"
	malformed.Recurrence = []string{"RRULE:FREQ=SOMETIMES"}

	noRule := mondayStandup()
	noRule.ID = "no-rule"
	noRule.Recurrence = []string{"EXDATE:20240108T140000Z"}

	noTZ := mondayStandup()
	noTZ.ID = "no-tz"
	noTZ.Start.TimeZone = ""

	plain := events.Event{ID: "p1", Start: events.EventTime{DateTime: "2024-01-03T12:00:00Z"}}

	occs := expand(t, []events.Event{malformed, noRule, noTZ, plain, mondayStandup()},
		"2024-01-01T00:00:00Z", "2024-01-07T00:00:00Z")
	assert.Equal(t, []string{"m1_20240101T140000Z", "p1"}, ids(occs))
}

func TestExpand_EndInheritsStartTimezone(t *testing.T) {
	m := mondayStandup()
	m.End.TimeZone = ""
	occs := expand(t, []events.Event{m}, "2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z")
	require.Len(t, occs, 1)
	assert.Equal(t, 30*time.Minute, occs[0].EndTime.Sub(occs[0].StartTime))
}

func TestExpand_AllDaySeries(t *testing.T) {
	master := events.Event{
		ID:          "holiday",
		Start:       events.EventTime{DateTime: "2024-01-01", TimeZone: "America/New_York"},
		End:         events.EventTime{DateTime: "2024-01-02", TimeZone: "America/New_York"},
		IsAllDay:    true,
		IsRecurring: true,
		Recurrence:  []string{"RRULE:FREQ=DAILY;COUNT=3"},
	}
	// UTC midnight names the same civil day for all-day exclusions.
	cancel := events.Event{
		ID:               "c1",
		IsCancelled:      true,
		IsAllDay:         true,
		RecurringEventID: "holiday",
		OriginalStart:    &events.EventTime{DateTime: "2024-01-02T00:00:00Z"},
	}

	occs := expand(t, []events.Event{master, cancel}, "2024-01-01T00:00:00Z", "2024-01-10T00:00:00Z")
	assert.Equal(t, []string{"holiday_20240101", "holiday_20240103"}, ids(occs))
	for _, o := range occs {
		assert.True(t, o.IsAllDay)
		assert.Len(t, o.Start.DateTime, len("2006-01-02"))
		assert.True(t, o.StartTime.AddDate(0, 0, 1).Equal(o.EndTime))
	}
}

func TestExpand_CapsOccurrences(t *testing.T) {
	daily := mondayStandup()
	daily.Recurrence = []string{"RRULE:FREQ=DAILY"}
	occs := expand(t, []events.Event{daily}, "2024-01-01T00:00:00Z", "2024-03-01T00:00:00Z", WithMaxOccurrences(3))
	assert.Len(t, occs, 3)
}

func TestExpand_RespectsUntil(t *testing.T) {
	m := mondayStandup()
	m.Recurrence = []string{"RRULE:FREQ=WEEKLY;BYDAY=MO;UNTIL=20240109T000000Z"}
	occs := expand(t, []events.Event{m}, "2024-01-01T00:00:00Z", "2024-02-01T00:00:00Z")
	assert.Len(t, occs, 2)
}

func TestOccurrenceID(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, loc)
	assert.Equal(t, "m_20240601T080000Z", OccurrenceID("m", at, false))
	assert.Equal(t, "m_20240601", OccurrenceID("m", at, true))
}

func TestPassthrough_DropsMastersAndCancellations(t *testing.T) {
	raw := []events.Event{
		{ID: "m1", IsRecurring: true, Recurrence: []string{"RRULE:FREQ=DAILY"},
			Start: events.EventTime{DateTime: "2024-01-01T09:00:00", TimeZone: "UTC"},
			End:   events.EventTime{DateTime: "2024-01-01T10:00:00", TimeZone: "UTC"}},
		{ID: "m1_20240102T090000Z", RecurringEventID: "m1",
			Start: events.EventTime{DateTime: "2024-01-02T09:00:00", TimeZone: "UTC"},
			End:   events.EventTime{DateTime: "2024-01-02T10:00:00", TimeZone: "UTC"}},
		{ID: "m1_20240103T090000Z", RecurringEventID: "m1", IsCancelled: true},
	}

	out := Passthrough(raw)
	require.Len(t, out, 1)
	assert.Equal(t, "m1_20240102T090000Z", out[0].ID)
	assert.False(t, out[0].Synthetic())
	assert.True(t, out[0].StartTime.Equal(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)))
}

package util

import (
	"errors"
	"fmt"
	"strings"
	"time"
	// Embed timezone database for containers without tzdata
	_ "time/tzdata"
)

// Layouts used across providers and the recurrence engine.
const (
	ICalDateTimeUTC = "20060102T150405Z"
	ICalDateTime    = "20060102T150405"
	ICalDate        = "20060102"
	CivilDateTime   = "2006-01-02T15:04:05"
	CivilDate       = "2006-01-02"
)

// ErrInvalidTime is returned when an event time string matches no known layout.
var ErrInvalidTime = errors.New("invalid time format")

// LoadLocation resolves an IANA timezone name, returning fallback for empty or
// unknown names. A nil fallback means UTC.
func LoadLocation(name string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

// ParseEventTime parses a provider dateTime value. RFC3339 values keep their
// instant and are moved into loc; civil values are read as wall time in loc.
// dateOnly is true for plain dates.
func ParseEventTime(value string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, ErrInvalidTime
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.In(loc), false, nil
	}
	for _, layout := range []string{CivilDateTime, "2006-01-02T15:04", "2006-01-02T15:04:05.000"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation(CivilDate, value, loc); err == nil {
		return t, true, nil
	}
	if t, err := ParseICalTime(value, loc); err == nil {
		return t, len(value) == len(ICalDate), nil
	}

	return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidTime, value)
}

// ParseICalTime parses the basic iCalendar forms: UTC date-time, floating
// date-time (read in loc) and date.
func ParseICalTime(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	switch {
	case strings.HasSuffix(value, "Z"):
		return time.Parse(ICalDateTimeUTC, value)
	case strings.Contains(value, "T"):
		return time.ParseInLocation(ICalDateTime, value, loc)
	default:
		return time.ParseInLocation(ICalDate, value, loc)
	}
}

// FormatICalUTC formats an instant as 20060102T150405Z.
func FormatICalUTC(t time.Time) string {
	return t.UTC().Format(ICalDateTimeUTC)
}

// FormatCivil formats wall time in the time's own location without an offset.
func FormatCivil(t time.Time) string {
	return t.Format(CivilDateTime)
}

// StartOfDay returns midnight of t's civil date in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate reports whether a and b share a civil date in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// FormatRFC3339 formats a time as RFC3339 in UTC.
func FormatRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// SQLiteTimestamp formats a time for SQLite (ISO8601).
func SQLiteTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// ParseSQLiteTimestamp parses a SQLite timestamp.
func ParseSQLiteTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05", s)
}

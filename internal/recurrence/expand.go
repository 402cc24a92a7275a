// Package recurrence expands recurring series into concrete occurrences and
// builds recurrence rules from editor selections.
package recurrence

import (
	"math"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/dtorcivia/calmerge/internal/events"
	"github.com/dtorcivia/calmerge/internal/util"
)

// DefaultMaxOccurrences bounds the instances generated for one master.
const DefaultMaxOccurrences = 5000

// DefaultMaxIterations bounds the rule instants walked for one master,
// including those before the window.
const DefaultMaxIterations = 500000

// Occurrence is a renderable event: either a record emitted as-is or an
// instance synthesized from a master. Occurrences are never persisted.
type Occurrence struct {
	events.Event

	// MasterID is set on synthesized instances.
	MasterID string `json:"masterId,omitempty"`
	// Color is the resolved display colour.
	Color string `json:"color,omitempty"`

	StartTime time.Time `json:"-"`
	EndTime   time.Time `json:"-"`
}

// Synthetic reports whether o was generated from a master.
func (o Occurrence) Synthetic() bool {
	return o.MasterID != ""
}

type options struct {
	maxOccurrences int
	maxIterations  int
	fallback       *time.Location
	logger         *util.Logger
}

// Option configures Expand.
type Option func(*options)

// WithMaxOccurrences caps the instances generated per master.
func WithMaxOccurrences(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOccurrences = n
		}
	}
}

// WithMaxIterations caps the rule instants walked per master.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithFallbackLocation sets the timezone for times that name none.
func WithFallbackLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.fallback = loc
		}
	}
}

// WithLogger sets the logger for skipped masters and truncation.
func WithLogger(l *util.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Expand flattens raw into occurrences within [windowStart, windowEnd], both
// bounds inclusive. Cancelled records are dropped, non-recurring records are
// emitted unchanged and each master is replaced by its instances minus the
// dates overridden by exceptions or removed by cancellations. Masters that
// cannot be expanded are logged and skipped. Output order is unspecified.
func Expand(raw []events.Event, windowStart, windowEnd time.Time, opts ...Option) []Occurrence {
	o := options{
		maxOccurrences: DefaultMaxOccurrences,
		maxIterations:  DefaultMaxIterations,
		fallback:       time.UTC,
		logger:         util.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		masters    []events.RecurringMaster
		out        []Occurrence
		exclusions = make(map[string][]events.EventTime)
	)

	for _, e := range raw {
		v, err := events.Classify(e, o.fallback)
		if err != nil {
			o.logger.Debug("Skipping recurring event", "event_id", e.ID, "error", err)
			continue
		}

		switch v := v.(type) {
		case events.CancellationInstance:
			if v.MasterID != "" && !v.OriginalStart.IsZero() {
				exclusions[v.MasterID] = append(exclusions[v.MasterID], v.OriginalStart)
			}
		case events.ExceptionInstance:
			if !v.OriginalStart.IsZero() {
				exclusions[v.MasterID] = append(exclusions[v.MasterID], v.OriginalStart)
			}
			out = append(out, direct(v.Record, o.fallback))
		case events.RecurringMaster:
			masters = append(masters, v)
		case events.Plain:
			out = append(out, direct(v.Record, o.fallback))
		}
	}

	for _, m := range masters {
		out = append(out, expandMaster(m, exclusions[m.Record.ID], windowStart, windowEnd, o)...)
	}
	return out
}

// Passthrough converts a batch a provider already expanded. Masters and
// cancellations are dropped so nothing is rendered twice.
func Passthrough(raw []events.Event, opts ...Option) []Occurrence {
	o := options{fallback: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	out := make([]Occurrence, 0, len(raw))
	for _, e := range raw {
		if e.IsCancelled || e.IsRecurring {
			continue
		}
		out = append(out, direct(e, o.fallback))
	}
	return out
}

func direct(e events.Event, fallback *time.Location) Occurrence {
	occ := Occurrence{Event: e}
	if t, err := e.Start.Time(fallback); err == nil {
		occ.StartTime = t
	}
	endFallback := e.Start.Location(fallback)
	if t, err := e.End.Time(endFallback); err == nil {
		occ.EndTime = t
	}
	return occ
}

func expandMaster(m events.RecurringMaster, excluded []events.EventTime, windowStart, windowEnd time.Time, o options) []Occurrence {
	allDay := m.Record.IsAllDay
	log := o.logger.With("event_id", m.Record.ID)

	opt, ok := parseOption(m.Rule)
	if !ok {
		log.Warn("Skipping malformed recurrence rule", "rule", m.Rule)
		return nil
	}
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		log.Warn("Skipping malformed recurrence rule", "rule", m.Rule, "error", err)
		return nil
	}
	rule.DTStart(m.Start)

	set := &rrule.Set{}
	set.RRule(rule)
	for _, d := range recurrenceDates(m.Record.Recurrence, "RDATE", m.Location) {
		t := d.value
		if d.dateOnly {
			day, _ := time.Parse(util.ICalDate, d.civil)
			clock := m.Start
			if allDay {
				clock = time.Time{}
			}
			t = time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, m.Location)
		}
		set.RDate(t)
	}

	skip := newExclusionSet(m, excluded)
	for _, d := range recurrenceDates(m.Record.Recurrence, "EXDATE", m.Location) {
		skip.add(d)
	}
	for _, t := range skip.instants {
		set.ExDate(t)
	}

	duration := m.Duration()
	days := 0
	if allDay {
		days = int(math.Round(duration.Hours() / 24))
		if days < 1 {
			days = 1
		}
	}

	var out []Occurrence
	next := set.Iterator()
	for walked := 0; ; walked++ {
		if walked >= o.maxIterations {
			log.Warn("Recurrence expansion stopped at iteration limit", "rule", m.Rule, "limit", o.maxIterations)
			break
		}
		inst, ok := next()
		if !ok || inst.After(windowEnd) {
			break
		}
		if inst.Before(windowStart) || skip.contains(inst) {
			continue
		}
		if len(out) >= o.maxOccurrences {
			log.Warn("Recurrence expansion truncated", "limit", o.maxOccurrences)
			break
		}

		inst = inst.In(m.Location)
		var end time.Time
		if allDay {
			end = inst.AddDate(0, 0, days)
		} else {
			end = inst.Add(duration)
		}
		out = append(out, synthesize(m, inst, end, allDay))
	}
	return out
}

func synthesize(m events.RecurringMaster, start, end time.Time, allDay bool) Occurrence {
	e := m.Record.Clone()
	e.ID = OccurrenceID(m.Record.ID, start, allDay)
	e.Start = events.NewEventTime(start, allDay)
	e.End = events.NewEventTime(end, allDay)
	return Occurrence{
		Event:     e,
		MasterID:  m.Record.ID,
		StartTime: start,
		EndTime:   end,
	}
}

// OccurrenceID derives the stable id of a synthesized instance.
func OccurrenceID(masterID string, start time.Time, allDay bool) string {
	if allDay {
		return masterID + "_" + start.Format(util.ICalDate)
	}
	return masterID + "_" + util.FormatICalUTC(start)
}

// exclusionSet matches timed instances by absolute second and all-day
// instances by civil date.
type exclusionSet struct {
	allDay   bool
	loc      *time.Location
	seconds  map[int64]struct{}
	dates    map[string]struct{}
	instants []time.Time
}

func newExclusionSet(m events.RecurringMaster, excluded []events.EventTime) *exclusionSet {
	s := &exclusionSet{
		allDay:  m.Record.IsAllDay,
		loc:     m.Location,
		seconds: make(map[int64]struct{}, len(excluded)),
		dates:   make(map[string]struct{}, len(excluded)),
	}
	for _, et := range excluded {
		if s.allDay {
			if d, ok := civilDateKey(et.DateTime); ok {
				s.dates[d] = struct{}{}
			}
			continue
		}
		t, err := et.Time(m.Location)
		if err != nil {
			continue
		}
		t = t.In(m.Location).Truncate(time.Second)
		s.seconds[t.Unix()] = struct{}{}
		s.instants = append(s.instants, t)
	}
	return s
}

// add records an EXDATE value. A date-only value on a timed series removes
// every instance on that civil date.
func (s *exclusionSet) add(d listedDate) {
	if s.allDay || d.dateOnly {
		s.dates[d.civil] = struct{}{}
		return
	}
	t := d.value.Truncate(time.Second)
	s.seconds[t.Unix()] = struct{}{}
	s.instants = append(s.instants, t)
}

func (s *exclusionSet) contains(t time.Time) bool {
	if _, ok := s.dates[t.In(s.loc).Format(util.ICalDate)]; ok {
		return true
	}
	if s.allDay {
		return false
	}
	_, ok := s.seconds[t.Truncate(time.Second).Unix()]
	return ok
}

// listedDate is one value of an EXDATE or RDATE line.
type listedDate struct {
	value    time.Time
	civil    string // date as written, 20060102
	dateOnly bool
}

// recurrenceDates collects the values of every name line in lines, such as
// "EXDATE;TZID=Europe/Berlin:20240108T090000,20240115T090000". Values without
// a zone are read in TZID, then loc. Unparseable values are skipped.
func recurrenceDates(lines []string, name string, loc *time.Location) []listedDate {
	var out []listedDate
	for _, line := range lines {
		line = strings.TrimSpace(line)
		head, values, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		params := strings.Split(head, ";")
		if !strings.EqualFold(params[0], name) {
			continue
		}
		valueLoc := loc
		for _, p := range params[1:] {
			if k, v, ok := strings.Cut(p, "="); ok && strings.EqualFold(k, "TZID") {
				valueLoc = util.LoadLocation(v, loc)
			}
		}
		for _, v := range strings.Split(values, ",") {
			// PERIOD values keep only their start.
			v, _, _ = strings.Cut(strings.TrimSpace(v), "/")
			if v == "" {
				continue
			}
			t, err := util.ParseICalTime(v, valueLoc)
			if err != nil {
				continue
			}
			out = append(out, listedDate{
				value:    t.In(loc),
				civil:    v[:len(util.ICalDate)],
				dateOnly: !strings.Contains(v, "T"),
			})
		}
	}
	return out
}

// civilDateKey reads the date as written, without timezone conversion, so an
// all-day exclusion sent as UTC midnight still names the intended day.
func civilDateKey(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) >= 10 && value[4] == '-' && value[7] == '-' {
		t, err := time.Parse(util.CivilDate, value[:10])
		if err != nil {
			return "", false
		}
		return t.Format(util.ICalDate), true
	}
	if len(value) >= 8 {
		if _, err := time.Parse(util.ICalDate, value[:8]); err == nil {
			return value[:8], true
		}
	}
	return "", false
}

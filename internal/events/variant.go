package events

import (
	"errors"
	"fmt"
	"time"
)

// ErrIntegrity marks a record that cannot be interpreted as its declared kind.
var ErrIntegrity = errors.New("event integrity error")

// Kind names a Variant.
type Kind string

const (
	KindPlain        Kind = "plain"
	KindMaster       Kind = "master"
	KindException    Kind = "exception"
	KindCancellation Kind = "cancellation"
)

// Variant is the typed view of an Event: exactly one of Plain,
// RecurringMaster, ExceptionInstance or CancellationInstance.
type Variant interface {
	Kind() Kind
	EventID() string
	isVariant()
}

// Plain is a standalone event, including upstream-expanded instances that are
// not flagged as exceptions.
type Plain struct {
	Record Event
}

// RecurringMaster defines a series.
type RecurringMaster struct {
	Record Event
	// Rule is the first RRULE body, e.g. "FREQ=WEEKLY;BYDAY=MO".
	Rule     string
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// Duration is fixed for the series and measured in absolute time.
func (m RecurringMaster) Duration() time.Duration {
	return m.End.Sub(m.Start)
}

// ExceptionInstance overrides one occurrence of a series and renders standalone.
type ExceptionInstance struct {
	Record        Event
	MasterID      string
	OriginalStart EventTime
}

// CancellationInstance removes one occurrence of a series, or a whole event
// when MasterID is empty. It never renders.
type CancellationInstance struct {
	ID            string
	MasterID      string
	OriginalStart EventTime
	AllDay        bool
}

func (Plain) Kind() Kind                { return KindPlain }
func (RecurringMaster) Kind() Kind      { return KindMaster }
func (ExceptionInstance) Kind() Kind    { return KindException }
func (CancellationInstance) Kind() Kind { return KindCancellation }

func (v Plain) EventID() string                { return v.Record.ID }
func (v RecurringMaster) EventID() string      { return v.Record.ID }
func (v ExceptionInstance) EventID() string    { return v.Record.ID }
func (v CancellationInstance) EventID() string { return v.ID }

func (Plain) isVariant()                {}
func (RecurringMaster) isVariant()      {}
func (ExceptionInstance) isVariant()    {}
func (CancellationInstance) isVariant() {}

// Classify returns the typed view of e. Cancellation wins over every other
// flag, then recurring, then exception. A master without a rule, start
// dateTime, start timeZone or end dateTime fails with ErrIntegrity.
// fallback is only used for an end time that names no timezone.
func Classify(e Event, fallback *time.Location) (Variant, error) {
	switch {
	case e.IsCancelled:
		c := CancellationInstance{ID: e.ID, MasterID: e.RecurringEventID, AllDay: e.IsAllDay}
		if e.OriginalStart != nil {
			c.OriginalStart = *e.OriginalStart
		}
		return c, nil

	case e.IsRecurring:
		return classifyMaster(e, fallback)

	case e.IsException && e.RecurringEventID != "":
		x := ExceptionInstance{Record: e, MasterID: e.RecurringEventID}
		if e.OriginalStart != nil {
			x.OriginalStart = *e.OriginalStart
		}
		return x, nil

	default:
		return Plain{Record: e}, nil
	}
}

func classifyMaster(e Event, fallback *time.Location) (Variant, error) {
	rule := FirstRule(e.Recurrence)
	if rule == "" {
		return nil, fmt.Errorf("%w: master %s has no RRULE", ErrIntegrity, e.ID)
	}
	if e.Start.IsZero() || e.Start.TimeZone == "" || e.End.IsZero() {
		return nil, fmt.Errorf("%w: master %s is missing start or end", ErrIntegrity, e.ID)
	}

	loc, err := time.LoadLocation(e.Start.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: master %s has unknown timezone %q", ErrIntegrity, e.ID, e.Start.TimeZone)
	}
	start, err := e.Start.Time(loc)
	if err != nil {
		return nil, fmt.Errorf("%w: master %s start: %v", ErrIntegrity, e.ID, err)
	}
	if e.End.TimeZone == "" {
		fallback = loc
	}
	end, err := e.End.Time(fallback)
	if err != nil {
		return nil, fmt.Errorf("%w: master %s end: %v", ErrIntegrity, e.ID, err)
	}

	return RecurringMaster{
		Record:   e,
		Rule:     rule,
		Start:    start.In(loc),
		End:      end.In(loc),
		Location: loc,
	}, nil
}

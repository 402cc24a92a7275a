package recurrence

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"github.com/dtorcivia/calmerge/internal/util"
)

// Frequency is the repeat unit offered by the editor.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// MonthlyMode selects how monthly and yearly rules pick their day.
type MonthlyMode string

const (
	DayOfMonth MonthlyMode = "dayOfMonth"
	NthWeekday MonthlyMode = "nthWeekday"
)

// Interval bounds accepted by the editor.
const (
	MinInterval = 1
	MaxInterval = 99
)

var (
	ErrInvalidFrequency = errors.New("invalid recurrence frequency")
	ErrInvalidInterval  = fmt.Errorf("recurrence interval must be between %d and %d", MinInterval, MaxInterval)
	ErrInvalidWeekday   = errors.New("invalid weekday")
	ErrUntilBeforeStart = errors.New("recurrence end date is before the first occurrence")
	ErrInvalidRule      = errors.New("invalid recurrence rule")
)

// weekdayCodes is ordered Monday first to match WKST=MO.
var weekdayCodes = []string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

var weekdayNames = map[string]string{
	"MO": "Monday", "TU": "Tuesday", "WE": "Wednesday", "TH": "Thursday",
	"FR": "Friday", "SA": "Saturday", "SU": "Sunday",
}

// Selection is the editor state a rule is built from.
type Selection struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`
	// Weekdays are two-letter codes (MO..SU); only used for weekly rules.
	// Empty means the anchor's weekday.
	Weekdays    []string    `json:"weekdays,omitempty"`
	Anchor      time.Time   `json:"anchor"`
	Until       *time.Time  `json:"until,omitempty"`
	MonthlyMode MonthlyMode `json:"monthlyMode,omitempty"`
}

// ParsedRule is the editor state recovered from a rule string.
type ParsedRule struct {
	Frequency  Frequency  `json:"frequency"`
	Interval   int        `json:"interval"`
	Weekdays   []string   `json:"weekdays,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	Count      int        `json:"count,omitempty"`
	MonthDays  []int      `json:"monthDays,omitempty"`
	Months     []int      `json:"months,omitempty"`
	NthWeekday *NthDay    `json:"nthWeekday,omitempty"`
}

// MonthlyMode reports which monthly option the rule corresponds to.
func (p ParsedRule) MonthlyMode() MonthlyMode {
	if p.NthWeekday != nil {
		return NthWeekday
	}
	return DayOfMonth
}

// NthDay is an ordinal weekday such as the second Tuesday (+2TU).
type NthDay struct {
	N       int    `json:"n"`
	Weekday string `json:"weekday"`
}

// WeekdayCode returns the MO..SU code for d.
func WeekdayCode(d time.Weekday) string {
	return weekdayCodes[(int(d)+6)%7]
}

// NthOfMonth returns which occurrence of its weekday t is within its month.
func NthOfMonth(t time.Time) int {
	return int(math.Ceil(float64(t.Day()) / 7))
}

// BuildRule renders sel as an "RRULE:" line.
func BuildRule(sel Selection) (string, error) {
	if sel.Interval < MinInterval || sel.Interval > MaxInterval {
		return "", ErrInvalidInterval
	}
	if sel.Anchor.IsZero() {
		return "", fmt.Errorf("%w: anchor is required", util.ErrEmptyField)
	}

	switch sel.Frequency {
	case Daily, Weekly, Monthly, Yearly:
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, sel.Frequency)
	}
	parts := []string{
		"FREQ=" + string(sel.Frequency),
		"INTERVAL=" + strconv.Itoa(sel.Interval),
		"WKST=MO",
	}

	if sel.Until != nil {
		if sel.Until.Before(sel.Anchor) {
			return "", ErrUntilBeforeStart
		}
		parts = append(parts, "UNTIL="+util.FormatICalUTC(*sel.Until))
	}

	switch sel.Frequency {
	case Weekly:
		days, err := normalizeWeekdays(sel.Weekdays, sel.Anchor)
		if err != nil {
			return "", err
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))

	case Monthly, Yearly:
		if sel.Frequency == Yearly {
			parts = append(parts, "BYMONTH="+strconv.Itoa(int(sel.Anchor.Month())))
		}
		if sel.MonthlyMode == NthWeekday {
			parts = append(parts, fmt.Sprintf("BYDAY=+%d%s", NthOfMonth(sel.Anchor), WeekdayCode(sel.Anchor.Weekday())))
		} else {
			parts = append(parts, "BYMONTHDAY="+strconv.Itoa(sel.Anchor.Day()))
		}
	}

	return "RRULE:" + strings.Join(parts, ";"), nil
}

// normalizeWeekdays validates codes and returns them deduplicated in MO..SU order.
func normalizeWeekdays(codes []string, anchor time.Time) ([]string, error) {
	if len(codes) == 0 {
		return []string{WeekdayCode(anchor.Weekday())}, nil
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if _, ok := weekdayNames[c]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWeekday, c)
		}
		seen[c] = true
	}
	out := make([]string, 0, len(seen))
	for _, c := range weekdayCodes {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

// ParseRule recovers editor state from a rule string, with or without the
// "RRULE:" marker. Any parse failure yields None.
func ParseRule(s string) mo.Option[ParsedRule] {
	opt, ok := parseOption(s)
	if !ok {
		return mo.None[ParsedRule]()
	}

	var freq Frequency
	switch opt.Freq {
	case rrule.DAILY:
		freq = Daily
	case rrule.WEEKLY:
		freq = Weekly
	case rrule.MONTHLY:
		freq = Monthly
	case rrule.YEARLY:
		freq = Yearly
	default:
		return mo.None[ParsedRule]()
	}

	p := ParsedRule{
		Frequency: freq,
		Interval:  opt.Interval,
		Count:     opt.Count,
		MonthDays: opt.Bymonthday,
		Months:    opt.Bymonth,
	}
	if p.Interval == 0 {
		p.Interval = 1
	}
	if !opt.Until.IsZero() {
		until := opt.Until.UTC()
		p.Until = &until
	}

	for i := range opt.Byweekday {
		wd := &opt.Byweekday[i]
		code := weekdayCodes[wd.Day()]
		if wd.N() != 0 && freq != Weekly && p.NthWeekday == nil {
			p.NthWeekday = &NthDay{N: wd.N(), Weekday: code}
			continue
		}
		p.Weekdays = append(p.Weekdays, code)
	}

	return mo.Some(p)
}

// ValidateRecurrence checks every RRULE line of a recurrence list. Other lines,
// such as EXDATE, are passed through unchecked.
func ValidateRecurrence(lines []string) error {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < len("RRULE:") || !strings.EqualFold(trimmed[:len("RRULE:")], "RRULE:") {
			continue
		}
		opt, ok := parseOption(trimmed)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidRule, trimmed)
		}
		if opt.Freq == rrule.SECONDLY || opt.Freq == rrule.MINUTELY {
			return fmt.Errorf("%w: frequency finer than hourly: %q", ErrInvalidRule, trimmed)
		}
	}
	return nil
}

func parseOption(s string) (*rrule.ROption, bool) {
	s = strings.TrimSpace(s)
	if len(s) >= len("RRULE:") && strings.EqualFold(s[:len("RRULE:")], "RRULE:") {
		s = s[len("RRULE:"):]
	}
	if s == "" {
		return nil, false
	}
	opt, err := rrule.StrToROption(s)
	if err != nil || opt == nil || opt.Interval < 0 || opt.Count < 0 {
		return nil, false
	}
	return opt, true
}

// SuggestedUntil is the default end date the editor offers: the anchor plus
// one interval of the chosen unit.
func SuggestedUntil(anchor time.Time, freq Frequency, interval int) time.Time {
	if interval < MinInterval {
		interval = MinInterval
	}
	switch freq {
	case Daily:
		return anchor.AddDate(0, 0, interval)
	case Weekly:
		return anchor.AddDate(0, 0, 7*interval)
	case Monthly:
		return anchor.AddDate(0, interval, 0)
	case Yearly:
		return anchor.AddDate(interval, 0, 0)
	default:
		return anchor.Add(time.Hour)
	}
}

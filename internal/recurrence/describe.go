package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FallbackDescription is returned for rules that cannot be described.
const FallbackDescription = "Custom recurrence rule"

var ordinalWords = map[int]string{1: "first", 2: "second", 3: "third", -1: "last"}

// DescribeRule renders a rule as English text such as
// "every 2 weeks on Monday, Wednesday until January 31, 2025".
func DescribeRule(rule string) string {
	p, ok := ParseRule(rule).Get()
	if !ok {
		return FallbackDescription
	}

	var b strings.Builder
	b.WriteString("every ")

	unit := map[Frequency]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}[p.Frequency]
	if p.Frequency == Weekly && p.Interval == 1 && isWorkweek(p.Weekdays) {
		b.WriteString("weekday")
	} else {
		if p.Interval > 1 {
			b.WriteString(strconv.Itoa(p.Interval) + " " + unit + "s")
		} else {
			b.WriteString(unit)
		}
		if len(p.Weekdays) > 0 {
			b.WriteString(" on " + joinWeekdays(p.Weekdays))
		}
	}

	if p.Frequency == Yearly && len(p.Months) > 0 {
		names := make([]string, 0, len(p.Months))
		for _, m := range p.Months {
			if m < 1 || m > 12 {
				return FallbackDescription
			}
			names = append(names, time.Month(m).String())
		}
		b.WriteString(" in " + strings.Join(names, ", "))
	}

	switch {
	case p.NthWeekday != nil:
		b.WriteString(" on the " + OrdinalLabel(p.NthWeekday.N) + " " + weekdayNames[p.NthWeekday.Weekday])
	case len(p.MonthDays) > 0:
		days := make([]string, 0, len(p.MonthDays))
		for _, d := range p.MonthDays {
			days = append(days, ordinalNumber(d))
		}
		b.WriteString(" on the " + strings.Join(days, ", "))
	}

	switch {
	case p.Until != nil:
		b.WriteString(" until " + p.Until.Format("January 2, 2006"))
	case p.Count == 1:
		b.WriteString(" for 1 time")
	case p.Count > 1:
		b.WriteString(" for " + strconv.Itoa(p.Count) + " times")
	}

	return b.String()
}

// OrdinalLabel names the nth weekday of a month: first, second, third, then 4th, 5th.
func OrdinalLabel(n int) string {
	if w, ok := ordinalWords[n]; ok {
		return w
	}
	return fmt.Sprintf("%dth", n)
}

func ordinalNumber(n int) string {
	if n < 0 {
		if n == -1 {
			return "last day"
		}
		return ordinalNumber(-n) + " last day"
	}
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}

func joinWeekdays(codes []string) string {
	names := make([]string, 0, len(codes))
	for _, c := range codes {
		names = append(names, weekdayNames[c])
	}
	return strings.Join(names, ", ")
}

func isWorkweek(codes []string) bool {
	if len(codes) != 5 {
		return false
	}
	for i, c := range codes {
		if c != weekdayCodes[i] {
			return false
		}
	}
	return true
}

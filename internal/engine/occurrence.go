package engine

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoSchedule means an occurrence pattern carries no usable time token.
// Callers degrade gracefully: the candidate simply gets no next time.
var ErrNoSchedule = errors.New("occurrence pattern cannot be scheduled")

var (
	timeToken  = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	everyNDays = regexp.MustCompile(`every\s+(\d+)\s+days?`)
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// NextExecution converts a free-text recurrence description into the next
// due time. The returned time is strictly in the future relative to now
// unless the computed same-day time has not yet passed. last is the previous
// execution, used as the base date for "every N days" patterns.
func NextExecution(pattern string, now time.Time, last *time.Time) (time.Time, error) {
	m := timeToken.FindStringSubmatch(pattern)
	if m == nil {
		return time.Time{}, ErrNoSchedule
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return time.Time{}, ErrNoSchedule
	}

	atTime := func(d time.Time) time.Time {
		return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location())
	}

	p := strings.ToLower(pattern)

	switch {
	case strings.Contains(p, "weekday"):
		t := atTime(now)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		for isWeekend(t.Weekday()) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil

	case strings.Contains(p, "weekend"):
		t := atTime(now)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		for !isWeekend(t.Weekday()) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil

	case everyNDays.MatchString(p):
		nm := everyNDays.FindStringSubmatch(p)
		n, _ := strconv.Atoi(nm[1])
		if n < 1 {
			n = 1
		}
		// Same-day time still pending counts as the next occurrence.
		if t := atTime(now); t.After(now) {
			return t, nil
		}
		base := now
		if last != nil {
			base = *last
		}
		t := atTime(base).AddDate(0, 0, n)
		for !t.After(now) {
			t = t.AddDate(0, 0, n)
		}
		return t, nil

	default:
		if days := namedWeekdays(p); len(days) > 0 {
			return nextNamedWeekday(days, now, atTime)
		}
		// "daily", "every day", and anything unmatched behave the same.
		t := atTime(now)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
}

// IsDue reports whether a precomputed check time has arrived.
func IsDue(checkAt, now time.Time) bool {
	return !checkAt.After(now)
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

func namedWeekdays(p string) map[time.Weekday]bool {
	var days map[time.Weekday]bool
	for name, day := range weekdayNames {
		if strings.Contains(p, name) {
			if days == nil {
				days = make(map[time.Weekday]bool)
			}
			days[day] = true
		}
	}
	return days
}

// nextNamedWeekday finds the nearest matching weekday within a two-week
// lookahead. With a single named day this lands on the next occurrence,
// rolling a full week when today's time has already passed.
func nextNamedWeekday(days map[time.Weekday]bool, now time.Time, atTime func(time.Time) time.Time) (time.Time, error) {
	for offset := 0; offset < 14; offset++ {
		t := atTime(now.AddDate(0, 0, offset))
		if days[t.Weekday()] && t.After(now) {
			return t, nil
		}
	}
	return time.Time{}, ErrNoSchedule
}

// Package recurrence computes the next fire time of a recurring reminder.
//
// Monthly rules clamp to the last day of the target month: a reminder on
// Jan 31 with interval 1 next fires on Feb 28 (Feb 29 in leap years), and
// then on Mar 28, since each step starts from the previous fire date.
package recurrence

import (
	"time"

	"habit-tracker/internal/models"
)

// NextFireDate returns the occurrence following current under rule. The
// boolean is false when there is no further occurrence: a nil rule, an
// unrecognized frequency or a custom rule without usable weekdays.
// EndDate is not applied here; see WithinBound.
func NextFireDate(current time.Time, rule *models.Recurrence) (time.Time, bool) {
	if rule == nil {
		return time.Time{}, false
	}

	interval := rule.Interval
	if interval <= 0 {
		interval = 1
	}

	switch rule.Frequency {
	case models.FrequencyDaily:
		return current.AddDate(0, 0, interval), true
	case models.FrequencyWeekly:
		return current.AddDate(0, 0, interval*7), true
	case models.FrequencyMonthly:
		return addMonthsClamped(current, interval), true
	case models.FrequencyCustom:
		return nextWeekday(current, rule.DaysOfWeek, interval)
	default:
		return time.Time{}, false
	}
}

// WithinBound reports whether next does not exceed the rule's end date.
func WithinBound(rule *models.Recurrence, next time.Time) bool {
	if rule == nil || rule.EndDate == nil {
		return true
	}
	return !next.After(*rule.EndDate)
}

// Next combines NextFireDate and WithinBound.
func Next(current time.Time, rule *models.Recurrence) (time.Time, bool) {
	next, ok := NextFireDate(current, rule)
	if !ok || !WithinBound(rule, next) {
		return time.Time{}, false
	}
	return next, true
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())

	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nextWeekday finds the first listed weekday after current. Weeks are
// Sunday-based; with interval n only every nth week counting from
// current's week is eligible. Runs in constant time for any interval.
func nextWeekday(current time.Time, days []int, interval int) (time.Time, bool) {
	var allowed [7]bool
	found := false
	for _, d := range days {
		if d >= 0 && d <= 6 {
			allowed[d] = true
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}

	start := int(current.Weekday())
	for d := start + 1; d <= 6; d++ {
		if allowed[d] {
			return current.AddDate(0, 0, d-start), true
		}
	}
	// The next eligible week starts interval weeks after current's week.
	for d := 0; d <= 6; d++ {
		if allowed[d] {
			return current.AddDate(0, 0, interval*7+d-start), true
		}
	}
	return time.Time{}, false
}

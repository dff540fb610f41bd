// Package recurrence decides which calendar days a rule produces an
// occurrence on, in the rule's own authoring zone.
package recurrence

import (
	"errors"
	"fmt"

	"dayplan/internal/model"
)

// ErrInvalidRule is returned by Validate. Matches never returns it: rules
// loaded from disk are untrusted, so an invalid rule simply never matches.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// Matches reports whether rule produces an occurrence on day, where day is
// read in rule.Timezone.
//
// Monthly rules do not clamp: a rule anchored on the 31st skips months
// that have no 31st, and a yearly rule anchored on Feb 29 only matches in
// leap years.
func Matches(rule model.RecurrenceRule, day model.CalendarDay) bool {
	if day.Before(rule.StartDate) {
		return false
	}
	if rule.EndDate != nil && day.After(*rule.EndDate) {
		return false
	}
	if rule.Excludes(day) {
		return false
	}

	switch rule.Kind {
	case model.RepeatDaily:
		return true
	case model.RepeatWeekly:
		return rule.HasWeekday(day.Weekday())
	case model.RepeatMonthly:
		return day.Day == rule.StartDate.Day
	case model.RepeatYearly:
		return day.Month == rule.StartDate.Month && day.Day == rule.StartDate.Day
	case model.RepeatCustom:
		if rule.Interval <= 0 {
			return false
		}
		return day.DaysSince(rule.StartDate)%rule.Interval == 0
	default:
		return false
	}
}

// Validate checks a rule before it is stored.
func Validate(rule model.RecurrenceRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRule)
	}
	if rule.StartDate.IsZero() {
		return fmt.Errorf("%w: missing start date", ErrInvalidRule)
	}
	if rule.EndDate != nil && rule.EndDate.Before(rule.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalidRule, *rule.EndDate, rule.StartDate)
	}

	switch rule.Kind {
	case model.RepeatDaily, model.RepeatMonthly, model.RepeatYearly:
	case model.RepeatWeekly:
		if len(rule.WeekDays) == 0 {
			return fmt.Errorf("%w: weekly rule without weekdays", ErrInvalidRule)
		}
		for _, wd := range rule.WeekDays {
			if wd < 0 || wd > 6 {
				return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, wd)
			}
		}
	case model.RepeatCustom:
		if rule.Interval <= 0 {
			return fmt.Errorf("%w: custom rule needs a positive interval, got %d", ErrInvalidRule, rule.Interval)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, rule.Kind)
	}

	if _, err := rule.Template.Normalize(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return nil
}

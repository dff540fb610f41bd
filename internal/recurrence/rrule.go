package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"dayplan/internal/model"
)

// weekdays maps 0=Sunday..6=Saturday onto rrule weekdays.
var weekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ROption maps rule onto an RFC 5545 recurrence anchored at the template's
// clock on the start date in loc. Every kind has an exact RRULE
// counterpart: custom is DAILY with an interval and monthly/yearly repeat
// the anchor's BYMONTHDAY/BYMONTH, which RFC 5545 also skips in short
// months rather than clamping.
func ROption(rule model.RecurrenceRule, loc *time.Location) (rrule.ROption, error) {
	if err := Validate(rule); err != nil {
		return rrule.ROption{}, err
	}

	opt := rrule.ROption{
		Dtstart:  startInstant(rule, rule.StartDate, loc),
		Interval: 1,
		Wkst:     rrule.MO,
	}
	switch rule.Kind {
	case model.RepeatDaily:
		opt.Freq = rrule.DAILY
	case model.RepeatWeekly:
		opt.Freq = rrule.WEEKLY
		for _, wd := range rule.WeekDays {
			opt.Byweekday = append(opt.Byweekday, weekdays[wd])
		}
	case model.RepeatMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{rule.StartDate.Day}
	case model.RepeatYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(rule.StartDate.Month)}
		opt.Bymonthday = []int{rule.StartDate.Day}
	case model.RepeatCustom:
		opt.Freq = rrule.DAILY
		opt.Interval = rule.Interval
	}
	if rule.EndDate != nil {
		end := rule.EndDate
		opt.Until = time.Date(end.Year, end.Month, end.Day, 23, 59, 59, 0, loc)
	}
	return opt, nil
}

// RRuleString renders rule as an RRULE value (without the "RRULE:" prefix).
func RRuleString(rule model.RecurrenceRule, loc *time.Location) (string, error) {
	opt, err := ROption(rule, loc)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// Set builds the rrule set for rule, with one EXDATE per excluded day.
func Set(rule model.RecurrenceRule, loc *time.Location) (*rrule.Set, error) {
	opt, err := ROption(rule, loc)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule for %s: %w", rule.ID, err)
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, day := range rule.ExcludeDates {
		set.ExDate(startInstant(rule, day, loc))
	}
	return set, nil
}

// Upcoming returns up to n occurrence start instants strictly after after.
func Upcoming(rule model.RecurrenceRule, loc *time.Location, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return []time.Time{}, nil
	}
	set, err := Set(rule, loc)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, n)
	cur := after
	for len(out) < n {
		next := set.After(cur, false)
		if next.IsZero() {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out, nil
}

// startInstant is the template clock on day in loc.
func startInstant(rule model.RecurrenceRule, day model.CalendarDay, loc *time.Location) time.Time {
	return time.Date(day.Year, day.Month, day.Day, rule.Template.StartHour, rule.Template.StartMinute, 0, 0, loc)
}

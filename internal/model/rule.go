package model

import (
	"slices"
	"time"
)

// RepeatKind selects how a rule recurs.
type RepeatKind string

const (
	RepeatNone    RepeatKind = "none"
	RepeatDaily   RepeatKind = "daily"
	RepeatWeekly  RepeatKind = "weekly"
	RepeatMonthly RepeatKind = "monthly"
	RepeatYearly  RepeatKind = "yearly"
	// RepeatCustom recurs every Interval days.
	RepeatCustom RepeatKind = "custom"
)

// RecurrenceRule is a stored recurrence. StartDate, EndDate, ExcludeDates,
// WeekDays and the template clock are all interpreted in Timezone.
type RecurrenceRule struct {
	ID           string        `json:"id"`
	Kind         RepeatKind    `json:"type"`
	Interval     int           `json:"interval,omitempty"`
	WeekDays     []int         `json:"weekDays,omitempty"`
	StartDate    CalendarDay   `json:"startDate"`
	EndDate      *CalendarDay  `json:"endDate,omitempty"`
	ExcludeDates []CalendarDay `json:"excludeDates,omitempty"`
	Timezone     string        `json:"timezone,omitempty"`
	Template     TaskTemplate  `json:"template"`
}

// Clone returns a deep copy so that staged mutations never alias stored state.
func (r RecurrenceRule) Clone() RecurrenceRule {
	out := r
	out.WeekDays = slices.Clone(r.WeekDays)
	out.ExcludeDates = slices.Clone(r.ExcludeDates)
	if r.EndDate != nil {
		end := *r.EndDate
		out.EndDate = &end
	}
	return out
}

// Excludes reports whether day is in ExcludeDates.
func (r RecurrenceRule) Excludes(day CalendarDay) bool {
	return slices.Contains(r.ExcludeDates, day)
}

// HasWeekday reports whether wd is one of the rule's weekdays.
func (r RecurrenceRule) HasWeekday(wd time.Weekday) bool {
	return slices.Contains(r.WeekDays, int(wd))
}

// AddExclusion inserts day into ExcludeDates, keeping the list sorted and unique.
func (r *RecurrenceRule) AddExclusion(day CalendarDay) {
	if r.Excludes(day) {
		return
	}
	r.ExcludeDates = append(r.ExcludeDates, day)
	slices.SortFunc(r.ExcludeDates, CalendarDay.Compare)
}

// KeepExclusions drops every excluded day for which keep returns false.
func (r *RecurrenceRule) KeepExclusions(keep func(CalendarDay) bool) {
	r.ExcludeDates = slices.DeleteFunc(r.ExcludeDates, func(d CalendarDay) bool { return !keep(d) })
	if len(r.ExcludeDates) == 0 {
		r.ExcludeDates = nil
	}
}

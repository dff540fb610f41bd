package recurrence

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplan/internal/model"
)

var day = model.MustParseDay

func rule(kind model.RepeatKind, start string) model.RecurrenceRule {
	return model.RecurrenceRule{
		ID:        "r1",
		Kind:      kind,
		StartDate: day(start),
		Timezone:  "UTC",
		Template:  model.TaskTemplate{Title: "t", StartHour: 9, Duration: 60, Color: "#5E97F6"},
	}
}

func TestDailyMatchesEveryDayInRange(t *testing.T) {
	r := rule(model.RepeatDaily, "2024-01-01")
	end := day("2024-03-31")
	r.EndDate = &end

	assert.False(t, Matches(r, day("2023-12-31")))
	for d := r.StartDate; !d.After(end); d = d.AddDays(1) {
		require.True(t, Matches(r, d), d.String())
	}
	assert.False(t, Matches(r, day("2024-04-01")))
}

func TestCustomInterval(t *testing.T) {
	r := rule(model.RepeatCustom, "2024-01-01")
	r.Interval = 3

	for _, d := range []string{"2024-01-01", "2024-01-04", "2024-01-07"} {
		assert.True(t, Matches(r, day(d)), d)
	}
	for _, d := range []string{"2024-01-02", "2024-01-03"} {
		assert.False(t, Matches(r, day(d)), d)
	}

	for _, interval := range []int{0, -2} {
		r.Interval = interval
		assert.False(t, Matches(r, day("2024-01-01")), "interval %d", interval)
	}
}

func TestWeekly(t *testing.T) {
	r := rule(model.RepeatWeekly, "2024-01-01")
	r.WeekDays = []int{1, 3, 5}

	assert.True(t, Matches(r, day("2024-01-08")))
	assert.False(t, Matches(r, day("2024-01-09")))
	assert.True(t, Matches(r, day("2024-01-10")))
	assert.True(t, Matches(r, day("2024-01-12")))

	r.WeekDays = nil
	assert.False(t, Matches(r, day("2024-01-08")))
}

func TestMonthlyDoesNotClamp(t *testing.T) {
	r := rule(model.RepeatMonthly, "2024-01-31")

	assert.True(t, Matches(r, day("2024-03-31")))
	assert.False(t, Matches(r, day("2024-02-29")))
	assert.False(t, Matches(r, day("2024-04-30")))
}

func TestYearly(t *testing.T) {
	r := rule(model.RepeatYearly, "2024-02-29")

	assert.True(t, Matches(r, day("2028-02-29")))
	assert.False(t, Matches(r, day("2025-02-28")))
	assert.False(t, Matches(r, day("2025-03-01")))
	assert.False(t, Matches(r, day("2024-03-29")))
}

func TestExcludeDatesOnlySuppressThatDay(t *testing.T) {
	r := rule(model.RepeatDaily, "2024-01-01")
	r.AddExclusion(day("2024-01-05"))

	assert.False(t, Matches(r, day("2024-01-05")))
	assert.True(t, Matches(r, day("2024-01-04")))
	assert.True(t, Matches(r, day("2024-01-06")))
}

func TestUnknownKindNeverMatches(t *testing.T) {
	assert.False(t, Matches(rule("hourly", "2024-01-01"), day("2024-01-01")))
}

func TestValidate(t *testing.T) {
	ok := rule(model.RepeatDaily, "2024-01-01")
	require.NoError(t, Validate(ok))

	end := day("2023-12-01")
	tests := map[string]func(r *model.RecurrenceRule){
		"missing id":         func(r *model.RecurrenceRule) { r.ID = "" },
		"missing start":      func(r *model.RecurrenceRule) { r.StartDate = model.CalendarDay{} },
		"end before start":   func(r *model.RecurrenceRule) { r.EndDate = &end },
		"weekly no days":     func(r *model.RecurrenceRule) { r.Kind = model.RepeatWeekly },
		"weekday range":      func(r *model.RecurrenceRule) { r.Kind, r.WeekDays = model.RepeatWeekly, []int{7} },
		"custom no interval": func(r *model.RecurrenceRule) { r.Kind = model.RepeatCustom },
		"unknown kind":       func(r *model.RecurrenceRule) { r.Kind = "fortnightly" },
		"blank title":        func(r *model.RecurrenceRule) { r.Template.Title = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := ok.Clone()
			mutate(&r)
			assert.ErrorIs(t, Validate(r), ErrInvalidRule)
		})
	}
}

// The rrule-go expansion and Matches must agree day by day.
func TestRRuleSetAgreesWithMatches(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	weekly := rule(model.RepeatWeekly, "2024-01-03")
	weekly.WeekDays = []int{0, 3, 6}
	custom := rule(model.RepeatCustom, "2024-01-02")
	custom.Interval = 4
	bounded := rule(model.RepeatDaily, "2024-02-10")
	end := day("2024-03-20")
	bounded.EndDate = &end
	bounded.AddExclusion(day("2024-02-14"))
	bounded.AddExclusion(day("2024-03-10"))

	rules := []model.RecurrenceRule{
		rule(model.RepeatDaily, "2024-01-01"),
		weekly,
		rule(model.RepeatMonthly, "2024-01-31"),
		rule(model.RepeatYearly, "2024-02-29"),
		custom,
		bounded,
	}

	from := day("2023-12-25")
	to := day("2029-01-10")
	for _, r := range rules {
		t.Run(string(r.Kind)+"/"+r.StartDate.String(), func(t *testing.T) {
			set, err := Set(r, tokyo)
			require.NoError(t, err)

			got := map[model.CalendarDay]bool{}
			for _, at := range set.Between(startInstant(r, from, tokyo), startInstant(r, to, tokyo), true) {
				got[model.DayOf(at.In(tokyo))] = true
			}
			for d := from; !d.After(to); d = d.AddDays(1) {
				if !assert.Equal(t, Matches(r, d), got[d], d.String()) {
					return
				}
			}
		})
	}
}

func TestRRuleString(t *testing.T) {
	r := rule(model.RepeatWeekly, "2024-01-01")
	r.WeekDays = []int{1, 5}
	end := day("2024-06-30")
	r.EndDate = &end

	s, err := RRuleString(r, time.UTC)
	require.NoError(t, err)
	assert.Contains(t, s, "FREQ=WEEKLY")
	assert.Contains(t, s, "BYDAY=MO,FR")
	assert.Contains(t, s, "UNTIL=20240630T235959Z")
	assert.False(t, strings.HasPrefix(s, "RRULE:"))

	_, err = RRuleString(rule(model.RepeatCustom, "2024-01-01"), time.UTC)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestUpcoming(t *testing.T) {
	r := rule(model.RepeatCustom, "2024-01-01")
	r.Interval = 2
	r.AddExclusion(day("2024-01-05"))

	after := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	got, err := Upcoming(r, time.UTC, after, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.WithinDuration(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), got[0], 0)
	assert.WithinDuration(t, time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC), got[1], 0)
	assert.WithinDuration(t, time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), got[2], 0)

	end := day("2024-01-03")
	r.EndDate = &end
	got, err = Upcoming(r, time.UTC, after, 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

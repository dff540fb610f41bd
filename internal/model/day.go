package model

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// CalendarDay is a (year, month, day) triple with no clock time or zone.
// All arithmetic on it is zone-agnostic.
type CalendarDay struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDay builds a normalized CalendarDay; out-of-range values roll over the
// same way time.Date does (2024-02-30 becomes 2024-03-01).
func NewDay(year int, month time.Month, day int) CalendarDay {
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DayOf returns the calendar day t reads as in its own location.
func DayOf(t time.Time) CalendarDay {
	y, m, d := t.Date()
	return CalendarDay{Year: y, Month: m, Day: d}
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (CalendarDay, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return CalendarDay{}, fmt.Errorf("parse calendar day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// MustParseDay is ParseDay for literals; it panics on malformed input.
func MustParseDay(s string) CalendarDay {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d CalendarDay) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d CalendarDay) IsZero() bool {
	return d == CalendarDay{}
}

// midnight anchors the day at 00:00 UTC, which has no DST, so whole-day
// arithmetic stays exact.
func (d CalendarDay) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d CalendarDay) AddDays(n int) CalendarDay {
	return DayOf(d.midnight().AddDate(0, 0, n))
}

// DaysSince returns d - o in whole days.
func (d CalendarDay) DaysSince(o CalendarDay) int {
	return int((d.midnight().Unix() - o.midnight().Unix()) / 86400)
}

// Compare returns -1, 0 or +1.
func (d CalendarDay) Compare(o CalendarDay) int {
	switch n := d.DaysSince(o); {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func (d CalendarDay) Before(o CalendarDay) bool { return d.Compare(o) < 0 }
func (d CalendarDay) After(o CalendarDay) bool  { return d.Compare(o) > 0 }

func (d CalendarDay) Weekday() time.Weekday {
	return d.midnight().Weekday()
}

// WeekStart returns the Monday of d's week.
func (d CalendarDay) WeekStart() CalendarDay {
	wd := int(d.Weekday())
	if wd == 0 {
		wd = 7
	}
	return d.AddDays(1 - wd)
}

// Week returns the seven days Monday..Sunday containing d.
func (d CalendarDay) Week() []CalendarDay {
	start := d.WeekStart()
	days := make([]CalendarDay, 7)
	for i := range days {
		days[i] = start.AddDays(i)
	}
	return days
}

func (d CalendarDay) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *CalendarDay) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WallClock is a local-time reading. It means nothing without a zone.
type WallClock struct {
	Day    CalendarDay
	Hour   int
	Minute int
}

// At pins the wall-clock values to UTC without any offset. It is a carrier
// for clock arithmetic, not the instant the reading denotes.
func (w WallClock) At() time.Time {
	return time.Date(w.Day.Year, w.Day.Month, w.Day.Day, w.Hour, w.Minute, 0, 0, time.UTC)
}

// WallClockOf reads t's clock fields in t's own location.
func WallClockOf(t time.Time) WallClock {
	return WallClock{Day: DayOf(t), Hour: t.Hour(), Minute: t.Minute()}
}

func (w WallClock) String() string {
	return fmt.Sprintf("%s %02d:%02d", w.Day, w.Hour, w.Minute)
}

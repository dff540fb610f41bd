// Package ics publishes recurrence rules and authored tasks as an iCalendar
// feed, so other calendar apps can subscribe to the plan.
package ics

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/recurrence"
	"dayplan/internal/tz"
)

const (
	ProdID = "-//dayplan//dayplan 1.0//EN"
	Name   = "Day planner"

	// MaxDays bounds the day range of authored tasks in one export.
	MaxDays = 366

	uidDomain = "@dayplan"

	localLayout = "20060102T150405"
	utcLayout   = "20060102T150405Z"
)

// colorProperty is the RFC 7986 event color.
const colorProperty = ical.ComponentProperty("COLOR")

// Exporter builds calendars. Now stamps DTSTAMP and defaults to time.Now.
type Exporter struct {
	Zones tz.Resolver
	Now   func() time.Time
}

func NewExporter(zones tz.Resolver) *Exporter {
	return &Exporter{Zones: zones, Now: time.Now}
}

// Calendar builds one VEVENT per rule, recurring in the rule's zone, and one
// floating VEVENT per authored task of days. Rules that cannot be expressed
// (unknown zone, invalid shape) are logged and left out.
func (e *Exporter) Calendar(rules []model.RecurrenceRule, days []model.DayRecord) *ical.Calendar {
	now := e.Now().UTC()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProdID)
	cal.SetXWRCalName(Name)

	for _, rule := range rules {
		if err := e.addRule(cal, rule, now); err != nil {
			appLog.Warn("skipping rule in calendar export", "rule", rule.ID, "err", err)
		}
	}
	for _, rec := range days {
		for _, task := range rec.Tasks {
			if task.IsOccurrence() {
				continue
			}
			addTask(cal, rec.Date, task, now)
		}
	}
	return cal
}

// Export serializes Calendar.
func (e *Exporter) Export(rules []model.RecurrenceRule, days []model.DayRecord) string {
	return e.Calendar(rules, days).Serialize()
}

func (e *Exporter) addRule(cal *ical.Calendar, rule model.RecurrenceRule, now time.Time) error {
	loc, err := e.Zones.Resolve(rule.Timezone)
	if err != nil {
		return err
	}
	rrule, err := recurrence.RRuleString(rule, loc)
	if err != nil {
		return err
	}

	ev := cal.AddEvent(rule.ID + uidDomain)
	ev.SetDtStampTime(now)
	setTemplate(ev, rule.Template)

	start := at(rule.StartDate, rule.Template.StartHour, rule.Template.StartMinute, loc)
	end := start.Add(time.Duration(rule.Template.Duration) * time.Minute)
	setZoned(ev, ical.ComponentPropertyDtStart, start, loc)
	setZoned(ev, ical.ComponentPropertyDtEnd, end, loc)
	ev.AddProperty(ical.ComponentPropertyRrule, rrule)

	for _, day := range rule.ExcludeDates {
		ex := at(day, rule.Template.StartHour, rule.Template.StartMinute, loc)
		value, params := zoned(ex, loc)
		ev.AddProperty(ical.ComponentPropertyExdate, value, params...)
	}
	return nil
}

func addTask(cal *ical.Calendar, day model.CalendarDay, task model.Task, now time.Time) {
	ev := cal.AddEvent(task.ID + uidDomain)
	ev.SetDtStampTime(now)
	setTemplate(ev, task.TaskTemplate)

	// Authored tasks have no zone of their own; they are floating times.
	start := at(day, task.StartHour, task.StartMinute, time.UTC)
	end := start.Add(time.Duration(task.Duration) * time.Minute)
	ev.SetProperty(ical.ComponentPropertyDtStart, start.Format(localLayout))
	ev.SetProperty(ical.ComponentPropertyDtEnd, end.Format(localLayout))
}

func setTemplate(ev *ical.VEvent, t model.TaskTemplate) {
	ev.SetSummary(t.Title)
	if t.Location != "" {
		ev.SetLocation(t.Location)
	}
	if t.Notes != "" {
		ev.SetDescription(t.Notes)
	}
	if t.Color != "" {
		ev.SetProperty(colorProperty, t.Color)
	}
}

func setZoned(ev *ical.VEvent, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	value, params := zoned(t, loc)
	ev.SetProperty(prop, value, params...)
}

// zoned formats t with a TZID parameter. The process-local zone has no IANA
// name to put in TZID, so it is written in UTC instead.
func zoned(t time.Time, loc *time.Location) (string, []ical.PropertyParameter) {
	name := loc.String()
	if loc == time.Local || name == "Local" || name == "UTC" {
		return t.UTC().Format(utcLayout), nil
	}
	tzid := &ical.KeyValues{Key: string(ical.ParameterTzid), Value: []string{name}}
	return t.In(loc).Format(localLayout), []ical.PropertyParameter{tzid}
}

func at(day model.CalendarDay, hour, minute int, loc *time.Location) time.Time {
	return time.Date(day.Year, day.Month, day.Day, hour, minute, 0, 0, loc)
}

// Publish writes body to path atomically (temp file + rename, 0644).
func Publish(path, body string) error {
	if path == "" {
		return errors.New("export path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dayplan-export-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

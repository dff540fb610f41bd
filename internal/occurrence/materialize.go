// Package occurrence turns stored recurrence rules into the concrete task
// instances that land on one viewed day in one viewer zone.
package occurrence

import (
	"fmt"
	"time"

	"dayplan/internal/model"
	"dayplan/internal/recurrence"
	"dayplan/internal/tz"
)

// offsets are the candidate days scanned around the viewed day. Zone offsets
// differ by less than 24h, so a rule's own day is at most one day away.
var offsets = [...]int{-1, 0, 1}

// Materializer projects rules into a viewer zone.
type Materializer struct {
	Zones tz.Resolver
}

// New returns a Materializer resolving "local" through zones.
func New(zones tz.Resolver) *Materializer {
	return &Materializer{Zones: zones}
}

// Materialize returns the occurrences of rules that fall on day when read in
// viewerZone, in rule order. A rule contributes at most one occurrence; when
// more than one candidate day projects onto day, the earliest offset wins.
//
// An unknown viewer or rule zone fails the whole call.
func (m *Materializer) Materialize(rules []model.RecurrenceRule, day model.CalendarDay, viewerZone string) ([]model.Task, error) {
	view, err := m.Zones.Resolve(viewerZone)
	if err != nil {
		return nil, err
	}

	out := make([]model.Task, 0)
	for _, rule := range rules {
		src, err := m.Zones.Resolve(rule.Timezone)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		if task, ok := materializeRule(rule, day, src, view); ok {
			out = append(out, task)
		}
	}
	return out, nil
}

func materializeRule(rule model.RecurrenceRule, day model.CalendarDay, src, view *time.Location) (model.Task, bool) {
	for _, off := range offsets {
		candidate := day.AddDays(off)
		if !recurrence.Matches(rule, candidate) {
			continue
		}
		at := model.WallClock{Day: candidate, Hour: rule.Template.StartHour, Minute: rule.Template.StartMinute}
		projected := tz.ProjectIn(at, src, view)
		if projected.Day != day {
			continue
		}
		return occurrenceOf(rule, day, candidate, projected), true
	}
	return model.Task{}, false
}

func occurrenceOf(rule model.RecurrenceRule, viewed, candidate model.CalendarDay, at model.WallClock) model.Task {
	cfg := rule.Clone()
	own := candidate

	task := model.Task{
		ID:              OccurrenceID(rule.ID, viewed, candidate),
		TaskTemplate:    rule.Template,
		RecurringID:     rule.ID,
		RecurringConfig: &cfg,
		OccurrenceDate:  &own,
	}
	task.StartHour, task.StartMinute = at.Hour, at.Minute
	return task
}

// OccurrenceID is stable for a rule, viewed day and the day it occurs on in
// the rule's own zone.
func OccurrenceID(ruleID string, viewed, own model.CalendarDay) string {
	return fmt.Sprintf("%s_%s_%s", ruleID, viewed, own)
}

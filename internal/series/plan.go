// Package series plans edits and deletions of recurring task occurrences.
//
// A plan never touches storage. It carries the complete replacement rule
// list and, for single-occurrence edits, the one-off task to add to the
// viewed day; the caller applies both in one write.
package series

import (
	"errors"
	"fmt"
	"slices"

	"dayplan/internal/model"
	"dayplan/internal/recurrence"
	"dayplan/internal/tz"
)

var (
	// ErrMutationFailed is reported when a plan could not be applied. No part
	// of the plan is visible afterwards.
	ErrMutationFailed = errors.New("series mutation failed")
	// ErrNotOccurrence is returned for tasks that carry no rule reference.
	ErrNotOccurrence = errors.New("task is not a recurring occurrence")
	// ErrRuleNotFound is returned when the occurrence's rule is no longer stored.
	ErrRuleNotFound = errors.New("recurrence rule not found")
)

// Scope selects which occurrences of a series an action applies to.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeFuture Scope = "future"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeSingle, ScopeFuture:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Request is a user action on one materialized occurrence.
type Request struct {
	Action     Action
	Scope      Scope
	Occurrence model.Task
	// Edited holds the new fields for an edit, with the clock read in
	// ViewerZone on TargetDay.
	Edited model.TaskTemplate
	// TargetDay is the day the occurrence was viewed on.
	TargetDay  model.CalendarDay
	ViewerZone string
}

// Plan is the outcome of a request.
type Plan struct {
	// Rules is the full rule list after the mutation.
	Rules []model.RecurrenceRule
	// Standalone, when set, is a one-off task to append to TargetDay.
	Standalone *model.Task
	TargetDay  model.CalendarDay
	// Created is the id of a replacement rule, if one was made.
	Created string
}

// Planner turns requests into plans.
type Planner struct {
	Zones tz.Resolver
}

func New(zones tz.Resolver) *Planner {
	return &Planner{Zones: zones}
}

// Plan computes the mutation for req against the stored rules. rules is not
// modified.
func (p *Planner) Plan(rules []model.RecurrenceRule, req Request) (Plan, error) {
	occ := req.Occurrence
	if !occ.IsOccurrence() || occ.OccurrenceDate == nil {
		return Plan{}, fmt.Errorf("%w: %s", ErrNotOccurrence, occ.ID)
	}
	idx := slices.IndexFunc(rules, func(r model.RecurrenceRule) bool { return r.ID == occ.RecurringID })
	if idx < 0 {
		return Plan{}, fmt.Errorf("%w: %s", ErrRuleNotFound, occ.RecurringID)
	}

	var edited model.TaskTemplate
	if req.Action == ActionEdit {
		var err error
		if edited, err = req.Edited.Normalize(); err != nil {
			return Plan{}, err
		}
	} else if req.Action != ActionDelete {
		return Plan{}, fmt.Errorf("unknown action %q", req.Action)
	}

	next := make([]model.RecurrenceRule, 0, len(rules)+1)
	for _, r := range rules {
		next = append(next, r.Clone())
	}
	plan := Plan{TargetDay: req.TargetDay}
	own := *occ.OccurrenceDate

	switch req.Scope {
	case ScopeSingle:
		next[idx].AddExclusion(own)
		if req.Action == ActionEdit {
			plan.Standalone = &model.Task{ID: model.NewID(), TaskTemplate: edited}
		}

	case ScopeFuture:
		orig := next[idx]
		if req.Action == ActionEdit {
			repl, err := p.replacement(orig, occ, edited, req)
			if err != nil {
				return Plan{}, err
			}
			next = append(next, repl)
			plan.Created = repl.ID
		}
		if own.After(orig.StartDate) {
			end := own.AddDays(-1)
			next[idx].EndDate = &end
			next[idx].KeepExclusions(func(d model.CalendarDay) bool { return !d.After(end) })
		} else {
			next = slices.Delete(next, idx, idx+1)
		}

	default:
		return Plan{}, fmt.Errorf("unknown scope %q", req.Scope)
	}

	plan.Rules = next
	return plan, nil
}

// replacement builds the rule that carries the series forward from the
// occurrence's own day with the edited template. When the edited clock lands
// on another day in the rule's zone, the new series is shifted by that many
// days so the edited occurrence stays on the viewed day.
func (p *Planner) replacement(orig model.RecurrenceRule, occ model.Task, edited model.TaskTemplate, req Request) (model.RecurrenceRule, error) {
	own := *occ.OccurrenceDate

	// The edited clock was read in the viewer zone. Unless it is unchanged,
	// move it back into the rule's zone.
	start := model.WallClock{Day: own, Hour: orig.Template.StartHour, Minute: orig.Template.StartMinute}
	if edited.StartHour != occ.StartHour || edited.StartMinute != occ.StartMinute {
		src, err := p.Zones.Resolve(req.ViewerZone)
		if err != nil {
			return model.RecurrenceRule{}, err
		}
		dst, err := p.Zones.Resolve(orig.Timezone)
		if err != nil {
			return model.RecurrenceRule{}, err
		}
		start = tz.ProjectIn(model.WallClock{Day: req.TargetDay, Hour: edited.StartHour, Minute: edited.StartMinute}, src, dst)
	}
	edited.StartHour, edited.StartMinute = start.Hour, start.Minute

	tmpl, err := edited.Normalize()
	if err != nil {
		return model.RecurrenceRule{}, err
	}

	repl := orig.Clone()
	repl.ID = model.NewID()
	repl.Template = tmpl
	repl.KeepExclusions(func(d model.CalendarDay) bool { return !d.Before(own) })
	shift(&repl, start.Day.DaysSince(own))
	repl.StartDate = start.Day

	if err := recurrence.Validate(repl); err != nil {
		return model.RecurrenceRule{}, err
	}
	return repl, nil
}

// shift moves the rule's end, exclusions and weekdays by n days.
func shift(r *model.RecurrenceRule, n int) {
	if n == 0 {
		return
	}
	if r.EndDate != nil {
		end := r.EndDate.AddDays(n)
		r.EndDate = &end
	}
	for i, d := range r.ExcludeDates {
		r.ExcludeDates[i] = d.AddDays(n)
	}
	for i, wd := range r.WeekDays {
		r.WeekDays[i] = ((wd+n)%7 + 7) % 7
	}
	slices.Sort(r.WeekDays)
}

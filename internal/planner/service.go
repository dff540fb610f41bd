// Package planner is the day-planner service: it merges stored tasks with
// materialized occurrences for display, strips occurrences on save and
// applies series mutations as one write.
package planner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"dayplan/internal/ics"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/occurrence"
	"dayplan/internal/recurrence"
	"dayplan/internal/series"
	"dayplan/internal/store"
	"dayplan/internal/tz"
)

var (
	// ErrTaskNotFound is returned when an authored task id is not on the day.
	ErrTaskNotFound = errors.New("task not found")
	ErrInvalidRange = errors.New("invalid day range")
)

// Repeat is the repeat setting chosen when creating a task.
type Repeat struct {
	Kind     model.RepeatKind   `json:"type"`
	Interval int                `json:"interval,omitempty"`
	WeekDays []int              `json:"weekDays,omitempty"`
	EndDate  *model.CalendarDay `json:"endDate,omitempty"`
	// Timezone is the rule's zone; empty means the viewer zone.
	Timezone string `json:"timezone,omitempty"`
}

// Created reports what CreateTask stored: an authored task or a rule.
type Created struct {
	Task *model.Task           `json:"task,omitempty"`
	Rule *model.RecurrenceRule `json:"rule,omitempty"`
}

// Service owns the stores for one data directory or database.
type Service struct {
	backend  store.Store
	days     *store.DayStore
	rules    *store.RuleStore
	zones    tz.Resolver
	occ      *occurrence.Materializer
	series   *series.Planner
	exporter *ics.Exporter

	// mu serializes the read-modify-write of day records and the rule list.
	mu sync.Mutex

	// now is swapped in tests.
	now func() time.Time
}

func New(backend store.Store, zones tz.Resolver) *Service {
	return &Service{
		backend:  backend,
		days:     store.NewDayStore(backend),
		rules:    store.NewRuleStore(backend),
		zones:    zones,
		occ:      occurrence.New(zones),
		series:   series.New(zones),
		exporter: ics.NewExporter(zones),
		now:      time.Now,
	}
}

// LoadDay returns the authored tasks of day followed by the occurrences that
// land on it in zone.
func (s *Service) LoadDay(ctx context.Context, day model.CalendarDay, zone string) (model.DayRecord, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return model.DayRecord{}, err
	}
	return s.loadDay(ctx, day, zone, rules)
}

func (s *Service) loadDay(ctx context.Context, day model.CalendarDay, zone string, rules []model.RecurrenceRule) (model.DayRecord, error) {
	rec, err := s.days.Get(ctx, day)
	if err != nil {
		return model.DayRecord{}, err
	}
	occs, err := s.occ.Materialize(rules, day, zone)
	if err != nil {
		return model.DayRecord{}, err
	}
	rec.Tasks = append(authored(rec.Tasks), occs...)
	return rec, nil
}

// LoadWeek loads the Monday-first week containing day.
func (s *Service) LoadWeek(ctx context.Context, day model.CalendarDay, zone string) ([]model.DayRecord, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	week := make([]model.DayRecord, 0, 7)
	for _, d := range day.Week() {
		rec, err := s.loadDay(ctx, d, zone, rules)
		if err != nil {
			return nil, err
		}
		week = append(week, rec)
	}
	return week, nil
}

// SaveDay persists rec as the record of day, without any materialized
// occurrence. Authored tasks are written as given.
func (s *Service) SaveDay(ctx context.Context, day model.CalendarDay, rec model.DayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.Date = day
	rec.Tasks = authored(rec.Tasks)
	return s.days.Put(ctx, rec)
}

// CreateTask stores a new task on day. With a repeat kind other than none it
// stores a rule starting on day instead.
func (s *Service) CreateTask(ctx context.Context, day model.CalendarDay, tmpl model.TaskTemplate, repeat Repeat, zone string) (Created, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, err := tmpl.Normalize()
	if err != nil {
		appLog.Warn("rejecting task", "day", day.String(), "err", err)
		return Created{}, err
	}

	if repeat.Kind == "" || repeat.Kind == model.RepeatNone {
		rec, err := s.days.Get(ctx, day)
		if err != nil {
			return Created{}, err
		}
		task := model.Task{ID: model.NewID(), TaskTemplate: tmpl}
		rec.Tasks = append(authored(rec.Tasks), task)
		if err := s.days.Put(ctx, rec); err != nil {
			return Created{}, err
		}
		appLog.Debug("task created", "day", day.String(), "id", task.ID)
		return Created{Task: &task}, nil
	}

	ruleZone := repeat.Timezone
	if ruleZone == "" {
		ruleZone = zone
	}
	name, err := s.zones.Name(ruleZone)
	if err != nil {
		return Created{}, err
	}
	rule := model.RecurrenceRule{
		ID:        model.NewID(),
		Kind:      repeat.Kind,
		Interval:  repeat.Interval,
		WeekDays:  slices.Clone(repeat.WeekDays),
		StartDate: day,
		EndDate:   repeat.EndDate,
		Timezone:  name,
		Template:  tmpl,
	}
	if rule.Kind == model.RepeatWeekly && len(rule.WeekDays) == 0 {
		rule.WeekDays = []int{int(day.Weekday())}
	}
	slices.Sort(rule.WeekDays)
	rule.WeekDays = slices.Compact(rule.WeekDays)
	if err := recurrence.Validate(rule); err != nil {
		return Created{}, err
	}
	if err := s.rules.Put(ctx, rule); err != nil {
		return Created{}, err
	}
	appLog.Info("rule created", "rule", rule.ID, "type", string(rule.Kind), "timezone", rule.Timezone)
	return Created{Rule: &rule}, nil
}

// UpdateTask replaces the authored task with task.ID on fromDay. When toDay
// differs the task moves there under a new id; both days are written in one
// batch.
func (s *Service) UpdateTask(ctx context.Context, fromDay, toDay model.CalendarDay, task model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.IsOccurrence() {
		return model.Task{}, fmt.Errorf("%w: occurrences are changed through their series", model.ErrInvalidTask)
	}
	tmpl, err := task.TaskTemplate.Normalize()
	if err != nil {
		appLog.Warn("rejecting task update", "day", fromDay.String(), "id", task.ID, "err", err)
		return model.Task{}, err
	}
	task.TaskTemplate = tmpl

	from, err := s.days.Get(ctx, fromDay)
	if err != nil {
		return model.Task{}, err
	}
	from.Tasks = authored(from.Tasks)
	i := slices.IndexFunc(from.Tasks, func(t model.Task) bool { return t.ID == task.ID })
	if i < 0 {
		return model.Task{}, fmt.Errorf("%w: %s on %s", ErrTaskNotFound, task.ID, fromDay)
	}

	if fromDay == toDay {
		from.Tasks[i] = task
		if err := s.days.Put(ctx, from); err != nil {
			return model.Task{}, err
		}
		return task, nil
	}

	to, err := s.days.Get(ctx, toDay)
	if err != nil {
		return model.Task{}, err
	}
	from.Tasks = slices.Delete(from.Tasks, i, i+1)
	task.ID = model.NewID()
	to.Tasks = append(authored(to.Tasks), task)

	if err := s.putDays(ctx, from, to); err != nil {
		return model.Task{}, err
	}
	appLog.Debug("task moved", "from", fromDay.String(), "to", toDay.String(), "id", task.ID)
	return task, nil
}

// DeleteTask removes an authored task from day.
func (s *Service) DeleteTask(ctx context.Context, day model.CalendarDay, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.days.Get(ctx, day)
	if err != nil {
		return err
	}
	rec.Tasks = authored(rec.Tasks)
	n := len(rec.Tasks)
	rec.Tasks = slices.DeleteFunc(rec.Tasks, func(t model.Task) bool { return t.ID == id })
	if len(rec.Tasks) == n {
		return fmt.Errorf("%w: %s on %s", ErrTaskNotFound, id, day)
	}
	return s.days.Put(ctx, rec)
}

// UpdateJournal replaces the journal fields of day, keeping its tasks.
func (s *Service) UpdateJournal(ctx context.Context, day model.CalendarDay, good model.GoodThings, improve model.Improvements) (model.DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.days.Get(ctx, day)
	if err != nil {
		return model.DayRecord{}, err
	}
	rec.GoodThings = good
	rec.Improvements = improve
	if err := s.days.Put(ctx, rec); err != nil {
		return model.DayRecord{}, err
	}
	return rec, nil
}

// EditOccurrence applies an edit of one occurrence or of it and every later one.
func (s *Service) EditOccurrence(ctx context.Context, req series.Request) (series.Plan, error) {
	req.Action = series.ActionEdit
	return s.mutate(ctx, req)
}

// DeleteOccurrence deletes one occurrence or it and every later one.
func (s *Service) DeleteOccurrence(ctx context.Context, req series.Request) (series.Plan, error) {
	req.Action = series.ActionDelete
	return s.mutate(ctx, req)
}

func (s *Service) mutate(ctx context.Context, req series.Request) (series.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.rules.List(ctx)
	if err != nil {
		return series.Plan{}, err
	}
	plan, err := s.series.Plan(rules, req)
	if err != nil {
		return series.Plan{}, err
	}

	entries := make([]store.Entry, 0, 2)
	e, err := s.rules.Entry(plan.Rules)
	if err != nil {
		return series.Plan{}, fmt.Errorf("%w: %w", series.ErrMutationFailed, err)
	}
	entries = append(entries, e)

	if plan.Standalone != nil {
		rec, err := s.days.Get(ctx, plan.TargetDay)
		if err != nil {
			return series.Plan{}, fmt.Errorf("%w: %w", series.ErrMutationFailed, err)
		}
		rec.Tasks = append(authored(rec.Tasks), *plan.Standalone)
		e, err := s.days.Entry(rec)
		if err != nil {
			return series.Plan{}, fmt.Errorf("%w: %w", series.ErrMutationFailed, err)
		}
		entries = append(entries, e)
	}

	if err := s.backend.PutBatch(ctx, entries); err != nil {
		appLog.Error("series mutation failed", err, "rule", req.Occurrence.RecurringID, "scope", string(req.Scope))
		return series.Plan{}, fmt.Errorf("%w: %w", series.ErrMutationFailed, err)
	}
	appLog.Info("series mutated",
		"rule", req.Occurrence.RecurringID,
		"action", string(req.Action),
		"scope", string(req.Scope),
		"created", plan.Created,
	)
	return plan, nil
}

// Rules returns every stored rule.
func (s *Service) Rules(ctx context.Context) ([]model.RecurrenceRule, error) {
	return s.rules.List(ctx)
}

// Upcoming returns the next count start instants of a rule after now.
func (s *Service) Upcoming(ctx context.Context, ruleID string, count int) ([]time.Time, error) {
	rule, err := s.rule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	loc, err := s.zones.Resolve(rule.Timezone)
	if err != nil {
		return nil, err
	}
	return recurrence.Upcoming(rule, loc, s.now(), count)
}

func (s *Service) rule(ctx context.Context, id string) (model.RecurrenceRule, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return model.RecurrenceRule{}, err
	}
	i := slices.IndexFunc(rules, func(r model.RecurrenceRule) bool { return r.ID == id })
	if i < 0 {
		return model.RecurrenceRule{}, fmt.Errorf("%w: %s", series.ErrRuleNotFound, id)
	}
	return rules[i], nil
}

// ExportICS renders every rule plus the authored tasks of from..to.
func (s *Service) ExportICS(ctx context.Context, from, to model.CalendarDay) (string, error) {
	if to.Before(from) || to.DaysSince(from) >= ics.MaxDays {
		return "", fmt.Errorf("%w: %s..%s", ErrInvalidRange, from, to)
	}
	rules, err := s.rules.List(ctx)
	if err != nil {
		return "", err
	}
	var days []model.DayRecord
	for d := from; !d.After(to); d = d.AddDays(1) {
		rec, err := s.days.Get(ctx, d)
		if err != nil {
			return "", err
		}
		days = append(days, rec)
	}
	return s.exporter.Export(rules, days), nil
}

func (s *Service) putDays(ctx context.Context, recs ...model.DayRecord) error {
	entries := make([]store.Entry, 0, len(recs))
	for _, rec := range recs {
		e, err := s.days.Entry(rec)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	return s.backend.PutBatch(ctx, entries)
}

// authored drops materialized occurrences.
func authored(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.IsOccurrence() {
			out = append(out, t)
		}
	}
	return out
}

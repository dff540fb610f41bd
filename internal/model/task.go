package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidTask is returned when authored task fields cannot be normalized
// into a valid slot on the 30-minute grid.
var ErrInvalidTask = errors.New("invalid task")

const (
	SlotMinutes = 30
	DayMinutes  = 24 * 60
)

// TaskColors is the palette offered for new tasks; the first entry is the default.
var TaskColors = []string{
	"#5E97F6",
	"#E67C73",
	"#F6BF26",
	"#33B679",
	"#8E24AA",
	"#039BE5",
	"#F4511E",
	"#616161",
	"#D81B60",
	"#0B8043",
}

// TaskTemplate holds a task's display fields. StartHour/StartMinute sit on
// the 30-minute grid and Duration is a positive multiple of 30 minutes.
type TaskTemplate struct {
	Title       string `json:"title"`
	StartHour   int    `json:"startHour"`
	StartMinute int    `json:"startMinute"`
	Duration    int    `json:"duration"`
	Color       string `json:"color"`
	Location    string `json:"location,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Task is either an authored task owned by one day record, or a materialized
// occurrence of a recurrence rule. Occurrences carry RecurringID and
// OccurrenceDate; authored tasks never do.
type Task struct {
	ID string `json:"id"`
	TaskTemplate

	RecurringID     string          `json:"recurringId,omitempty"`
	RecurringConfig *RecurrenceRule `json:"recurringConfig,omitempty"`
	// OccurrenceDate is the day the occurrence falls on in the rule's own zone.
	OccurrenceDate *CalendarDay `json:"occurrenceDate,omitempty"`
}

func (t Task) IsOccurrence() bool {
	return t.RecurringID != ""
}

// Authored strips every recurrence reference from t.
func (t Task) Authored() Task {
	t.RecurringID = ""
	t.RecurringConfig = nil
	t.OccurrenceDate = nil
	return t
}

// NewID returns a fresh opaque identifier for rules and tasks.
func NewID() string {
	return uuid.NewString()
}

// StartMinutes returns the start as minutes after midnight.
func (t TaskTemplate) StartMinutes() int {
	return t.StartHour*60 + t.StartMinute
}

// Normalize returns t snapped onto the 30-minute grid with its end clamped
// to midnight. It fails when the title is blank or the start is not a clock
// time.
func (t TaskTemplate) Normalize() (TaskTemplate, error) {
	t.Title = strings.TrimSpace(t.Title)
	t.Location = strings.TrimSpace(t.Location)
	t.Notes = strings.TrimSpace(t.Notes)
	if t.Title == "" {
		return t, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if t.StartHour < 0 || t.StartHour > 23 || t.StartMinute < 0 || t.StartMinute > 59 {
		return t, fmt.Errorf("%w: start %02d:%02d out of range", ErrInvalidTask, t.StartHour, t.StartMinute)
	}

	start := snap(t.StartMinutes())
	if start >= DayMinutes {
		start = DayMinutes - SlotMinutes
	}
	t.StartHour, t.StartMinute = start/60, start%60

	duration := snap(t.Duration)
	if duration < SlotMinutes {
		duration = SlotMinutes
	}
	if start+duration > DayMinutes {
		duration = DayMinutes - start
	}
	t.Duration = duration

	if t.Color == "" {
		t.Color = TaskColors[0]
	}
	return t, nil
}

// snap rounds minutes to the nearest grid slot.
func snap(minutes int) int {
	return (minutes + SlotMinutes/2) / SlotMinutes * SlotMinutes
}

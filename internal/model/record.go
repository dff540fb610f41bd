package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedRecord is returned when a persisted document fails to parse or
// does not have the expected shape.
var ErrMalformedRecord = errors.New("malformed stored record")

type GoodThings struct {
	Thing1 string `json:"thing1"`
	Thing2 string `json:"thing2"`
	Thing3 string `json:"thing3"`
}

type Improvements struct {
	Item1 string `json:"item1"`
	Item2 string `json:"item2"`
	Item3 string `json:"item3"`
}

// DayRecord is the persisted shape of one calendar day.
type DayRecord struct {
	Date         CalendarDay  `json:"date"`
	Tasks        []Task       `json:"tasks"`
	GoodThings   GoodThings   `json:"goodThings"`
	Improvements Improvements `json:"improvements"`
}

func NewEmptyDay(day CalendarDay) DayRecord {
	return DayRecord{Date: day, Tasks: []Task{}}
}

// storedDay mirrors DayRecord on the read path so that a missing
// "improvements" object can be told apart from an empty one.
type storedDay struct {
	Date         *CalendarDay  `json:"date"`
	Tasks        []Task        `json:"tasks"`
	GoodThings   GoodThings    `json:"goodThings"`
	Improvements *Improvements `json:"improvements"`
	Improvement  string        `json:"improvement"`
}

// DecodeDayRecord parses a stored day document for day. Records written
// before the three-item improvements list carry a single "improvement"
// string; it moves into Improvements.Item1.
func DecodeDayRecord(day CalendarDay, data []byte) (DayRecord, error) {
	var raw storedDay
	if err := json.Unmarshal(data, &raw); err != nil {
		return DayRecord{}, fmt.Errorf("%w: day %s: %v", ErrMalformedRecord, day, err)
	}
	if raw.Date != nil && *raw.Date != day {
		return DayRecord{}, fmt.Errorf("%w: day %s: record is dated %s", ErrMalformedRecord, day, *raw.Date)
	}

	rec := DayRecord{
		Date:       day,
		Tasks:      raw.Tasks,
		GoodThings: raw.GoodThings,
	}
	if rec.Tasks == nil {
		rec.Tasks = []Task{}
	}
	if raw.Improvements != nil {
		rec.Improvements = *raw.Improvements
	} else {
		rec.Improvements = Improvements{Item1: raw.Improvement}
	}
	return rec, nil
}

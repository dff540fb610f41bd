package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
)

// DayStore reads and writes one document per calendar day, keyed YYYY-MM-DD.
type DayStore struct {
	s Store
}

func NewDayStore(s Store) *DayStore {
	return &DayStore{s: s}
}

// Get returns the stored record for day. A missing record is empty. A record
// that fails to decode is logged and replaced by an empty one; storage
// errors are returned.
func (d *DayStore) Get(ctx context.Context, day model.CalendarDay) (model.DayRecord, error) {
	data, err := d.s.Get(ctx, day.String())
	if errors.Is(err, ErrNotFound) {
		return model.NewEmptyDay(day), nil
	}
	if err != nil {
		return model.DayRecord{}, err
	}

	rec, err := model.DecodeDayRecord(day, data)
	if err != nil {
		appLog.Error("discarding malformed day record", err, "day", day.String())
		return model.NewEmptyDay(day), nil
	}
	return rec, nil
}

func (d *DayStore) Put(ctx context.Context, rec model.DayRecord) error {
	e, err := d.Entry(rec)
	if err != nil {
		return err
	}
	return d.s.Put(ctx, e.Key, e.Value)
}

// Entry encodes rec for a batch write.
func (d *DayStore) Entry(rec model.DayRecord) (Entry, error) {
	if rec.Date.IsZero() {
		return Entry{}, fmt.Errorf("%w: day record without date", ErrInvalidKey)
	}
	if rec.Tasks == nil {
		rec.Tasks = []model.Task{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("encode day %s: %w", rec.Date, err)
	}
	return Entry{Key: rec.Date.String(), Value: data}, nil
}

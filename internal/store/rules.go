package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"dayplan/internal/model"
)

// RulesKey is the document holding the full rule list. It can never collide
// with a YYYY-MM-DD day key.
const RulesKey = "recurring"

// RuleStore reads and writes the recurrence rule list as one document.
type RuleStore struct {
	s Store
}

func NewRuleStore(s Store) *RuleStore {
	return &RuleStore{s: s}
}

// List returns every stored rule. A missing document is an empty list; a
// corrupt one is an ErrMalformedRecord error, so that it is never
// overwritten by a write based on an empty list.
func (r *RuleStore) List(ctx context.Context) ([]model.RecurrenceRule, error) {
	data, err := r.s.Get(ctx, RulesKey)
	if errors.Is(err, ErrNotFound) {
		return []model.RecurrenceRule{}, nil
	}
	if err != nil {
		return nil, err
	}

	var rules []model.RecurrenceRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("%w: rules: %v", model.ErrMalformedRecord, err)
	}
	if rules == nil {
		rules = []model.RecurrenceRule{}
	}
	return rules, nil
}

// Put inserts rule or replaces the stored rule with the same id.
func (r *RuleStore) Put(ctx context.Context, rule model.RecurrenceRule) error {
	rules, err := r.List(ctx)
	if err != nil {
		return err
	}
	if i := slices.IndexFunc(rules, func(x model.RecurrenceRule) bool { return x.ID == rule.ID }); i >= 0 {
		rules[i] = rule
	} else {
		rules = append(rules, rule)
	}
	return r.Replace(ctx, rules)
}

// Delete removes the rule with id. Deleting an unknown id is not an error.
func (r *RuleStore) Delete(ctx context.Context, id string) error {
	rules, err := r.List(ctx)
	if err != nil {
		return err
	}
	return r.Replace(ctx, slices.DeleteFunc(rules, func(x model.RecurrenceRule) bool { return x.ID == id }))
}

// Replace overwrites the whole list.
func (r *RuleStore) Replace(ctx context.Context, rules []model.RecurrenceRule) error {
	e, err := r.Entry(rules)
	if err != nil {
		return err
	}
	return r.s.Put(ctx, e.Key, e.Value)
}

// Entry encodes rules for a batch write.
func (r *RuleStore) Entry(rules []model.RecurrenceRule) (Entry, error) {
	if rules == nil {
		rules = []model.RecurrenceRule{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("encode rules: %w", err)
	}
	return Entry{Key: RulesKey, Value: data}, nil
}

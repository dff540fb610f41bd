// Package store persists day records and the recurrence rule list behind a
// small key/value interface with an all-or-nothing batch write.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get for keys that were never written.
	ErrNotFound = errors.New("key not found")
	// ErrInvalidKey is returned for keys that cannot name a document.
	ErrInvalidKey = errors.New("invalid key")
)

// Entry is one key/value pair of a batch.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a key/value document store. PutBatch either applies every entry
// or none of them.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	PutBatch(ctx context.Context, entries []Entry) error
	Close() error
}

// checkKey accepts lower-case letters, digits and '-', which covers
// YYYY-MM-DD day keys and the rules key.
func checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

func checkEntries(entries []Entry) error {
	for _, e := range entries {
		if err := checkKey(e.Key); err != nil {
			return err
		}
	}
	return nil
}

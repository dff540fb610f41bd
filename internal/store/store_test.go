package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "dayplan/internal/log"
	"dayplan/internal/model"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	db, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{"file": fs, "sqlite": db}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "2024-01-01")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "2024-01-01", []byte(`{"a":1}`)))
			got, err := s.Get(ctx, "2024-01-01")
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(got))

			require.NoError(t, s.Put(ctx, "2024-01-01", []byte(`{"a":2}`)))
			got, err = s.Get(ctx, "2024-01-01")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(got))

			require.NoError(t, s.PutBatch(ctx, []Entry{
				{Key: RulesKey, Value: []byte(`[]`)},
				{Key: "2024-01-02", Value: []byte(`{}`)},
			}))
			got, err = s.Get(ctx, RulesKey)
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))
			got, err = s.Get(ctx, "2024-01-02")
			require.NoError(t, err)
			assert.Equal(t, `{}`, string(got))
		})
	}
}

func TestInvalidKeysWriteNothing(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "../etc", "a/b", "Upper", "x.json"} {
				_, err := s.Get(ctx, key)
				assert.ErrorIs(t, err, ErrInvalidKey, key)
			}

			err := s.PutBatch(ctx, []Entry{
				{Key: "2024-01-01", Value: []byte(`{}`)},
				{Key: "../escape", Value: []byte(`{}`)},
			})
			assert.ErrorIs(t, err, ErrInvalidKey)
			_, err = s.Get(ctx, "2024-01-01")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStoreBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "a", []byte("old")))

	failing := errors.New("disk full")
	rename = func(from, to string) error {
		if strings.HasSuffix(to, "c.json") {
			return failing
		}
		return os.Rename(from, to)
	}
	t.Cleanup(func() { rename = os.Rename })

	err = s.PutBatch(ctx, []Entry{
		{Key: "a", Value: []byte("new")},
		{Key: "b", Value: []byte("fresh")},
		{Key: "c", Value: []byte("never")},
	})
	require.ErrorIs(t, err, failing)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)

	// No staged temp files are left behind.
	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "a.json", names[0].Name())
}

func TestFileStorePermissions(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "2024-03-01", []byte("{}")))

	info, err := os.Stat(filepath.Join(dir, "2024-03-01.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRuleStore(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rules := NewRuleStore(s)

			got, err := rules.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)

			a := model.RecurrenceRule{ID: "a", Kind: model.RepeatDaily, StartDate: model.MustParseDay("2024-01-01"), Timezone: "UTC"}
			b := a
			b.ID = "b"
			require.NoError(t, rules.Put(ctx, a))
			require.NoError(t, rules.Put(ctx, b))

			a.Template.Title = "renamed"
			require.NoError(t, rules.Put(ctx, a))

			got, err = rules.List(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "renamed", got[0].Template.Title)
			assert.Equal(t, "b", got[1].ID)

			require.NoError(t, rules.Delete(ctx, "a"))
			require.NoError(t, rules.Delete(ctx, "missing"))
			got, err = rules.List(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "b", got[0].ID)
		})
	}
}

func TestCorruptRulesAreAnError(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, RulesKey, []byte(`{not json`)))
			rules := NewRuleStore(s)

			_, err := rules.List(ctx)
			assert.ErrorIs(t, err, model.ErrMalformedRecord)

			err = rules.Put(ctx, model.RecurrenceRule{ID: "x"})
			assert.ErrorIs(t, err, model.ErrMalformedRecord)
			raw, err := s.Get(ctx, RulesKey)
			require.NoError(t, err)
			assert.Equal(t, `{not json`, string(raw))
		})
	}
}

func TestDayStore(t *testing.T) {
	ctx := context.Background()
	day := model.MustParseDay("2024-05-06")

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			days := NewDayStore(s)

			rec, err := days.Get(ctx, day)
			require.NoError(t, err)
			assert.Equal(t, model.NewEmptyDay(day), rec)

			rec.Tasks = append(rec.Tasks, model.Task{ID: "t1", TaskTemplate: model.TaskTemplate{Title: "write", StartHour: 10, Duration: 60, Color: "#5E97F6"}})
			rec.GoodThings.Thing1 = "sunny"
			require.NoError(t, days.Put(ctx, rec))

			got, err := days.Get(ctx, day)
			require.NoError(t, err)
			assert.Equal(t, rec, got)
		})
	}
}

func TestDayStoreRecoversMalformedRecord(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	t.Cleanup(func() { appLog.SetOutput(os.Stderr) })

	ctx := context.Background()
	day := model.MustParseDay("2024-05-06")
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Put(ctx, day.String(), []byte(`{"tasks": 7}`)))

	rec, err := NewDayStore(s).Get(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, model.NewEmptyDay(day), rec)
	assert.Contains(t, buf.String(), "[ERROR] discarding malformed day record")
	assert.Contains(t, buf.String(), "day=2024-05-06")
}

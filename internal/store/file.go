package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	appLog "dayplan/internal/log"
)

// rename is swapped in tests to fail mid-batch.
var rename = os.Rename

// FileStore keeps one JSON document per key in a directory, as <key>.json.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed (0700).
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("data dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	return s.PutBatch(ctx, []Entry{{Key: key, Value: value}})
}

// previous is a document's content before a batch touched it.
type previous struct {
	data   []byte
	exists bool
}

// PutBatch stages every entry in a temp file next to its target, then
// renames them into place. If a rename fails, the documents already replaced
// are restored from their previous content.
func (s *FileStore) PutBatch(ctx context.Context, entries []Entry) error {
	if err := checkEntries(entries); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make([]previous, len(entries))
	for i, e := range entries {
		data, err := os.ReadFile(s.path(e.Key))
		switch {
		case err == nil:
			prev[i] = previous{data: data, exists: true}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read %s: %w", e.Key, err)
		}
	}

	temps := make([]string, 0, len(entries))
	defer func() {
		for _, name := range temps {
			os.Remove(name)
		}
	}()
	for _, e := range entries {
		name, err := s.stage(e.Value)
		if err != nil {
			return fmt.Errorf("stage %s: %w", e.Key, err)
		}
		temps = append(temps, name)
	}

	for i, e := range entries {
		if err := rename(temps[i], s.path(e.Key)); err != nil {
			s.restore(entries[:i], prev[:i])
			return fmt.Errorf("write %s: %w", e.Key, err)
		}
	}
	return nil
}

// stage writes data to a synced temp file in the data dir with 0600 perms.
func (s *FileStore) stage(data []byte) (string, error) {
	tmp, err := os.CreateTemp(s.dir, ".dayplan-*.tmp")
	if err != nil {
		return "", err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func (s *FileStore) restore(entries []Entry, prev []previous) {
	for i, e := range entries {
		target := s.path(e.Key)
		if !prev[i].exists {
			if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				appLog.Error("rollback remove failed", err, "key", e.Key)
			}
			continue
		}
		name, err := s.stage(prev[i].data)
		if err == nil {
			if err = rename(name, target); err != nil {
				os.Remove(name)
			}
		}
		if err != nil {
			appLog.Error("rollback restore failed", err, "key", e.Key)
		}
	}
}

func (s *FileStore) Close() error { return nil }

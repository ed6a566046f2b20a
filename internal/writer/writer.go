package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/SAScholar/STConverterWatchingDog/internal/queue"
)

// ErrLockTimeout is returned when another process holds the record lock
// for longer than the configured timeout.
var ErrLockTimeout = errors.New("record lock not acquired in time")

const lockRetryDelay = 100 * time.Millisecond

// Store persists the set of processed revision IDs as a JSON record file.
// Readers and writers in different processes coordinate through a lock file.
type Store struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
}

// New creates a Store for the record at path guarded by lockPath
func New(path, lockPath string, lockTimeout time.Duration) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("record path is empty")
	}
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", dir, err)
		}
	}
	return &Store{
		path:        path,
		lock:        flock.New(lockPath),
		lockTimeout: lockTimeout,
	}, nil
}

// Path returns the record file location
func (s *Store) Path() string {
	return s.path
}

// Lock takes the exclusive record lock, waiting at most the configured
// timeout. The returned func releases it.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", s.lock.Path(), ctx.Err())
	}
	if !locked {
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to lock %s: %w", s.lock.Path(), err)
		}
		return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, s.lock.Path(), s.lockTimeout)
	}
	return s.lock.Unlock, nil
}

// record mirrors the on-disk document. Keys other than "done" are kept
// untouched across rewrites.
type record struct {
	extra map[string]json.RawMessage
}

// Load reads the record file. A missing file yields an empty set.
func (s *Store) Load() (*queue.SeenSet, error) {
	rec, err := s.read()
	if err != nil {
		return nil, err
	}
	var done []int64
	if raw, ok := rec.extra["done"]; ok {
		if err := json.Unmarshal(raw, &done); err != nil {
			return nil, fmt.Errorf("failed to decode done list in %s: %w", s.path, err)
		}
	}
	return queue.New(done...), nil
}

// Save rewrites the record file with the IDs in set. The file is replaced
// atomically so a crash never leaves a truncated record behind.
func (s *Store) Save(set *queue.SeenSet) error {
	rec, err := s.read()
	if err != nil {
		return err
	}
	done, err := json.Marshal(set.IDs())
	if err != nil {
		return fmt.Errorf("failed to encode done list: %w", err)
	}
	rec.extra["done"] = done

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(rec.extra); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

func (s *Store) read() (*record, error) {
	rec := &record{extra: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(data, &rec.extra); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", s.path, err)
	}
	if rec.extra == nil {
		rec.extra = make(map[string]json.RawMessage)
	}
	return rec, nil
}

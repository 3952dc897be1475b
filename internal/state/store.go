package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/iambrandonn/chaba/internal/errs"
	"github.com/iambrandonn/chaba/internal/fsutil"
	"github.com/iambrandonn/chaba/internal/logging"
)

// Store reads and writes a state file. It holds no cached state.
type Store struct {
	path   string
	logger *zap.Logger
}

// Open returns a store backed by the file at path. The file need not exist.
func Open(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logging.OrNop(logger)}
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Load reads the state file under a shared lock. A missing file yields an
// empty state at version 0. A corrupt file is reported, never repaired.
func (s *Store) Load() (*State, error) {
	data, err := s.readShared()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &State{}, nil
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errs.Serialization("decode state "+s.path, err)
	}
	st.dedupe()
	return &st, nil
}

// Save persists st if the file still holds the version st was loaded at.
//
// A mismatch returns *errs.ConflictError and leaves the file untouched. On
// success the file holds st at version+1 and st.Version is updated to match.
// Save never retries; see Transact.
func (s *Store) Save(st *State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return errs.IO("create state directory", err)
	}

	// The sidecar lock spans check and rename so two writers holding the same
	// version cannot both pass the check.
	lockFile, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return errs.IO("open state lock", err)
	}
	defer lockFile.Close()

	unlock, err := fsutil.LockExclusive(lockFile)
	if err != nil {
		return errs.IO("lock state", err)
	}
	defer unlock()

	actual, err := s.diskVersion()
	if err != nil {
		return err
	}
	if actual != st.Version {
		return &errs.ConflictError{Expected: st.Version, Actual: actual}
	}

	next := *st
	next.Version = st.Version + 1
	data, err := yaml.Marshal(&next)
	if err != nil {
		return errs.Serialization("encode state", err)
	}

	if err := fsutil.AtomicWriteLocked(s.path, data); err != nil {
		return errs.IO("write state "+s.path, err)
	}

	st.Version = next.Version
	s.logger.Debug("state saved", zap.String("path", s.path), zap.Uint64("version", st.Version))
	return nil
}

// AddRecord loads the state, inserts r and saves once. A concurrent writer
// surfaces as a conflict; use Transact to retry.
func (s *Store) AddRecord(r Record) (*State, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	st.Put(r)
	if err := s.Save(st); err != nil {
		return nil, err
	}
	return st, nil
}

// RemoveRecord loads the state, drops the record and saves once.
func (s *Store) RemoveRecord(id int) (*State, error) {
	st, err := s.Load()
	if err != nil {
		return nil, err
	}
	if !st.Remove(id) {
		return nil, errs.NotFoundf("review #%d", id)
	}
	if err := s.Save(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Transact runs load, fn, save and repeats the cycle when the save conflicts,
// up to maxAttempts times. fn must be safe to re-run against a fresh state.
// Any error other than a conflict, including one returned by fn, stops the loop.
func (s *Store) Transact(ctx context.Context, maxAttempts int, fn func(*State) error) (*State, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st, err := s.Load()
		if err != nil {
			return nil, err
		}
		if err := fn(st); err != nil {
			return nil, err
		}

		err = s.Save(st)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, errs.ErrConflict) {
			return nil, err
		}

		lastErr = err
		s.logger.Debug("state conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		if attempt < maxAttempts {
			if err := sleepCtx(ctx, time.Duration(attempt)*10*time.Millisecond); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

// readShared returns the file contents read under a shared lock, or nil if
// the file does not exist.
func (s *Store) readShared() ([]byte, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.IO("open state "+s.path, err)
	}
	defer f.Close()

	unlock, err := fsutil.LockShared(f)
	if err != nil {
		return nil, errs.IO("lock state", err)
	}
	defer unlock()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errs.IO("read state "+s.path, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// diskVersion reads only the version field; a missing file counts as version 0.
func (s *Store) diskVersion() (uint64, error) {
	data, err := s.readShared()
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}
	var header struct {
		Version uint64 `yaml:"version"`
	}
	if err := yaml.Unmarshal(data, &header); err != nil {
		return 0, errs.Serialization("decode state version", err)
	}
	return header.Version, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

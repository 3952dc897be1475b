// Package history keeps an append-only journal of environment lifecycle
// events next to the state file.
package history

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iambrandonn/chaba/internal/fsutil"
	"github.com/iambrandonn/chaba/internal/logging"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindCreated  Kind = "created"
	KindRemoved  Kind = "removed"
	KindAnalyzed Kind = "analyzed"
	KindPruned   Kind = "pruned"
)

// Event is one journal line.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	PR        int       `json:"pr_number"`
	Branch    string    `json:"branch,omitempty"`
	Path      string    `json:"worktree_path,omitempty"`
	Port      *int      `json:"port,omitempty"`
	Agents    []string  `json:"agents,omitempty"`
	Findings  int       `json:"findings,omitempty"`
}

// Journal appends events to an NDJSON file. Appends from separate processes
// are serialized with an exclusive lock on the file.
type Journal struct {
	path    string
	file    *os.File
	encoder *Encoder
	logger  *zap.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// Open opens (creating if needed) the journal at path for appending.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	logger = logging.OrNop(logger)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}

	return &Journal{
		path:    path,
		file:    file,
		encoder: NewEncoder(file, logger),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Path returns the journal location.
func (j *Journal) Path() string { return j.path }

// Append writes evt, filling in ID and Timestamp when they are unset.
func (j *Journal) Append(evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = j.now().UTC()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New("history journal is closed")
	}

	unlock, err := fsutil.LockExclusive(j.file)
	if err != nil {
		return fmt.Errorf("failed to lock history file: %w", err)
	}
	defer unlock()

	if err := j.encoder.Encode(evt); err != nil {
		return err
	}
	j.logger.Debug("history event appended",
		zap.String("kind", string(evt.Kind)),
		zap.Int("pr", evt.PR))
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Read returns every event in the journal at path, oldest first. A missing
// journal reads as empty. Lines that fail to parse are skipped.
func Read(path string, logger *zap.Logger) ([]Event, error) {
	logger = logging.OrNop(logger)

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	defer file.Close()

	events := make([]Event, 0)
	skipped := 0
	dec := NewDecoder(file, logger)
	for {
		var evt Event
		err := dec.Decode(&evt)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if dec.scanner.Err() != nil {
				return nil, fmt.Errorf("error reading history: %w", err)
			}
			skipped++
			continue
		}
		events = append(events, evt)
	}

	if skipped > 0 {
		logger.Warn("skipped unreadable history lines", zap.Int("count", skipped))
	}
	return events, nil
}

// Filter returns the events for a single environment.
func Filter(events []Event, id int) []Event {
	out := make([]Event, 0)
	for _, evt := range events {
		if evt.PR == id {
			out = append(out, evt)
		}
	}
	return out
}

// Package state persists the set of live review environments.
//
// The backing file is the only authority: every operation reloads it, so
// several chaba processes can share one file. Writers are serialized by a
// version counter (optimistic locking) rather than by holding a lock across
// their whole read-modify-write cycle.
package state

import (
	"time"

	"github.com/iambrandonn/chaba/internal/analysis"
)

// Record describes one provisioned review environment.
type Record struct {
	ID            int               `yaml:"pr_number"`
	Branch        string            `yaml:"branch"`
	Path          string            `yaml:"worktree_path"`
	CreatedAt     time.Time         `yaml:"created_at"`
	Port          *int              `yaml:"port,omitempty"`
	ProjectType   string            `yaml:"project_type,omitempty"`
	DepsInstalled bool              `yaml:"deps_installed"`
	EnvCopied     bool              `yaml:"env_copied"`
	Analyses      []analysis.Result `yaml:"agent_analyses,omitempty"`
}

// State is the full contents of the state file.
type State struct {
	Version uint64   `yaml:"version"`
	Records []Record `yaml:"reviews"`
}

// Find returns the record with the given identifier.
// The returned pointer aliases the stored record.
func (s *State) Find(id int) (*Record, bool) {
	for i := range s.Records {
		if s.Records[i].ID == id {
			return &s.Records[i], true
		}
	}
	return nil, false
}

// Put inserts r, replacing any record with the same identifier.
func (s *State) Put(r Record) {
	if existing, ok := s.Find(r.ID); ok {
		*existing = r
		return
	}
	s.Records = append(s.Records, r)
}

// Remove deletes the record with the given identifier and reports whether one existed.
func (s *State) Remove(id int) bool {
	for i := range s.Records {
		if s.Records[i].ID == id {
			s.Records = append(s.Records[:i], s.Records[i+1:]...)
			return true
		}
	}
	return false
}

// AssignedPorts returns every port held by a live record.
func (s *State) AssignedPorts() map[int]struct{} {
	ports := make(map[int]struct{})
	for _, r := range s.Records {
		if r.Port != nil {
			ports[*r.Port] = struct{}{}
		}
	}
	return ports
}

// dedupe keeps the last record for each identifier, preserving first-seen order.
func (s *State) dedupe() {
	if len(s.Records) < 2 {
		return
	}
	out := make([]Record, 0, len(s.Records))
	index := make(map[int]int, len(s.Records))
	for _, r := range s.Records {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	s.Records = out
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package state holds the engine's working memory: the environment
// snapshot operators act on, the goal stack, and the transition
// history loop detection and the tabu penalty read from.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// FileRecord is everything the engine knows about one open file.
type FileRecord struct {
	Content      string
	Language     string
	LastModified time.Time
}

// State is an immutable working-memory snapshot. Operators never
// mutate a State in place; they produce a successor via Clone plus
// field assignment (spec.md §3).
type State struct {
	WorkingDir      string
	Files           map[string]FileRecord
	Cursors         map[string]int
	ErrorLog        []string
	LastCommandOut  string
	RepoStatus      string
}

// maxErrorLog bounds the error log so a long-running solve can't grow
// state without limit.
const maxErrorLog = 50

// New returns an empty State rooted at dir.
func New(dir string) State {
	return State{
		WorkingDir: dir,
		Files:      make(map[string]FileRecord),
		Cursors:    make(map[string]int),
	}
}

// Clone returns a deep copy so callers can mutate the result without
// affecting s.
func (s State) Clone() State {
	out := State{
		WorkingDir:     s.WorkingDir,
		Files:          make(map[string]FileRecord, len(s.Files)),
		Cursors:        make(map[string]int, len(s.Cursors)),
		ErrorLog:       append([]string(nil), s.ErrorLog...),
		LastCommandOut: s.LastCommandOut,
		RepoStatus:     s.RepoStatus,
	}
	for k, v := range s.Files {
		out.Files[k] = v
	}
	for k, v := range s.Cursors {
		out.Cursors[k] = v
	}
	return out
}

// WithFile returns a copy of s with path's record set to rec.
func (s State) WithFile(path string, rec FileRecord) State {
	out := s.Clone()
	out.Files[path] = rec
	return out
}

// WithError returns a copy of s with msg appended to the error log,
// trimmed to maxErrorLog newest entries.
func (s State) WithError(msg string) State {
	out := s.Clone()
	out.ErrorLog = append(out.ErrorLog, msg)
	if len(out.ErrorLog) > maxErrorLog {
		out.ErrorLog = out.ErrorLog[len(out.ErrorLog)-maxErrorLog:]
	}
	return out
}

// LastError returns the newest error log entry, if any.
func (s State) LastError() (string, bool) {
	if len(s.ErrorLog) == 0 {
		return "", false
	}
	return s.ErrorLog[len(s.ErrorLog)-1], true
}

// OpenPaths returns the state's open file paths in sorted order.
func (s State) OpenPaths() []string {
	paths := make([]string, 0, len(s.Files))
	for p := range s.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Hash returns a deterministic content hash of the state, used to
// stamp Transition.FromHash/ToHash.
func (s State) Hash() string {
	var b strings.Builder
	b.WriteString(s.WorkingDir)
	b.WriteByte('\n')
	for _, p := range s.OpenPaths() {
		b.WriteString(p)
		b.WriteByte('=')
		b.WriteString(s.Files[p].Content)
		b.WriteByte('\n')
	}
	for _, e := range s.ErrorLog {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// Signature returns the state signature used for chunk retrieval
// (spec.md §3 invariants): a deterministic function of the goal text
// prefix, working directory, up to 5 open-file paths, and a prefix of
// the most recent error string.
func Signature(s State, goalText string) string {
	const goalPrefixLen = 80
	const errorPrefixLen = 80

	goal := goalText
	if len(goal) > goalPrefixLen {
		goal = goal[:goalPrefixLen]
	}

	paths := s.OpenPaths()
	if len(paths) > 5 {
		paths = paths[:5]
	}

	errPrefix := ""
	if last, ok := s.LastError(); ok {
		errPrefix = last
		if len(errPrefix) > errorPrefixLen {
			errPrefix = errPrefix[:errorPrefixLen]
		}
	}

	return fmt.Sprintf("%s|%s|%s|%s", goal, s.WorkingDir, strings.Join(paths, ","), errPrefix)
}

// GoalStatus is the lifecycle state of a Goal.
type GoalStatus string

const (
	GoalActive  GoalStatus = "active"
	GoalSuccess GoalStatus = "success"
	GoalFailure GoalStatus = "failure"
)

// Goal is a node in the goal tree (spec.md §3). ParentID addresses
// the parent relationally; Goal itself carries no back-pointer beyond
// that ID so the tree can be stored as a flat arena.
type Goal struct {
	ID          string
	Description string
	ParentID    string
	HasParent   bool
	SubGoals    []string
	Status      GoalStatus
	Priority    float64
}

// Depth returns g's distance to the root, using arena to walk parent
// references.
func Depth(arena map[string]*Goal, g *Goal) int {
	depth := 0
	cur := g
	for cur.HasParent {
		parent, ok := arena[cur.ParentID]
		if !ok {
			break
		}
		depth++
		cur = parent
	}
	return depth
}

// OperatorResult is the outcome of executing an Operator.
type OperatorResult struct {
	Success  bool
	NewState *State
	Output   string
	Err      error
}

// Operator is the capability interface every concrete action
// (read_file, list_directory, write_file, apply_fix, run_code)
// implements (spec.md §3, §6).
type Operator interface {
	Name() string
	IsDestructive() bool
	IsApplicable(s State, g Goal) bool
	Execute(s State) OperatorResult
}

// Transition is one completed decision-cycle step, kept in a bounded
// ring by WorkingMemory.
type Transition struct {
	OperatorName string
	Success      bool
	Err          string
	Timestamp    time.Time
	FromHash     string
	ToHash       string
}

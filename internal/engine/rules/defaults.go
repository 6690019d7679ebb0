// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package rules

import (
	"strings"

	"github.com/latticeforge/neurocore/internal/engine/state"
	"github.com/latticeforge/neurocore/internal/operator"
)

// RegisterDefaults installs the five default rules and their nominal
// priorities from spec.md §4.3: error-driven file open (6),
// file-in-goal open (5), inspection read (4.5, strictly below
// file-in-goal so the two don't tie when a goal both names a file and
// asks to read it), list-directory exploration (4), explore-when-empty
// (3).
func RegisterDefaults(e *Engine) {
	e.Register(Rule{
		Name:     "error_driven_open",
		Priority: 6,
		Reason:   "opening the file named in the most recent error",
		Condition: func(s state.State, g state.Goal) bool {
			last, ok := s.LastError()
			return ok && extractPathMention(last) != ""
		},
		Factory: func(s state.State, g state.Goal) state.Operator {
			last, _ := s.LastError()
			return operator.ReadFile{Path: extractPathMention(last)}
		},
	})

	e.Register(Rule{
		Name:     "goal_file_open",
		Priority: 5,
		Reason:   "opening the file named in the goal description",
		Condition: func(s state.State, g state.Goal) bool {
			return extractPathMention(g.Description) != ""
		},
		Factory: func(s state.State, g state.Goal) state.Operator {
			return operator.ReadFile{Path: extractPathMention(g.Description)}
		},
	})

	e.Register(Rule{
		Name:     "inspection_read",
		Priority: 4.5,
		Reason:   "goal asks for inspection of a file",
		Condition: func(s state.State, g state.Goal) bool {
			lower := strings.ToLower(g.Description)
			return strings.Contains(lower, "read") || strings.Contains(lower, "inspect") || strings.Contains(lower, "look at")
		},
		Factory: func(s state.State, g state.Goal) state.Operator {
			if path := extractPathMention(g.Description); path != "" {
				return operator.ReadFile{Path: path}
			}
			return operator.ListDirectory{Path: "."}
		},
	})

	e.Register(Rule{
		Name:     "list_directory_exploration",
		Priority: 4,
		Reason:   "goal asks to explore or list a directory",
		Condition: func(s state.State, g state.Goal) bool {
			lower := strings.ToLower(g.Description)
			return strings.Contains(lower, "explore") || strings.Contains(lower, "list") || strings.Contains(lower, "find")
		},
		Factory: func(s state.State, g state.Goal) state.Operator {
			return operator.ListDirectory{Path: "."}
		},
	})

	e.Register(Rule{
		Name:     "explore_when_empty",
		Priority: 3,
		Reason:   "no files open yet, default to exploring the working directory",
		Condition: func(s state.State, g state.Goal) bool {
			return len(s.Files) == 0
		},
		Factory: func(s state.State, g state.Goal) state.Operator {
			return operator.ListDirectory{Path: "."}
		},
	})
}

// extractPathMention finds the first token in text that looks like a
// file path (contains a dot followed by a short extension, or a
// path separator). It is intentionally simple: the rule engine's job
// is cheap symbolic pattern matching, not NLP.
func extractPathMention(text string) string {
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, `"'.,;:()`)
		if looksLikePath(tok) {
			return tok
		}
	}
	return ""
}

func looksLikePath(tok string) bool {
	if strings.ContainsAny(tok, "/\\") {
		return true
	}
	dot := strings.LastIndex(tok, ".")
	if dot <= 0 || dot == len(tok)-1 {
		return false
	}
	ext := tok[dot+1:]
	return len(ext) >= 1 && len(ext) <= 5 && isAlpha(ext)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package operator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	diff "github.com/sourcegraph/go-diff/diff"

	"github.com/latticeforge/neurocore/internal/engine/state"
)

// ApplyFix applies a unified diff to Path. Destructive.
type ApplyFix struct {
	Path string
	// Diff is a unified diff hunk set as produced by an LLM-proposed
	// patch or the evolutionary solver's candidate code_patch.
	Diff string
}

func (a ApplyFix) Name() string        { return fmt.Sprintf("apply_fix(%s)", a.Path) }
func (a ApplyFix) IsDestructive() bool { return true }

func (a ApplyFix) IsApplicable(s state.State, g state.Goal) bool {
	_, ok := s.Files[a.Path]
	return ok && a.Diff != ""
}

// Execute parses the unified diff and applies its hunks to the file's
// in-memory content, then writes the result to disk.
func (a ApplyFix) Execute(s state.State) state.OperatorResult {
	rec, ok := s.Files[a.Path]
	if !ok {
		return state.OperatorResult{Success: false, Err: fmt.Errorf("apply_fix: %s is not open", a.Path)}
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(a.Diff))
	if err != nil || len(fileDiffs) == 0 {
		return state.OperatorResult{Success: false, Err: fmt.Errorf("apply_fix: parse diff: %w", err)}
	}

	newContent, err := applyHunks(rec.Content, fileDiffs[0].Hunks)
	if err != nil {
		return state.OperatorResult{Success: false, Err: fmt.Errorf("apply_fix: %w", err)}
	}

	full := filepath.Join(s.WorkingDir, a.Path)
	if err := os.WriteFile(full, []byte(newContent), 0o644); err != nil {
		return state.OperatorResult{Success: false, Err: fmt.Errorf("apply_fix: write %s: %w", a.Path, err)}
	}

	next := s.WithFile(a.Path, state.FileRecord{
		Content:      newContent,
		Language:     rec.Language,
		LastModified: time.Now(),
	})
	return state.OperatorResult{Success: true, NewState: &next, Output: fmt.Sprintf("applied %d hunk(s)", len(fileDiffs[0].Hunks))}
}

// applyHunks applies unified-diff hunks to original's lines in order.
// Hunks are assumed non-overlapping and ordered by start line, which
// go-diff guarantees for a single-file diff it parsed itself.
func applyHunks(original string, hunks []*diff.Hunk) (string, error) {
	lines := strings.Split(original, "\n")
	var out []string
	cursor := 0 // 0-indexed position in lines already copied

	for _, h := range hunks {
		start := int(h.OrigStartLine) - 1
		if start < 0 {
			start = 0
		}
		if start > len(lines) {
			return "", fmt.Errorf("hunk start line %d past end of file", h.OrigStartLine)
		}
		out = append(out, lines[cursor:start]...)
		cursor = start

		for _, hl := range strings.Split(strings.TrimSuffix(string(h.Body), "\n"), "\n") {
			if hl == "" {
				continue
			}
			switch hl[0] {
			case '+':
				out = append(out, hl[1:])
			case '-':
				cursor++
			case ' ':
				out = append(out, hl[1:])
				cursor++
			default:
				out = append(out, hl)
				cursor++
			}
		}
	}
	out = append(out, lines[cursor:]...)
	return strings.Join(out, "\n"), nil
}

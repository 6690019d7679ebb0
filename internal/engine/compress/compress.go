// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package compress builds the bounded, goal/error-prioritized summary
// of working memory the LLM wrapper prompts are built from (spec.md
// §4.6). Output is deterministic given the same inputs: no wall-clock
// reads, no map-iteration-order dependence.
package compress

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/latticeforge/neurocore/internal/astutil"
	"github.com/latticeforge/neurocore/internal/engine/state"
)

// CharsPerToken is the implementation-defined character-to-token
// ratio the budget is enforced against.
const CharsPerToken = 4.0

// errorWindowLines is how many lines of context are kept on either
// side of an error line when no function extraction applies.
const errorWindowLines = 10

// summaryLines is how many leading lines a summarized (neither
// function- nor error-window-eligible) file contributes.
const summaryLines = 15

// FileView is one file's contribution to the compressed view.
type FileView struct {
	Path     string
	Priority int
	Excerpt  string
	Mode     string // "function" | "error_window" | "summary"
}

// View is the output of Compress: a deterministic, budget-bounded
// rendering of state relative to goal.
type View struct {
	GoalText   string
	LatestError string
	Files      []FileView
}

// Render flattens the view into the text an LLM prompt embeds.
func (v View) Render() string {
	var b strings.Builder
	b.WriteString("Goal: ")
	b.WriteString(v.GoalText)
	b.WriteByte('\n')
	if v.LatestError != "" {
		b.WriteString("Latest error: ")
		b.WriteString(v.LatestError)
		b.WriteByte('\n')
	}
	for _, f := range v.Files {
		b.WriteString("\n--- ")
		b.WriteString(f.Path)
		b.WriteString(" (")
		b.WriteString(f.Mode)
		b.WriteString(") ---\n")
		b.WriteString(f.Excerpt)
		b.WriteByte('\n')
	}
	return b.String()
}

// Compress implements spec.md §4.6: rank open files by priority, then
// greedily include excerpts until budgetTokens is exhausted. The goal
// text and latest error are never dropped, even if everything else is.
func Compress(ctx context.Context, s state.State, g state.Goal, budgetTokens int) View {
	latestError, _ := s.LastError()

	view := View{GoalText: g.Description, LatestError: latestError}
	budgetChars := int(float64(budgetTokens) * CharsPerToken)
	used := len(view.GoalText) + len(view.LatestError)

	ranked := rankFiles(s, g, latestError)
	for _, rf := range ranked {
		if ctx.Err() != nil {
			break
		}
		excerpt, mode := excerptFor(s, g, latestError, rf.path)
		if used+len(excerpt) > budgetChars && len(view.Files) > 0 {
			continue
		}
		view.Files = append(view.Files, FileView{Path: rf.path, Priority: rf.priority, Excerpt: excerpt, Mode: mode})
		used += len(excerpt)
	}
	return view
}

type rankedFile struct {
	path     string
	priority int
}

// rankFiles computes file priority = base 1 + 5*mentioned-in-goal +
// 3*mentioned-in-error + 2*cursor-present (spec.md §4.6), breaking
// ties by path for determinism.
func rankFiles(s state.State, g state.Goal, latestError string) []rankedFile {
	paths := s.OpenPaths()
	ranked := make([]rankedFile, 0, len(paths))
	for _, p := range paths {
		priority := 1
		if strings.Contains(g.Description, p) {
			priority += 5
		}
		if latestError != "" && strings.Contains(latestError, p) {
			priority += 3
		}
		if _, ok := s.Cursors[p]; ok {
			priority += 2
		}
		ranked = append(ranked, rankedFile{path: p, priority: priority})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].priority != ranked[j].priority {
			return ranked[i].priority > ranked[j].priority
		}
		return ranked[i].path < ranked[j].path
	})
	return ranked
}

// excerptFor selects a file's excerpt: a named function via AST when
// the goal/error names one and the language is supported; otherwise a
// window around the error line; otherwise a truncated summary.
func excerptFor(s state.State, g state.Goal, latestError, path string) (string, string) {
	rec, ok := s.Files[path]
	if !ok {
		return "", "summary"
	}

	if fnName := mentionedFunction(g.Description, latestError); fnName != "" && rec.Language != "" {
		if tree, err := astutil.Parse(context.Background(), []byte(rec.Content), rec.Language); err == nil {
			if text, found := tree.FindFunction(fnName); found {
				return text, "function"
			}
		}
	}

	if line := errorLine(latestError); line > 0 {
		return windowAroundLine(rec.Content, line, errorWindowLines), "error_window"
	}

	return summarize(rec.Content, summaryLines), "summary"
}

// mentionedFunction looks for a bare identifier-like token followed
// by "()" in the goal or error text, a cheap heuristic for "the goal
// names a function".
func mentionedFunction(goalText, errorText string) string {
	for _, text := range []string{goalText, errorText} {
		for _, tok := range strings.Fields(text) {
			tok = strings.Trim(tok, `"'.,;:`)
			if idx := strings.Index(tok, "()"); idx > 0 {
				return tok[:idx]
			}
		}
	}
	return ""
}

// errorLine extracts a trailing "line N" or ":N:" style reference
// from an error string, returning 0 if none is found.
func errorLine(errText string) int {
	if errText == "" {
		return 0
	}
	parts := strings.Split(errText, ":")
	for i := len(parts) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(strings.TrimSpace(parts[i])); err == nil && n > 0 {
			return n
		}
	}
	fields := strings.Fields(errText)
	for i := len(fields) - 2; i >= 0; i-- {
		if strings.Trim(fields[i], `,.:;`) != "line" {
			continue
		}
		if n, err := strconv.Atoi(strings.Trim(fields[i+1], `,.:;`)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func windowAroundLine(content string, line, radius int) string {
	lines := strings.Split(content, "\n")
	start := line - radius - 1
	if start < 0 {
		start = 0
	}
	end := line + radius
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

func summarize(content string, n int) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= n {
		return content
	}
	return strings.Join(lines[:n], "\n") + "\n... (truncated)"
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package operator implements the concrete actions the engine's
// decision cycle can select: read_file, list_directory, write_file,
// apply_fix and run_code. The core only ever sees these through the
// state.Operator capability interface (spec.md §3, §6); this package
// is the "external collaborator" the core depends on but never
// inspects directly.
package operator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/latticeforge/neurocore/internal/engine/state"
)

// ReadFile opens a file into working memory. Non-destructive.
type ReadFile struct {
	Path string
}

func (r ReadFile) Name() string             { return fmt.Sprintf("read_file(%s)", r.Path) }
func (r ReadFile) IsDestructive() bool      { return false }
func (r ReadFile) IsApplicable(s state.State, g state.Goal) bool {
	info, err := os.Stat(filepath.Join(s.WorkingDir, r.Path))
	return err == nil && !info.IsDir()
}

func (r ReadFile) Execute(s state.State) state.OperatorResult {
	full := filepath.Join(s.WorkingDir, r.Path)
	data, err := os.ReadFile(full)
	if err != nil {
		return state.OperatorResult{Success: false, Err: fmt.Errorf("read %s: %w", r.Path, err)}
	}
	next := s.WithFile(r.Path, state.FileRecord{
		Content:      string(data),
		Language:     languageForPath(r.Path),
		LastModified: time.Now(),
	})
	return state.OperatorResult{Success: true, NewState: &next, Output: fmt.Sprintf("read %d bytes", len(data))}
}

// ListDirectory lists a directory's immediate children. Non-destructive.
type ListDirectory struct {
	Path string
}

func (l ListDirectory) Name() string        { return fmt.Sprintf("list_directory(%s)", l.Path) }
func (l ListDirectory) IsDestructive() bool { return false }
func (l ListDirectory) IsApplicable(s state.State, g state.Goal) bool {
	info, err := os.Stat(filepath.Join(s.WorkingDir, l.Path))
	return err == nil && info.IsDir()
}

func (l ListDirectory) Execute(s state.State) state.OperatorResult {
	full := filepath.Join(s.WorkingDir, l.Path)
	entries, err := os.ReadDir(full)
	if err != nil {
		return state.OperatorResult{Success: false, Err: fmt.Errorf("list %s: %w", l.Path, err)}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	next := s.Clone()
	next.RepoStatus = strings.Join(names, "\n")
	return state.OperatorResult{Success: true, NewState: &next, Output: next.RepoStatus}
}

// WriteFile overwrites a file's content. Destructive.
type WriteFile struct {
	Path    string
	Content string
}

func (w WriteFile) Name() string        { return fmt.Sprintf("write_file(%s)", w.Path) }
func (w WriteFile) IsDestructive() bool { return true }
func (w WriteFile) IsApplicable(s state.State, g state.Goal) bool { return w.Path != "" }

func (w WriteFile) Execute(s state.State) state.OperatorResult {
	full := filepath.Join(s.WorkingDir, w.Path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return state.OperatorResult{Success: false, Err: fmt.Errorf("create parent dirs for %s: %w", w.Path, err)}
	}
	if err := os.WriteFile(full, []byte(w.Content), 0o644); err != nil {
		return state.OperatorResult{Success: false, Err: fmt.Errorf("write %s: %w", w.Path, err)}
	}
	next := s.WithFile(w.Path, state.FileRecord{
		Content:      w.Content,
		Language:     languageForPath(w.Path),
		LastModified: time.Now(),
	})
	return state.OperatorResult{Success: true, NewState: &next, Output: fmt.Sprintf("wrote %d bytes", len(w.Content))}
}

// RunCode executes a command in a subprocess bounded by a context
// deadline (spec.md §5, §6). Destructive, since it can mutate
// filesystem or external state arbitrarily.
type RunCode struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func (r RunCode) Name() string {
	return fmt.Sprintf("run_code(%s %s)", r.Command, strings.Join(r.Args, " "))
}
func (r RunCode) IsDestructive() bool { return true }
func (r RunCode) IsApplicable(s state.State, g state.Goal) bool { return r.Command != "" }

func (r RunCode) Execute(s state.State) state.OperatorResult {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Dir = s.WorkingDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	next := s.Clone()
	next.LastCommandOut = out.String()

	if err != nil {
		failState := next.WithError(err.Error())
		return state.OperatorResult{Success: false, NewState: &failState, Output: out.String(), Err: fmt.Errorf("run %s: %w", r.Command, err)}
	}
	return state.OperatorResult{Success: true, NewState: &next, Output: out.String()}
}

func languageForPath(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	default:
		return ""
	}
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package evaluator scores candidate code patches for the evolutionary
// solver: syntax, runtime, and correctness, each contributing to a
// single fitness score (spec.md §4.11). Syntax and runtime checks are
// hard signals (a parser or a subprocess exit code either succeeds or
// doesn't); correctness against a test harness is likewise hard when a
// test_code is supplied, soft (absent) otherwise.
package evaluator

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/latticeforge/neurocore/internal/astutil"
)

var tracer = otel.Tracer("neurocore.evaluator")

// successSentinel is the marker a correctness harness prints on a
// fully passing run.
const successSentinel = "All tests passed"

// runtimeTimeout bounds the out-of-process sandbox run (spec.md §4.11).
const runtimeTimeout = 10 * time.Second

// Result is one evaluation's outcome.
type Result struct {
	Score            int
	SyntaxValid      bool
	RuntimeValid     bool
	CorrectnessValid bool
	Err              string
	Output           string
}

// Evaluator runs candidates in a scratch directory under
// interpreter/language command lines supplied at construction, so the
// core's evaluator never hardcodes a single language's toolchain.
type Evaluator struct {
	language   string
	scratchDir string
	runCommand func(scriptPath string) (string, []string)
}

// New returns an Evaluator for language, using scratchDir as the
// directory candidate files are written into before execution.
func New(language, scratchDir string) *Evaluator {
	return &Evaluator{
		language:   language,
		scratchDir: scratchDir,
		runCommand: defaultRunCommand(language),
	}
}

// Evaluate implements spec.md §4.11: parse, run, and optionally check
// correctness against testCode, deterministic given the same inputs
// and the host filesystem state it's handed.
func (e *Evaluator) Evaluate(code, testCode string) Result {
	tree, err := astutil.Parse(context.Background(), []byte(code), e.language)
	if err != nil {
		return Result{Score: 0, SyntaxValid: false, Err: err.Error()}
	}
	if tree.HasError() {
		return Result{Score: 0, SyntaxValid: false, Err: "syntax error"}
	}

	scriptPath, cleanup, err := e.writeScratch(code, testCode)
	if err != nil {
		return Result{Score: 0, SyntaxValid: true, Err: err.Error()}
	}
	defer cleanup()

	output, exitErr := e.run(scriptPath)
	if exitErr != nil {
		return Result{
			Score:       runtimeFailureScore(output),
			SyntaxValid: true,
			Output:      output,
			Err:         exitErr.Error(),
		}
	}

	if testCode != "" && strings.Contains(output, successSentinel) {
		return Result{Score: 100, SyntaxValid: true, RuntimeValid: true, CorrectnessValid: true, Output: output}
	}
	return Result{Score: runtimeSuccessScore(output), SyntaxValid: true, RuntimeValid: true, Output: output}
}

func (e *Evaluator) writeScratch(code, testCode string) (string, func(), error) {
	dir, err := os.MkdirTemp(e.scratchDir, "neurocore-eval-*")
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	ext := extensionForLanguage(e.language)
	scriptPath := filepath.Join(dir, "candidate"+ext)
	content := code
	if testCode != "" {
		content = code + "\n" + testCode
	}
	if err := os.WriteFile(scriptPath, []byte(content), 0o644); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return scriptPath, cleanup, nil
}

func (e *Evaluator) run(scriptPath string) (string, error) {
	ctx, span := tracer.Start(context.Background(), "Evaluator.run")
	defer span.End()
	span.SetAttributes(attribute.String("language", e.language))

	ctx, cancel := context.WithTimeout(ctx, runtimeTimeout)
	defer cancel()

	command, args := e.runCommand(scriptPath)
	cmd := exec.CommandContext(ctx, command, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// runtimeFailureScore maps a failed run's captured stdout/stderr to the
// 10-30 band named in spec.md §4.11. The interpreter prints its
// exception class (TypeError, NameError, ...) to output, never to the
// exec.ExitError itself, so classification has to read output.
func runtimeFailureScore(output string) int {
	msg := strings.ToLower(output)
	switch {
	case strings.Contains(msg, "type"):
		return 10
	case strings.Contains(msg, "name"):
		return 15
	case strings.Contains(msg, "index"):
		return 20
	case strings.Contains(msg, "value"):
		return 25
	default:
		return 30
	}
}

// runtimeSuccessScore picks a value in the 40-60 band spec.md §4.11
// assigns when the candidate ran cleanly but correctness wasn't (or
// couldn't be) confirmed against a test harness. The band position is
// derived from the output length so the score stays deterministic for
// a given candidate without collapsing every such run to one constant.
func runtimeSuccessScore(output string) int {
	return 40 + len(output)%21
}

// SetRunCommand overrides how candidate files are executed, letting
// callers substitute a fake interpreter in tests without touching the
// host toolchain.
func (e *Evaluator) SetRunCommand(cmd func(scriptPath string) (string, []string)) {
	e.runCommand = cmd
}

func extensionForLanguage(language string) string {
	switch language {
	case "python":
		return ".py"
	case "javascript":
		return ".js"
	case "java":
		return ".java"
	case "c":
		return ".c"
	default:
		return ".go"
	}
}

func defaultRunCommand(language string) func(string) (string, []string) {
	switch language {
	case "python":
		return func(path string) (string, []string) { return "python3", []string{path} }
	case "javascript":
		return func(path string) (string, []string) { return "node", []string{path} }
	case "c":
		return func(path string) (string, []string) { return "gcc", []string{"-run", path} }
	default:
		return func(path string) (string, []string) { return "go", []string{"run", path} }
	}
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package evolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/neurocore/internal/engine/evaluator"
	"github.com/latticeforge/neurocore/internal/llm"
)

type scriptedBackend struct {
	responses []string
	calls     int
	prompts   []string
}

func (b *scriptedBackend) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	i := b.calls
	b.calls++
	if len(messages) > 0 {
		b.prompts = append(b.prompts, messages[0].Content)
	}
	if i < len(b.responses) {
		return b.responses[i], nil
	}
	return "", nil
}

func echoRunner(path string) (string, []string) {
	return "echo", []string{"All tests passed"}
}

// TestEvolveShortCircuitsOnPerfectScore mirrors spec.md's evolutionary
// loop: generation 0 produces three candidates, one of which runs the
// embedded test harness and prints the success sentinel, so evolution
// returns immediately without mutating or starting a second
// generation.
func TestEvolveShortCircuitsOnPerfectScore(t *testing.T) {
	backend := &scriptedBackend{responses: []string{`{
		"candidates": [
			{"hypothesis": "off by one", "code_patch": "package main\nfunc main() {}\n", "reasoning": "a"},
			{"hypothesis": "nil deref", "code_patch": "package main\nfunc main() {}\n", "reasoning": "b"},
			{"hypothesis": "right fix", "code_patch": "package main\nfunc main() {}\n", "reasoning": "c"}
		]
	}`}}
	client := llm.NewClient(backend)
	eval := evaluator.New("go", t.TempDir())
	eval.SetRunCommand(echoRunner)

	sv := New(client, eval)
	errorContext := "panic: index out of range\nTEST: assert output"
	best := sv.Evolve(context.Background(), errorContext, "fix the crash", "package main\n", 5, 3, nil)

	require.NotNil(t, best)
	assert.Equal(t, 100, best.Score)
	assert.Equal(t, 1, backend.calls)
}

func TestEvolveReturnsNilWhenGenerationZeroFails(t *testing.T) {
	backend := &scriptedBackend{responses: []string{"not json"}}
	client := llm.NewClient(backend)
	eval := evaluator.New("go", t.TempDir())

	sv := New(client, eval)
	best := sv.Evolve(context.Background(), "boom", "fix it", "package main\n", 3, 3, nil)

	assert.Nil(t, best)
}

// TestEvolveMutatesBestAcrossGenerations covers the no-perfect-score
// path: without a TEST: marker no candidate can reach 100, so the
// solver must mutate the best candidate and spend a second LLM call
// before returning after its generation budget is exhausted.
func TestEvolveMutatesBestAcrossGenerations(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"candidates": [{"hypothesis": "a", "code_patch": "package main\nfunc main() {}\n", "reasoning": "x"}]}`,
		`{"hypothesis": "better", "code_patch": "package main\nfunc main() {}\n", "reasoning": "y"}`,
	}}
	client := llm.NewClient(backend)
	eval := evaluator.New("go", t.TempDir())
	eval.SetRunCommand(echoRunner)

	sv := New(client, eval)
	best := sv.Evolve(context.Background(), "boom", "fix it", "package main\n", 2, 1, nil)

	require.NotNil(t, best)
	assert.True(t, best.Score >= 40 && best.Score <= 60)
	assert.Equal(t, 2, backend.calls)
}

// TestEvolveNamesOverusedOperatorsInPrompt exercises SPEC_FULL.md
// §4.10a: operators drawn from working memory's action_counts must be
// named in the generation prompt alongside the hardcoded tabu list.
func TestEvolveNamesOverusedOperatorsInPrompt(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"candidates": [{"hypothesis": "a", "code_patch": "package main\nfunc main() {}\n", "reasoning": "x"}]}`,
	}}
	client := llm.NewClient(backend)
	eval := evaluator.New("go", t.TempDir())

	sv := New(client, eval)
	sv.Evolve(context.Background(), "boom", "fix it", "package main\n", 1, 1, []string{"read_file(main.py)", "list_directory(.)"})

	require.NotEmpty(t, backend.prompts)
	assert.Contains(t, backend.prompts[0], "read_file(main.py)")
	assert.Contains(t, backend.prompts[0], "list_directory(.)")
}

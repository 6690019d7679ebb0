// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package agent

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/neurocore/internal/engine/actr"
	"github.com/latticeforge/neurocore/internal/engine/memory"
	"github.com/latticeforge/neurocore/internal/engine/metacog"
	"github.com/latticeforge/neurocore/internal/engine/rules"
	"github.com/latticeforge/neurocore/internal/engine/safety"
	"github.com/latticeforge/neurocore/internal/engine/state"
	"github.com/latticeforge/neurocore/internal/llm"
	"github.com/latticeforge/neurocore/internal/operator"
	"github.com/latticeforge/neurocore/internal/vectorstore"
)

func baseConfig() Config {
	return Config{
		MaxCycles:  10,
		LoopWindow: 3,
		Metacog:    metacog.Config{DepthThreshold: 3, TimeThresholdMs: 500},
		ACTR:       actr.Config{GoalValue: 10, NoiseStddev: 0, PenaltyMultiplier: 2},
		Safety:     safety.Config{AutoApproveSafe: true},
	}
}

func TestSolveSingleCycleSuccess(t *testing.T) {
	dir := t.TempDir()

	engine := rules.NewEngine()
	engine.Register(rules.Rule{
		Name:     "always_explore",
		Priority: 1,
		Condition: func(s state.State, g state.Goal) bool { return true },
		Factory: func(s state.State, g state.Goal) state.Operator {
			return operator.ListDirectory{Path: "."}
		},
	})

	guard := safety.New(safety.Config{AutoApproveSafe: true}, safety.AutoApproveHook{})
	a := New(baseConfig(), engine, nil, nil, nil, nil, guard, nil, nil)

	ok, final := a.Solve(context.Background(), "explore the repo", state.New(dir), 0)

	assert.True(t, ok)
	assert.Equal(t, dir, final.WorkingDir)
}

func TestSolveExhaustsMaxCyclesWithoutTerminalState(t *testing.T) {
	dir := t.TempDir()

	engine := rules.NewEngine()
	engine.Register(rules.Rule{
		Name:     "always_read_missing",
		Priority: 5,
		Condition: func(s state.State, g state.Goal) bool { return true },
		Factory: func(s state.State, g state.Goal) state.Operator {
			return operator.ReadFile{Path: "missing.go"}
		},
	})

	cfg := baseConfig()
	cfg.MaxCycles = 3
	cfg.Metacog = metacog.Config{DepthThreshold: 1000, TimeThresholdMs: 1000}

	guard := safety.New(safety.Config{AutoApproveSafe: true}, safety.AutoApproveHook{})
	a := New(cfg, engine, nil, nil, nil, nil, guard, nil, nil)

	ok, _ := a.Solve(context.Background(), "look around", state.New(dir), 0)

	assert.False(t, ok)
}

// tiedBackend answers every StructuredQuery with a fixed utility
// estimate favoring "read_file(a.go)" over "read_file(b.go)", letting
// the ACT-R resolver deterministically pick a.go.
type tiedBackend struct{}

func (tiedBackend) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	return `{"estimates":{"read_file(a.go)":{"probability_of_success":0.9,"estimated_cost":1,"reasoning":"likely the right file"},"read_file(b.go)":{"probability_of_success":0.2,"estimated_cost":5,"reasoning":"less likely"}}}`, nil
}

func TestSolveCreatesChunkOnActRTriggeredSuccess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("package b\n"), 0o644))

	engine := rules.NewEngine()
	engine.Register(rules.Rule{
		Name:     "open_a",
		Priority: 5,
		Condition: func(s state.State, g state.Goal) bool {
			return strings.Contains(g.Description, "explore the working directory")
		},
		Factory: func(s state.State, g state.Goal) state.Operator {
			time.Sleep(2 * time.Millisecond)
			return operator.ReadFile{Path: "a.go"}
		},
	})
	engine.Register(rules.Rule{
		Name:     "open_b",
		Priority: 5,
		Condition: func(s state.State, g state.Goal) bool {
			return strings.Contains(g.Description, "explore the working directory")
		},
		Factory: func(s state.State, g state.Goal) state.Operator {
			return operator.ReadFile{Path: "b.go"}
		},
	})

	client := llm.NewClient(tiedBackend{})
	resolver := actr.New(client, actr.Config{GoalValue: 10, NoiseStddev: 0, PenaltyMultiplier: 2}, rand.New(rand.NewSource(1)))

	collection := vectorstore.NewCollection("chunks", nil)
	chunks := memory.NewChunkStore(collection)

	cfg := baseConfig()
	cfg.MaxCycles = 2
	cfg.Metacog = metacog.Config{DepthThreshold: 1, TimeThresholdMs: 1}

	guard := safety.New(safety.Config{AutoApproveSafe: true}, safety.AutoApproveHook{})
	a := New(cfg, engine, resolver, nil, chunks, nil, guard, nil, nil)

	goalText := "figure out where the bug lives"
	a.Solve(context.Background(), goalText, state.New(dir), 0)

	results := chunks.RetrieveSimilar(context.Background(), goalText, "", nil, 5, 0)
	require.NotEmpty(t, results)
	assert.Equal(t, "read_file(a.go)", results[0].OperatorName)
	assert.Equal(t, 1, results[0].SuccessCount)
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package actr

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/neurocore/internal/engine/state"
	"github.com/latticeforge/neurocore/internal/llm"
	"github.com/latticeforge/neurocore/internal/operator"
)

type scriptedBackend struct {
	response string
}

func (b scriptedBackend) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	return b.response, nil
}

type zeroActionCounts struct{}

func (zeroActionCounts) GetActionCount(name string) int { return 0 }

func TestResolveSelectsHigherUtilityOperator(t *testing.T) {
	backend := scriptedBackend{response: `{
		"estimates": {
			"read_file(a.go)": {"probability_of_success": 0.9, "estimated_cost": 2, "reasoning": "likely"},
			"read_file(b.go)": {"probability_of_success": 0.2, "estimated_cost": 5, "reasoning": "unlikely"}
		}
	}`}
	client := llm.NewClient(backend)
	resolver := New(client, Config{GoalValue: 10, NoiseStddev: 0, PenaltyMultiplier: 2}, rand.New(rand.NewSource(1)))

	opA := operator.ReadFile{Path: "a.go"}
	opB := operator.ReadFile{Path: "b.go"}

	resolution := resolver.Resolve(context.Background(), []state.Operator{opA, opB}, state.New("/p"), state.Goal{}, zeroActionCounts{})
	require.True(t, resolution.Ok)
	assert.Equal(t, opA.Name(), resolution.Operator.Name())
	assert.InDelta(t, 7, resolution.Utility, 1e-9) // 0.9*10 - 2
}

type countingActionCounts map[string]int

func (c countingActionCounts) GetActionCount(name string) int { return c[name] }

func TestResolveAppliesTabuPenalty(t *testing.T) {
	backend := scriptedBackend{response: `{
		"estimates": {
			"read_file(a.go)": {"probability_of_success": 0.9, "estimated_cost": 2, "reasoning": "likely"},
			"read_file(b.go)": {"probability_of_success": 0.5, "estimated_cost": 2, "reasoning": "ok"}
		}
	}`}
	client := llm.NewClient(backend)
	resolver := New(client, Config{GoalValue: 10, NoiseStddev: 0, PenaltyMultiplier: 2}, rand.New(rand.NewSource(1)))

	opA := operator.ReadFile{Path: "a.go"}
	opB := operator.ReadFile{Path: "b.go"}
	counts := countingActionCounts{"read_file(a.go)": 3}

	resolution := resolver.Resolve(context.Background(), []state.Operator{opA, opB}, state.New("/p"), state.Goal{}, counts)
	require.True(t, resolution.Ok)
	// a: 0.9*10 - 2 - 3*2 = 1; b: 0.5*10 - 2 = 3, so b wins.
	assert.InDelta(t, 3, resolution.Utility, 1e-9)
}

func TestResolveReturnsNotOkOnMismatchedOperatorSet(t *testing.T) {
	backend := scriptedBackend{response: `{"estimates": {"read_file(a.go)": {"probability_of_success": 0.9, "estimated_cost": 2}}}`}
	client := llm.NewClient(backend)
	resolver := New(client, Config{GoalValue: 10, NoiseStddev: 0, PenaltyMultiplier: 2}, rand.New(rand.NewSource(1)))

	opA := operator.ReadFile{Path: "a.go"}
	opB := operator.ReadFile{Path: "b.go"}
	resolution := resolver.Resolve(context.Background(), []state.Operator{opA, opB}, state.New("/p"), state.Goal{}, zeroActionCounts{})
	assert.False(t, resolution.Ok)
}

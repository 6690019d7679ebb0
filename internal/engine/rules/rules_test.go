// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/neurocore/internal/engine/state"
)

func TestProposeOrdersByDescendingPriorityStableOnTies(t *testing.T) {
	e := NewEngine()
	RegisterDefaults(e)

	s := state.New("/p")
	g := state.Goal{Description: "Read main.py"}

	proposals := e.Propose(s, g)
	require.NotEmpty(t, proposals)
	for i := 1; i < len(proposals); i++ {
		assert.LessOrEqual(t, proposals[i].Priority, proposals[i-1].Priority)
	}
}

func TestProposeIsIdempotent(t *testing.T) {
	e := NewEngine()
	RegisterDefaults(e)

	s := state.New("/p")
	g := state.Goal{Description: "Read main.py"}

	first := e.Propose(s, g)
	second := e.Propose(s, g)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].RuleName, second[i].RuleName)
		assert.Equal(t, first[i].Operator.Name(), second[i].Operator.Name())
	}
}

func TestPanickingConditionTreatedAsNonMatch(t *testing.T) {
	e := NewEngine()
	e.Register(Rule{
		Name:     "panics",
		Priority: 9,
		Condition: func(s state.State, g state.Goal) bool {
			panic("boom")
		},
		Factory: func(s state.State, g state.Goal) state.Operator { return nil },
	})

	proposals := e.Propose(state.New("/p"), state.Goal{Description: "anything"})
	for _, p := range proposals {
		assert.NotEqual(t, "panics", p.RuleName)
	}
}

func TestMemoryProposalInjectedAbovePriority7(t *testing.T) {
	p := InjectMemoryProposal(nil, "reused chunk")
	assert.Equal(t, float64(7), p.Priority)
}

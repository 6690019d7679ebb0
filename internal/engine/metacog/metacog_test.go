// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package metacog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latticeforge/neurocore/internal/engine/impasse"
)

func TestPressureTieScenario(t *testing.T) {
	m := New(Config{DepthThreshold: 3, TimeThresholdMs: 500})
	p := m.Pressure(0, 0, 2, false)
	assert.InDelta(t, 0.15, p, 1e-9)
}

func TestPressureMonotonicNonDecreasingWhenLoopTransitionsTrue(t *testing.T) {
	m := New(Config{DepthThreshold: 3, TimeThresholdMs: 500})
	before := m.Pressure(0, 0, 1, false)
	after := m.Pressure(0, 0, 1, true)
	assert.GreaterOrEqual(t, after, before)
	assert.GreaterOrEqual(t, after, 0.9)
}

func TestDecideBelow07SubgoalsOnTie(t *testing.T) {
	assert.Equal(t, ActionSubgoal, Decide(0.15, impasse.Tie, false))
}

func TestDecideBetween07And09InvokesActR(t *testing.T) {
	assert.Equal(t, ActionActR, Decide(0.75, impasse.OperatorNoChange, false))
}

func TestDecideAbove09WithCodeFixGoalEvolves(t *testing.T) {
	assert.Equal(t, ActionEvolve, Decide(0.95, impasse.NoChange, true))
}

func TestDefaultGoalClassifierMatchesKeywords(t *testing.T) {
	assert.True(t, DefaultGoalClassifier("please fix the off-by-one bug"))
	assert.False(t, DefaultGoalClassifier("add a new feature"))
}

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

// TestReadGoalNamingAFileResolvesWithoutATie exercises spec.md §8
// scenario 1: a goal that both names a file and asks to read it must
// produce a single unambiguous top proposal, not a tie between
// goal_file_open and inspection_read.
func TestReadGoalNamingAFileResolvesWithoutATie(t *testing.T) {
	e := NewEngine()
	RegisterDefaults(e)

	proposals := e.Propose(state.New("/p"), state.Goal{Description: "Read main.py"})
	require.NotEmpty(t, proposals)

	top := proposals[0].Priority
	tiedAtTop := 0
	for _, p := range proposals {
		if p.Priority == top {
			tiedAtTop++
		}
	}
	assert.Equal(t, 1, tiedAtTop)
	assert.Equal(t, "goal_file_open", proposals[0].RuleName)
	assert.Equal(t, "read_file(main.py)", proposals[0].Operator.Name())
}

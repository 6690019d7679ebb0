// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopGoalRestoresTop(t *testing.T) {
	wm := NewWorkingMemory(New("/p"), "root goal", 3)
	root := wm.CurrentGoal()

	wm.PushGoal("sub goal", 1)
	assert.NotEqual(t, root.ID, wm.CurrentGoal().ID)

	ok := wm.PopGoal(GoalSuccess)
	assert.True(t, ok)
	assert.Equal(t, root.ID, wm.CurrentGoal().ID)
}

func TestPopGoalNeverPopsRoot(t *testing.T) {
	wm := NewWorkingMemory(New("/p"), "root goal", 3)
	ok := wm.PopGoal(GoalFailure)
	assert.False(t, ok)
	assert.Equal(t, GoalFailure, wm.RootStatus())
}

func TestActionCountIncrementsMonotonically(t *testing.T) {
	wm := NewWorkingMemory(New("/p"), "goal", 3)
	from := wm.Current()
	for i := 1; i <= 4; i++ {
		wm.RecordTransition("read_file", OperatorResult{Success: false, Err: errors.New("boom")}, from)
		assert.Equal(t, i, wm.GetActionCount("read_file"))
	}
}

func TestHasLoopDetectsRepeatedFailures(t *testing.T) {
	wm := NewWorkingMemory(New("/p"), "goal", 3)
	from := wm.Current()
	assert.False(t, wm.HasLoop())

	for i := 0; i < 3; i++ {
		wm.RecordTransition("read_file", OperatorResult{Success: false, Err: errors.New("x")}, from)
	}
	assert.True(t, wm.HasLoop())
}

func TestHasLoopFalseWhenOneSucceeds(t *testing.T) {
	wm := NewWorkingMemory(New("/p"), "goal", 3)
	from := wm.Current()
	wm.RecordTransition("read_file", OperatorResult{Success: false, Err: errors.New("x")}, from)
	wm.RecordTransition("read_file", OperatorResult{Success: true, NewState: &from}, from)
	wm.RecordTransition("read_file", OperatorResult{Success: false, Err: errors.New("x")}, from)
	assert.False(t, wm.HasLoop())
}

func TestRollbackNeverPassesInitialState(t *testing.T) {
	initial := New("/p")
	wm := NewWorkingMemory(initial, "goal", 3)

	s1 := initial.WithError("e1")
	wm.SetCurrent(s1)
	s2 := s1.WithError("e2")
	wm.SetCurrent(s2)

	got := wm.Rollback(10)
	assert.Equal(t, initial.Hash(), got.Hash())
}

func TestRollbackDoesNotRewindActionCounts(t *testing.T) {
	wm := NewWorkingMemory(New("/p"), "goal", 3)
	from := wm.Current()
	wm.RecordTransition("read_file", OperatorResult{Success: true, NewState: &from}, from)
	wm.Rollback(5)
	assert.Equal(t, 1, wm.GetActionCount("read_file"))
}

func TestSignatureUsesAtMostFiveOpenPaths(t *testing.T) {
	s := New("/p")
	for i := 0; i < 8; i++ {
		s = s.WithFile(string(rune('a'+i))+".go", FileRecord{Content: "x"})
	}
	sig := Signature(s, "fix the bug")
	require.Contains(t, sig, "/p")
	assert.Contains(t, sig, "fix the bug")
}

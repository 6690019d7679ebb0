// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package state

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxTransitions bounds the transition ring (spec.md §3: "kept in a
// bounded ring").
const maxTransitions = 500

// WorkingMemory is the mutable state a single solve call owns: the
// current State, the goal stack, the transition history, and the
// tabu action-count table (spec.md §4.2). It is not safe for
// concurrent use; the agent owns exactly one and calls it from a
// single goroutine.
type WorkingMemory struct {
	initial     State
	history     []State
	current     State

	goals     map[string]*Goal
	stack     []string
	rootID    string

	transitions []Transition
	actionCounts map[string]int

	loopWindow int
	timerStart time.Time
}

// NewWorkingMemory creates working memory rooted at initial, with a
// root goal described by goalText and loop detection window L.
func NewWorkingMemory(initial State, goalText string, loopWindow int) *WorkingMemory {
	rootID := uuid.NewString()
	wm := &WorkingMemory{
		initial:      initial,
		history:      []State{initial},
		current:      initial,
		goals:        make(map[string]*Goal),
		stack:        []string{rootID},
		rootID:       rootID,
		actionCounts: make(map[string]int),
		loopWindow:   loopWindow,
		timerStart:   time.Now(),
	}
	wm.goals[rootID] = &Goal{ID: rootID, Description: goalText, Status: GoalActive, Priority: 1}
	return wm
}

// Current returns the current state.
func (wm *WorkingMemory) Current() State { return wm.current }

// SetCurrent replaces the current state, appending it to history for
// rollback and resetting the cognitive-pressure timer (spec.md §4.5:
// "reset_timer() invoked by the agent whenever state changes").
func (wm *WorkingMemory) SetCurrent(s State) {
	wm.current = s
	wm.history = append(wm.history, s)
	wm.ResetTimer()
}

// ResetTimer restarts the time-in-state clock the meta-cognitive
// monitor reads.
func (wm *WorkingMemory) ResetTimer() { wm.timerStart = time.Now() }

// TimeInStateMs returns milliseconds since the last state change.
func (wm *WorkingMemory) TimeInStateMs() int64 {
	return time.Since(wm.timerStart).Milliseconds()
}

// CurrentGoal returns the goal on top of the stack.
func (wm *WorkingMemory) CurrentGoal() Goal {
	id := wm.stack[len(wm.stack)-1]
	return *wm.goals[id]
}

// CurrentGoalDepth returns the current goal's depth from root.
func (wm *WorkingMemory) CurrentGoalDepth() int {
	id := wm.stack[len(wm.stack)-1]
	return Depth(wm.goals, wm.goals[id])
}

// PushGoal subgoals from the current goal, returning the new goal's
// ID. The new goal's context node should be persisted by the caller
// on push (spec.md §3 lifecycles); WorkingMemory only tracks the
// in-process tree.
func (wm *WorkingMemory) PushGoal(description string, priority float64) string {
	parentID := wm.stack[len(wm.stack)-1]
	id := uuid.NewString()
	wm.goals[id] = &Goal{
		ID:          id,
		Description: description,
		ParentID:    parentID,
		HasParent:   true,
		Status:      GoalActive,
		Priority:    priority,
	}
	wm.goals[parentID].SubGoals = append(wm.goals[parentID].SubGoals, id)
	wm.stack = append(wm.stack, id)
	return id
}

// PopGoal marks the current goal with status and pops it, returning
// false if the root would be popped (the root is never popped,
// spec.md §3 invariants).
func (wm *WorkingMemory) PopGoal(status GoalStatus) bool {
	if len(wm.stack) <= 1 {
		wm.goals[wm.rootID].Status = status
		return false
	}
	id := wm.stack[len(wm.stack)-1]
	wm.goals[id].Status = status
	wm.stack = wm.stack[:len(wm.stack)-1]
	return true
}

// RootStatus returns the root goal's status.
func (wm *WorkingMemory) RootStatus() GoalStatus { return wm.goals[wm.rootID].Status }

// SetRootStatus marks the root goal directly, used by the agent on
// terminal success/failure.
func (wm *WorkingMemory) SetRootStatus(status GoalStatus) { wm.goals[wm.rootID].Status = status }

// RecordTransition appends a transition for op against the
// pre-execution state, advances the current state to newState when
// the operator succeeded, and increments op's action count
// unconditionally (spec.md §4.2).
func (wm *WorkingMemory) RecordTransition(opName string, result OperatorResult, fromState State) {
	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}
	toHash := fromState.Hash()
	if result.Success && result.NewState != nil {
		toHash = result.NewState.Hash()
	}

	wm.transitions = append(wm.transitions, Transition{
		OperatorName: opName,
		Success:      result.Success,
		Err:          errText,
		Timestamp:    time.Now(),
		FromHash:     fromState.Hash(),
		ToHash:       toHash,
	})
	if len(wm.transitions) > maxTransitions {
		wm.transitions = wm.transitions[len(wm.transitions)-maxTransitions:]
	}
	wm.actionCounts[opName]++

	if result.Success && result.NewState != nil {
		wm.SetCurrent(*result.NewState)
	}
}

// Rollback reverts the current state to k snapshots ago, never past
// the initial state. Action-count history is untouched — tabu memory
// must survive rollbacks (spec.md §4.2).
func (wm *WorkingMemory) Rollback(k int) State {
	idx := len(wm.history) - 1 - k
	if idx < 0 {
		idx = 0
	}
	wm.current = wm.history[idx]
	wm.history = wm.history[:idx+1]
	return wm.current
}

// HasLoop is true when the last L transitions share the same
// operator name and all failed (spec.md §4.2).
func (wm *WorkingMemory) HasLoop() bool {
	n := len(wm.transitions)
	if n < wm.loopWindow {
		return false
	}
	window := wm.transitions[n-wm.loopWindow:]
	name := window[0].OperatorName
	for _, t := range window {
		if t.OperatorName != name || t.Success {
			return false
		}
	}
	return true
}

// GetActionCount returns how many times op has been applied this
// solve.
func (wm *WorkingMemory) GetActionCount(op string) int { return wm.actionCounts[op] }

// TopActionCounts returns up to n operator names from the tabu
// action-count table, ordered by descending count, for callers that
// want to steer generation away from already-overused operators
// (spec.md §4.10a). Operators applied zero times are never included.
func (wm *WorkingMemory) TopActionCounts(n int) []string {
	type counted struct {
		name  string
		count int
	}
	all := make([]counted, 0, len(wm.actionCounts))
	for name, count := range wm.actionCounts {
		if count > 0 {
			all = append(all, counted{name, count})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].count > all[j].count })
	if n > len(all) {
		n = len(all)
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = all[i].name
	}
	return names
}

// GetTrace renders the transition history as text, for error logs and
// debugging.
func (wm *WorkingMemory) GetTrace() string {
	var b strings.Builder
	for i, t := range wm.transitions {
		status := "ok"
		if !t.Success {
			status = "fail"
		}
		fmt.Fprintf(&b, "%d: %s [%s] %s->%s", i, t.OperatorName, status, t.FromHash, t.ToHash)
		if t.Err != "" {
			fmt.Fprintf(&b, " (%s)", t.Err)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Transitions returns a copy of the transition ring.
func (wm *WorkingMemory) Transitions() []Transition {
	return append([]Transition(nil), wm.transitions...)
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package metacog computes the scalar cognitive pressure signal that
// decides whether the agent subgoals symbolically or escapes to the
// ACT-R resolver or the evolutionary solver (spec.md §4.5 — the
// "relief valve").
package metacog

import (
	"github.com/latticeforge/neurocore/internal/engine/impasse"
)

// Action is the monitor's recommendation for the current cycle.
type Action int

const (
	ActionSubgoal Action = iota
	ActionProceed
	ActionActR
	ActionEvolve
)

func (a Action) String() string {
	switch a {
	case ActionSubgoal:
		return "subgoal"
	case ActionProceed:
		return "proceed"
	case ActionActR:
		return "act_r"
	case ActionEvolve:
		return "evolve"
	default:
		return "unknown"
	}
}

// Config carries the tunables named in spec.md §6.
type Config struct {
	DepthThreshold  int
	TimeThresholdMs int64
}

// Monitor computes pressure from the four signals in spec.md §4.5 and
// decides what the agent should do about the current impasse.
type Monitor struct {
	cfg Config
}

// New returns a Monitor configured with cfg.
func New(cfg Config) *Monitor { return &Monitor{cfg: cfg} }

// Pressure computes P ∈ [0,1] per the weighted sum in spec.md §4.5.
// hasLoop overrides the computed value, raising it to at least 0.9.
func (m *Monitor) Pressure(goalDepth int, timeInStateMs int64, numProposals int, hasLoop bool) float64 {
	depthTerm := clamp01(float64(goalDepth) / float64(m.cfg.DepthThreshold))
	timeTerm := clamp01(float64(timeInStateMs) / float64(m.cfg.TimeThresholdMs))
	ambiguity := operatorAmbiguity(numProposals)

	p := 0.4*depthTerm + 0.3*timeTerm + 0.3*ambiguity
	if hasLoop && p < 0.9 {
		p = 0.9
	}
	return p
}

// operatorAmbiguity is 0 for a single proposal, 1-1/n for n tied top
// proposals, and 1 for no proposals (spec.md §4.5). The caller passes
// the tied-subset size for Tie impasses and 1 for an unambiguous
// selection.
func operatorAmbiguity(numProposals int) float64 {
	switch {
	case numProposals <= 0:
		return 1
	case numProposals == 1:
		return 0
	default:
		return 1 - 1/float64(numProposals)
	}
}

// Decide applies the policy table from spec.md §4.5: P < 0.7 allows
// symbolic subgoaling on NoChange/Tie impasses (else proceed with the
// top operator); 0.7 ≤ P < 0.9 invokes ACT-R; P ≥ 0.9, or a nil ACT-R
// selection, together with isCodeFixGoal, invokes evolution.
func Decide(p float64, kind impasse.Kind, isCodeFixGoal bool) Action {
	if p < 0.7 {
		if kind == impasse.NoChange || kind == impasse.Tie {
			return ActionSubgoal
		}
		return ActionProceed
	}
	if p < 0.9 {
		return ActionActR
	}
	if isCodeFixGoal {
		return ActionEvolve
	}
	return ActionSubgoal
}

// DecideAfterActR is called when ActionActR produced no selection: it
// escalates to evolution for code-fix goals, otherwise falls back to
// symbolic subgoaling (spec.md §4.5: "ACT-R returned no selection, and
// the goal description is classifiable as a code-fix goal").
func DecideAfterActR(isCodeFixGoal bool) Action {
	if isCodeFixGoal {
		return ActionEvolve
	}
	return ActionSubgoal
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

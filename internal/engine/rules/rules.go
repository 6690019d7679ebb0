// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package rules evaluates the symbolic production rules that propose
// operators on each decision cycle (spec.md §4.3). Rule conditions and
// operator factories are function values, not a data-driven rule
// language — the host code is the rule language.
package rules

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/latticeforge/neurocore/internal/engine/state"
)

// Condition decides whether a rule matches the given (state, goal).
type Condition func(s state.State, g state.Goal) bool

// Factory builds the operator a matching rule proposes.
type Factory func(s state.State, g state.Goal) state.Operator

// Proposal is one rule's output: an operator candidate with its
// priority and the rule that emitted it.
type Proposal struct {
	Operator state.Operator
	Priority float64
	RuleName string
	Reason   string
}

// Rule is a named, prioritized (condition, factory) pair registered
// into the Engine (spec.md §3).
type Rule struct {
	Name      string
	Priority  float64
	Reason    string
	Condition Condition
	Factory   Factory
}

// Engine holds an ordered registry of rules and evaluates them against
// a (state, goal) pair on request. It is not safe for concurrent
// registration and evaluation; registration happens once at startup.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine with no rules registered.
func NewEngine() *Engine { return &Engine{} }

// Register appends r to the registry. Registration order is preserved
// as the stable tie-break for equal-priority proposals (spec.md §4.3).
func (e *Engine) Register(r Rule) { e.rules = append(e.rules, r) }

// Propose evaluates every registered rule against (s, g) and returns
// matching proposals sorted by descending priority, stable on ties by
// registration order (spec.md §4.3). A rule whose condition panics is
// treated as non-matching and logged, never propagated.
func (e *Engine) Propose(s state.State, g state.Goal) []Proposal {
	proposals := make([]Proposal, 0, len(e.rules))
	for _, r := range e.rules {
		if !safeMatch(r, s, g) {
			continue
		}
		op := r.Factory(s, g)
		if op == nil {
			continue
		}
		proposals = append(proposals, Proposal{
			Operator: op,
			Priority: r.Priority,
			RuleName: r.Name,
			Reason:   r.Reason,
		})
	}

	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].Priority > proposals[j].Priority
	})
	return proposals
}

// InjectMemoryProposal materializes a chunk-derived rule as a
// synthetic proposal at priority 7, strictly above every default rule
// (spec.md §4.3, §4.9). It does not mutate the static registry.
func InjectMemoryProposal(op state.Operator, reason string) Proposal {
	return Proposal{Operator: op, Priority: 7, RuleName: "memory:chunk", Reason: reason}
}

func safeMatch(r Rule, s state.State, g state.Goal) (matched bool) {
	defer func() {
		if err := recover(); err != nil {
			slog.Warn("rule condition panicked, treating as non-match", "rule", r.Name, "error", fmt.Sprint(err))
			matched = false
		}
	}()
	return r.Condition(s, g)
}

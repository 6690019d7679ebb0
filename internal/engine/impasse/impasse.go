// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package impasse classifies a rule engine's proposal list into the
// tagged variant the meta-cognitive monitor reasons about (spec.md
// §4.4).
package impasse

import (
	"github.com/latticeforge/neurocore/internal/engine/rules"
	"github.com/latticeforge/neurocore/internal/engine/state"
)

// Kind is the impasse taxonomy.
type Kind int

const (
	// None means a single unambiguous operator was selected; the
	// caller should apply it directly.
	None Kind = iota
	NoChange
	Tie
	Conflict
	OperatorNoChange
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case NoChange:
		return "no_change"
	case Tie:
		return "tie"
	case Conflict:
		return "conflict"
	case OperatorNoChange:
		return "operator_no_change"
	default:
		return "unknown"
	}
}

// Impasse is the classification result. Selected is populated only
// when Kind is None or OperatorNoChange; Tied carries the tied subset
// for Tie and Conflict.
type Impasse struct {
	Kind     Kind
	Selected rules.Proposal
	Tied     []rules.Proposal
}

// Classify implements the decision table from spec.md §4.4: empty
// proposals is NoChange; one is applied directly; a tied top priority
// is Tie; distinct top priorities select it unless inapplicable, which
// is OperatorNoChange. Conflict is reserved for future incomparable-
// priority policies and is never emitted by the current default
// policy.
func Classify(proposals []rules.Proposal, s state.State, g state.Goal) Impasse {
	if len(proposals) == 0 {
		return Impasse{Kind: NoChange}
	}
	if len(proposals) == 1 {
		return Impasse{Kind: None, Selected: proposals[0]}
	}

	top := proposals[0].Priority
	var tied []rules.Proposal
	for _, p := range proposals {
		if p.Priority == top {
			tied = append(tied, p)
		}
	}
	if len(tied) >= 2 {
		return Impasse{Kind: Tie, Tied: tied}
	}

	winner := proposals[0]
	if !winner.Operator.IsApplicable(s, g) {
		return Impasse{Kind: OperatorNoChange, Selected: winner}
	}
	return Impasse{Kind: None, Selected: winner}
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package actr implements the ACT-R-style utility resolver: when the
// meta-cognitive monitor escalates, this package asks the LLM for
// per-operator probability/cost estimates and picks the operator with
// maximum utility, tabu-penalized by reuse history (spec.md §4.8).
package actr

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/latticeforge/neurocore/internal/engine/compress"
	"github.com/latticeforge/neurocore/internal/engine/state"
	"github.com/latticeforge/neurocore/internal/llm"
)

// Config carries the tunables named in spec.md §6.
type Config struct {
	GoalValue         float64 // G
	NoiseStddev       float64 // σ
	PenaltyMultiplier float64
}

// ActionCounts is the minimal view of working memory the resolver
// needs for the tabu penalty, decoupling this package from the full
// state.WorkingMemory type.
type ActionCounts interface {
	GetActionCount(name string) int
}

// Estimate is one operator's LLM-sourced probability/cost estimate.
type Estimate struct {
	ProbabilityOfSuccess float64 `json:"probability_of_success"`
	EstimatedCost        float64 `json:"estimated_cost"`
	Reasoning            string  `json:"reasoning"`
}

// Resolver queries an llm.Client for utility estimates and resolves
// them to a winning operator.
type Resolver struct {
	client *llm.Client
	cfg    Config
	rng    *rand.Rand
}

// New returns a Resolver. rng, when nil, defaults to a new source
// seeded with 1; tests should inject a seeded source for reproducibility
// (spec.md §4.8: "reproducibility is achieved by injecting a seeded
// random source in tests").
func New(client *llm.Client, cfg Config, rng *rand.Rand) *Resolver {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Resolver{client: client, cfg: cfg, rng: rng}
}

// Resolution is the resolver's output: the winning operator, its
// utility score, and whether a selection was made at all.
type Resolution struct {
	Operator state.Operator
	Utility  float64
	Ok       bool
}

// Resolve implements spec.md §4.8's algorithm. It returns Ok=false
// when the LLM is unavailable or returns an evaluation whose operator
// set doesn't match the input.
func (r *Resolver) Resolve(ctx context.Context, operators []state.Operator, s state.State, g state.Goal, counts ActionCounts) Resolution {
	if len(operators) == 0 {
		return Resolution{}
	}

	view := compress.Compress(ctx, s, g, 2000)
	prompt := buildUtilityPrompt(view, operators)

	raw, err := r.client.StructuredQuery(ctx, prompt, utilityEvaluationSchema(operators))
	if err != nil || raw == nil {
		return Resolution{}
	}

	estimates, ok := parseEvaluation(raw, operators)
	if !ok {
		return Resolution{}
	}

	best := -1
	bestUtility := 0.0
	for i, op := range operators {
		est := estimates[op.Name()]
		historyPenalty := float64(counts.GetActionCount(op.Name())) * r.cfg.PenaltyMultiplier
		noise := r.rng.NormFloat64() * r.cfg.NoiseStddev
		utility := est.ProbabilityOfSuccess*r.cfg.GoalValue - est.EstimatedCost - historyPenalty + noise

		if best == -1 || utility > bestUtility {
			best = i
			bestUtility = utility
		}
	}

	if best == -1 {
		return Resolution{}
	}
	return Resolution{Operator: operators[best], Utility: bestUtility, Ok: true}
}

// GenerateOperators is the alternative entry point used on a NoChange
// impasse (spec.md §4.8): it prompts for 1-5 concrete operator
// suggestions and returns their raw descriptions for the agent to
// materialize into real operators. It returns nil when the LLM is
// unavailable.
func (r *Resolver) GenerateOperators(ctx context.Context, s state.State, g state.Goal) []map[string]any {
	view := compress.Compress(ctx, s, g, 1500)
	prompt := fmt.Sprintf(
		"Goal: %s\n%s\nSuggest 1 to 5 concrete next actions as a JSON array named \"operators\", "+
			"each with fields \"name\", \"params\", and \"reasoning\". Only use operator names from the "+
			"known set: read_file, list_directory, write_file, apply_fix, run_code.",
		g.Description, view.Render(),
	)

	raw, err := r.client.StructuredQuery(ctx, prompt, generatedOperatorsSchema())
	if err != nil || raw == nil {
		return nil
	}
	items, ok := raw["operators"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	if len(out) == 0 || len(out) > 5 {
		return nil
	}
	return out
}

func buildUtilityPrompt(view compress.View, operators []state.Operator) string {
	var names strings.Builder
	for i, op := range operators {
		if i > 0 {
			names.WriteString(", ")
		}
		names.WriteString(op.Name())
	}
	return fmt.Sprintf(
		"%s\nCandidate operators: %s\n\nFor each operator estimate probability_of_success in [0,1] "+
			"and estimated_cost in [1,10], with reasoning. Utility is "+
			"probability_of_success * %.1f - estimated_cost, penalized for repeated use.",
		view.Render(), names.String(), 10.0,
	)
}

func utilityEvaluationSchema(operators []state.Operator) map[string]any {
	names := make([]string, len(operators))
	for i, op := range operators {
		names[i] = op.Name()
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"estimates": map[string]any{
				"type": "object",
				"description": "keyed by operator name",
			},
			"operator_names": names,
		},
		"required": []string{"estimates"},
	}
}

func generatedOperatorsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operators": map[string]any{"type": "array"},
		},
		"required": []string{"operators"},
	}
}

// parseEvaluation validates that raw's "estimates" map covers exactly
// the operator set passed in, per spec.md §4.8 step 4.
func parseEvaluation(raw map[string]any, operators []state.Operator) (map[string]Estimate, bool) {
	rawEstimates, ok := raw["estimates"].(map[string]any)
	if !ok {
		return nil, false
	}

	out := make(map[string]Estimate, len(operators))
	for _, op := range operators {
		entry, ok := rawEstimates[op.Name()].(map[string]any)
		if !ok {
			return nil, false
		}
		prob, _ := entry["probability_of_success"].(float64)
		cost, _ := entry["estimated_cost"].(float64)
		reasoning, _ := entry["reasoning"].(string)
		out[op.Name()] = Estimate{ProbabilityOfSuccess: prob, EstimatedCost: cost, Reasoning: reasoning}
	}
	return out, true
}

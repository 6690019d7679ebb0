// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package evolve implements the evolutionary solver: the fallback path
// for code-repair goals when the symbolic core and the ACT-R resolver
// both stall (spec.md §4.10).
package evolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/latticeforge/neurocore/internal/engine/evaluator"
	"github.com/latticeforge/neurocore/internal/llm"
)

// Candidate is one generation's attempt: a hypothesis about the fix, a
// patch to the original code, and the LLM's reasoning for it.
type Candidate struct {
	Hypothesis string `json:"hypothesis"`
	CodePatch  string `json:"code_patch"`
	Reasoning  string `json:"reasoning"`
	Score      int
	Report     evaluator.Result
}

// tabuOperators are the phrasings the generation prompt explicitly
// forbids repeating (spec.md §4.10 step 1).
var tabuOperators = []string{"read file again", "list directory again"}

// Solver drives the generate/score/mutate loop.
type Solver struct {
	client *llm.Client
	eval   *evaluator.Evaluator
}

// New returns a Solver that scores candidates with eval.
func New(client *llm.Client, eval *evaluator.Evaluator) *Solver {
	return &Solver{client: client, eval: eval}
}

// perfectScore short-circuits the generation loop (spec.md §4.10 step 2).
const perfectScore = 100

// Evolve implements spec.md §4.10's loop. It returns nil only when
// generation 0 itself failed to produce any candidates.
//
// evolve's signature (spec.md §4.10) carries no separate test_code
// parameter, yet the evaluator's correctness check (§4.11) needs one
// to ever reach a score of 100. We resolve that by letting
// errorContext optionally embed a test harness after a literal "TEST:"
// marker; absent that marker every candidate is scored without a
// correctness check and scores at most the 40-60 band.
//
// overusedOperators, typically working memory's highest action_counts
// (SPEC_FULL.md §4.10a), are named in the generation prompt alongside
// tabuOperators so the model avoids repeating whatever this solve has
// already leaned on too hard. A nil or empty slice is fine; the prompt
// just falls back to tabuOperators alone.
func (sv *Solver) Evolve(ctx context.Context, errorContext, goalText, originalCode string, generations, population int, overusedOperators []string) *Candidate {
	testCode := extractTestCode(errorContext)

	best := &Candidate{CodePatch: originalCode}

	candidates := sv.generateDiverse(ctx, errorContext, goalText, originalCode, population, "", overusedOperators)
	if len(candidates) == 0 {
		return nil
	}

	for gen := 0; gen < generations; gen++ {
		for i := range candidates {
			candidates[i].Report = sv.eval.Evaluate(candidates[i].CodePatch, testCode)
			candidates[i].Score = candidates[i].Report.Score
			if candidates[i].Score >= best.Score {
				best = &candidates[i]
			}
			if candidates[i].Score == perfectScore {
				return &candidates[i]
			}
		}

		if gen == generations-1 {
			break
		}

		failureClass := describeFailure(best.Report)
		mutated := sv.mutate(ctx, best, failureClass)
		fresh := sv.generateDiverse(ctx, errorContext, goalText, originalCode, population-1, failureClass, overusedOperators)
		candidates = append([]Candidate{mutated}, fresh...)
	}

	return best
}

func (sv *Solver) generateDiverse(ctx context.Context, errorContext, goalText, originalCode string, n int, failureClass string, overusedOperators []string) []Candidate {
	if n <= 0 {
		return nil
	}
	avoid := tabuOperators
	if len(overusedOperators) > 0 {
		avoid = append(append([]string{}, tabuOperators...), overusedOperators...)
	}
	prompt := fmt.Sprintf(
		"Goal: %s\nError context: %s\nOriginal code:\n%s\n\nGenerate %d distinct candidate fixes, "+
			"each different in approach. Never repeat these known-unproductive actions: %s.%s "+
			"Respond as JSON with an array field \"candidates\", each item having "+
			"\"hypothesis\", \"code_patch\", and \"reasoning\".",
		goalText, errorContext, originalCode, n, strings.Join(avoid, ", "), failureNote(failureClass),
	)

	raw, err := sv.client.StructuredQuery(ctx, prompt, candidatesSchema())
	if err != nil || raw == nil {
		return nil
	}
	items, ok := raw["candidates"].([]any)
	if !ok {
		return nil
	}
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		hypothesis, _ := m["hypothesis"].(string)
		patch, _ := m["code_patch"].(string)
		reasoning, _ := m["reasoning"].(string)
		if patch == "" {
			continue
		}
		out = append(out, Candidate{Hypothesis: hypothesis, CodePatch: patch, Reasoning: reasoning})
	}
	return out
}

func (sv *Solver) mutate(ctx context.Context, best *Candidate, failureClass string) Candidate {
	prompt := fmt.Sprintf(
		"The following candidate fix scored %d and failed with class %q:\n%s\n\n"+
			"Reasoning so far: %s\n\nPropose an improved variant addressing that specific failure. "+
			"Respond as JSON with \"hypothesis\", \"code_patch\", \"reasoning\".",
		best.Score, failureClass, best.CodePatch, best.Reasoning,
	)
	raw, err := sv.client.StructuredQuery(ctx, prompt, mutationSchema())
	if err != nil || raw == nil {
		return *best
	}
	patch, _ := raw["code_patch"].(string)
	if patch == "" {
		return *best
	}
	hypothesis, _ := raw["hypothesis"].(string)
	reasoning, _ := raw["reasoning"].(string)
	return Candidate{Hypothesis: hypothesis, CodePatch: patch, Reasoning: reasoning}
}

const testCodeMarker = "TEST:"

func extractTestCode(errorContext string) string {
	idx := strings.Index(errorContext, testCodeMarker)
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(errorContext[idx+len(testCodeMarker):])
}

func describeFailure(r evaluator.Result) string {
	switch {
	case !r.SyntaxValid:
		return "syntax_error"
	case !r.RuntimeValid:
		return "runtime_error"
	case !r.CorrectnessValid:
		return "correctness_failure"
	default:
		return "none"
	}
}

func failureNote(failureClass string) string {
	if failureClass == "" || failureClass == "none" {
		return ""
	}
	return fmt.Sprintf(" The previous best candidate failed with class %q; avoid repeating that mistake.", failureClass)
}

func candidatesSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"candidates": map[string]any{"type": "array"}},
		"required":   []string{"candidates"},
	}
}

func mutationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hypothesis": map[string]any{"type": "string"},
			"code_patch": map[string]any{"type": "string"},
			"reasoning":  map[string]any{"type": "string"},
		},
		"required": []string{"code_patch"},
	}
}

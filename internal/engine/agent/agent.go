// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package agent wires the rule engine, impasse detector, meta-cognitive
// monitor, ACT-R resolver, evolutionary solver, unified memory, and
// safety middleware into the single decision cycle spec.md §4.1
// describes. It is the only package that imports all the others.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/latticeforge/neurocore/internal/engine/actr"
	"github.com/latticeforge/neurocore/internal/engine/evolve"
	"github.com/latticeforge/neurocore/internal/engine/impasse"
	"github.com/latticeforge/neurocore/internal/engine/memory"
	"github.com/latticeforge/neurocore/internal/engine/metacog"
	"github.com/latticeforge/neurocore/internal/engine/rules"
	"github.com/latticeforge/neurocore/internal/engine/safety"
	"github.com/latticeforge/neurocore/internal/engine/state"
	"github.com/latticeforge/neurocore/internal/metrics"
	"github.com/latticeforge/neurocore/internal/operator"
)

// maxSameOperatorRetries bounds how many times a solve call will apply
// the same operator against the same state signature before forcing an
// impasse, independent of has_loop's failure-streak check (spec.md
// §4.1: "never retries the same (state-signature, operator) pair more
// than a bounded number of times").
const maxSameOperatorRetries = 3

// evolveOverusedOperators bounds how many of working memory's
// highest-action_count operators get named in the evolve solver's
// generation prompt as already-overused (SPEC_FULL.md §4.10a).
const evolveOverusedOperators = 3

// Config carries every tunable named across spec.md §4 and §6 that the
// decision cycle itself (as opposed to its collaborators' own
// construction) needs.
type Config struct {
	MaxCycles     int
	LoopWindow    int
	Metacog       metacog.Config
	ACTR          actr.Config
	EvolveGens    int
	EvolvePop     int
	EvolveEnabled bool
	Safety        safety.Config
}

// Agent is the cognitive orchestrator. It owns no collaborator state
// beyond what's passed in at construction; a single Agent can drive
// many independent solve calls.
type Agent struct {
	cfg Config

	rules      *rules.Engine
	resolver   *actr.Resolver
	solver     *evolve.Solver
	chunks     *memory.ChunkStore
	opMemory   *memory.OperationalMemory
	guard      *safety.Middleware
	classifier metacog.GoalClassifier
	monitor    *metacog.Monitor

	logger *slog.Logger
}

// New wires every collaborator into an Agent ready to run solve calls.
// resolver, solver, and the memory stores may be nil — their absence
// degrades gracefully per spec.md §4.7/§4.9 (no LLM, or no
// persistence) rather than failing construction. classifier defaults
// to metacog.DefaultGoalClassifier when nil.
func New(cfg Config, ruleEngine *rules.Engine, resolver *actr.Resolver, solver *evolve.Solver, chunks *memory.ChunkStore, opMemory *memory.OperationalMemory, guard *safety.Middleware, classifier metacog.GoalClassifier, logger *slog.Logger) *Agent {
	if classifier == nil {
		classifier = metacog.DefaultGoalClassifier
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:        cfg,
		rules:      ruleEngine,
		resolver:   resolver,
		solver:     solver,
		chunks:     chunks,
		opMemory:   opMemory,
		guard:      guard,
		classifier: classifier,
		monitor:    metacog.New(cfg.Metacog),
		logger:     logger,
	}
}

// retryKey identifies one (state-signature, operator) pair for the
// same-pair retry bound.
type retryKey struct {
	signature string
	operator  string
}

// Solve implements spec.md §4.1's decision cycle. verbosity only
// affects log detail; it never changes control flow.
func (a *Agent) Solve(ctx context.Context, goalText string, initial state.State, verbosity int) (bool, state.State) {
	wm := state.NewWorkingMemory(initial, goalText, a.cfg.LoopWindow)

	if a.opMemory != nil {
		a.opMemory.PushContext(ctx, goalText, initial.Hash(), time.Now())
	}

	retries := make(map[retryKey]int)
	isCodeFix := a.classifier(goalText)

	for cycle := 0; cycle < a.cfg.MaxCycles; cycle++ {
		metrics.RecordCycle()
		current := wm.Current()
		goal := wm.CurrentGoal()

		if wm.RootStatus() == state.GoalSuccess {
			a.sealContext(ctx, memory.ContextSuccess, "")
			return true, wm.Current()
		}
		if wm.RootStatus() == state.GoalFailure {
			a.sealContext(ctx, memory.ContextFailure, "")
			return false, wm.Current()
		}

		proposals := a.rules.Propose(current, goal)
		if injected := a.memoryProposal(ctx, current, goal); injected != nil {
			proposals = append([]rules.Proposal{*injected}, proposals...)
		}

		imp := impasse.Classify(proposals, current, goal)
		pressure := a.monitor.Pressure(wm.CurrentGoalDepth(), wm.TimeInStateMs(), ambiguityOperatorCount(imp), wm.HasLoop())
		action := metacog.Decide(pressure, imp.Kind, isCodeFix)

		a.logCycle(verbosity, cycle, imp, pressure, action)

		switch action {
		case metacog.ActionSubgoal:
			if !a.subgoal(ctx, wm, imp, goal) {
				wm.SetRootStatus(state.GoalFailure)
			}
			continue

		case metacog.ActionProceed:
			if imp.Kind == impasse.NoChange {
				wm.SetRootStatus(state.GoalFailure)
				continue
			}
			a.applyOperator(ctx, wm, imp.Selected.Operator, retries, false, safety.UtilityInput{})
			continue

		case metacog.ActionActR:
			ops := candidateOperators(proposals)
			resolution := a.resolveActR(ctx, ops, current, goal, wm)
			if !resolution.Ok {
				if metacog.DecideAfterActR(isCodeFix) == metacog.ActionEvolve {
					a.runEvolve(ctx, wm, goal, current)
					continue
				}
				if !a.subgoal(ctx, wm, imp, goal) {
					wm.SetRootStatus(state.GoalFailure)
				}
				continue
			}
			utility := safety.UtilityInput{
				Utility:    resolution.Utility,
				HasUtility: true,
				Reasoning:  fmt.Sprintf("ACT-R utility %.2f for %s", resolution.Utility, resolution.Operator.Name()),
			}
			a.applyOperator(ctx, wm, resolution.Operator, retries, true, utility)
			continue

		case metacog.ActionEvolve:
			a.runEvolve(ctx, wm, goal, current)
			continue
		}
	}

	a.logger.Warn("solve exhausted max_cycles without a terminal state", "goal", goalText, "max_cycles", a.cfg.MaxCycles)
	a.sealContext(ctx, memory.ContextFailure, "")
	return false, wm.Current()
}

// memoryProposal asks the chunk store for a reusable solution and, if
// one clears the success-rate floor, materializes it as a priority-7
// proposal (spec.md §4.3, §4.9). It never returns a proposal whose
// chunk carries no reusable operator hint, since chunks from earlier
// versions of this package store free-text reasoning rather than a
// concrete operator.
func (a *Agent) memoryProposal(ctx context.Context, s state.State, g state.Goal) *rules.Proposal {
	if a.chunks == nil || !a.chunks.Enabled() {
		return nil
	}
	errText := ""
	if last, ok := s.LastError(); ok {
		errText = last
	}
	similar := a.chunks.RetrieveSimilar(ctx, g.Description, errText, s.OpenPaths(), 3, 0)
	if len(similar) == 0 {
		return nil
	}
	best := similar[0]
	if best.OperatorName == "" {
		return nil
	}
	op := operatorForName(best.OperatorName, s, g)
	if op == nil || !op.IsApplicable(s, g) {
		return nil
	}
	proposal := rules.InjectMemoryProposal(op, fmt.Sprintf("reused chunk %s (success_rate=%.2f)", best.ID, best.SuccessRate()))
	return &proposal
}

// subgoal pushes a new sub-goal for a NoChange or Tie impasse. It
// returns false when there is nothing productive to subgoal toward,
// signaling the caller to fail the solve.
func (a *Agent) subgoal(ctx context.Context, wm *state.WorkingMemory, imp impasse.Impasse, goal state.Goal) bool {
	description := goal.Description
	switch imp.Kind {
	case impasse.NoChange:
		description = "explore the working directory to find a path forward on: " + goal.Description
	case impasse.Tie:
		description = "disambiguate between tied candidate actions for: " + goal.Description
	default:
		description = "retry with a fresh approach: " + goal.Description
	}

	if wm.CurrentGoalDepth() >= maxSubgoalDepth {
		return false
	}

	if a.opMemory != nil {
		a.opMemory.PushContext(ctx, description, wm.Current().Hash(), time.Now())
	}
	wm.PushGoal(description, goal.Priority)
	return true
}

// maxSubgoalDepth caps runaway symbolic subgoaling; spec.md leaves the
// exact bound to the implementation, only naming depth_threshold as
// the pressure signal, not a hard ceiling.
const maxSubgoalDepth = 8

// applyOperator executes op through the safety middleware, records the
// transition, and pops the current goal on success. viaEscalation
// marks whether the operator came from ACT-R (used to decide whether a
// chunk should be created on success, per spec.md §4.1 step 5).
// utility carries the ACT-R resolver's estimate, if any, so the safety
// gate's utility-threshold step (§4.12 step 3) can actually fire;
// rule-matched proposals pass the zero-value UtilityInput, since the
// rule engine never computes a utility score.
func (a *Agent) applyOperator(ctx context.Context, wm *state.WorkingMemory, op state.Operator, retries map[retryKey]int, viaEscalation bool, utility safety.UtilityInput) {
	from := wm.Current()
	key := retryKey{signature: state.Signature(from, wm.CurrentGoal().Description), operator: op.Name()}
	retries[key]++
	if retries[key] > maxSameOperatorRetries {
		wm.RecordTransition(op.Name(), state.OperatorResult{Success: false, Err: fmt.Errorf("operator %s retried past bound for this state", op.Name())}, from)
		metrics.RecordTransition(false)
		return
	}

	outcome := a.guard.ExecuteWithSafety(ctx, op, from, utility)
	wm.RecordTransition(op.Name(), outcome.Result, from)
	metrics.RecordTransition(outcome.Result.Success)

	if !outcome.Result.Success {
		return
	}
	wasRoot := wm.CurrentGoalDepth() == 0
	wm.PopGoal(state.GoalSuccess)
	if viaEscalation {
		a.storeChunk(ctx, wm, op.Name(), from, true)
	}
	if wasRoot {
		wm.SetRootStatus(state.GoalSuccess)
	}
}

// runEvolve invokes the evolutionary solver against the primary open
// file's content and writes the best candidate back over that file,
// whatever its score. With no file open, or no candidate, it marks the
// root goal failed.
func (a *Agent) runEvolve(ctx context.Context, wm *state.WorkingMemory, goal state.Goal, s state.State) {
	if a.solver == nil || !a.cfg.EvolveEnabled {
		wm.SetRootStatus(state.GoalFailure)
		return
	}

	path, original := primaryOpenFile(s)
	if path == "" {
		wm.SetRootStatus(state.GoalFailure)
		return
	}

	errContext := ""
	if last, ok := s.LastError(); ok {
		errContext = last
	}

	overused := wm.TopActionCounts(evolveOverusedOperators)
	best := a.solver.Evolve(ctx, errContext, goal.Description, original, a.cfg.EvolveGens, a.cfg.EvolvePop, overused)
	if best == nil {
		wm.SetRootStatus(state.GoalFailure)
		return
	}

	fixOp := applyFixOperator(path, best.CodePatch)
	outcome := a.guard.ExecuteWithSafety(ctx, fixOp, s, safety.UtilityInput{Reasoning: best.Reasoning})
	wm.RecordTransition(fixOp.Name(), outcome.Result, s)
	metrics.RecordTransition(outcome.Result.Success)

	if outcome.Result.Success {
		wm.PopGoal(state.GoalSuccess)
		a.storeChunk(ctx, wm, fixOp.Name(), s, true)
		if wm.CurrentGoalDepth() == 0 {
			wm.SetRootStatus(state.GoalSuccess)
		}
		return
	}
	a.storeChunk(ctx, wm, fixOp.Name(), s, false)
}

func (a *Agent) resolveActR(ctx context.Context, ops []state.Operator, s state.State, g state.Goal, wm *state.WorkingMemory) actr.Resolution {
	if a.resolver == nil || len(ops) == 0 {
		return actr.Resolution{}
	}
	return a.resolver.Resolve(ctx, ops, s, g, wm)
}

// storeChunk persists a chunk from the pre-execution state, as spec.md
// §4.1 step 5 requires for ACT-R/evolution-triggered successes (and,
// symmetrically, evolution failures — the evaluator's own scoring
// already tells future retrieval the success rate).
func (a *Agent) storeChunk(ctx context.Context, wm *state.WorkingMemory, opName string, from state.State, succeeded bool) {
	if a.chunks == nil || !a.chunks.Enabled() {
		return
	}
	goal := wm.CurrentGoal()
	errText := ""
	if last, ok := from.LastError(); ok {
		errText = last
	}
	a.chunks.StoreChunk(ctx, goal.Description, opName, errText, from.OpenPaths(), succeeded, time.Now())
}

func (a *Agent) sealContext(ctx context.Context, status memory.ContextStatus, resolutionOperator string) {
	if a.opMemory == nil {
		return
	}
	for {
		_, ok := a.opMemory.PopContext(ctx, status, resolutionOperator, time.Now())
		if !ok {
			return
		}
	}
}

func (a *Agent) logCycle(verbosity int, cycle int, imp impasse.Impasse, pressure float64, action metacog.Action) {
	if verbosity <= 0 {
		return
	}
	a.logger.Info("decision cycle", "cycle", cycle, "impasse", imp.Kind.String(), "pressure", pressure, "action", action.String())
}

// ambiguityOperatorCount maps an impasse classification to the operator
// count metacog.Monitor.Pressure expects: 0 for no proposals (NoChange),
// the tied-subset size for Tie, and 1 for an unambiguous winner (spec.md
// §4.5's operator_ambiguity definition).
func ambiguityOperatorCount(imp impasse.Impasse) int {
	switch imp.Kind {
	case impasse.NoChange:
		return 0
	case impasse.Tie:
		return len(imp.Tied)
	default:
		return 1
	}
}

func candidateOperators(proposals []rules.Proposal) []state.Operator {
	ops := make([]state.Operator, 0, len(proposals))
	for _, p := range proposals {
		if p.Operator != nil {
			ops = append(ops, p.Operator)
		}
	}
	return ops
}

// operatorForName materializes the handful of operator kinds a stored
// chunk can name back into a concrete state.Operator. Chunks that name
// an operator this agent doesn't know how to rebuild (or that carry no
// usable path) yield nil, and the caller falls back to the rule
// engine's own proposals.
func operatorForName(name string, s state.State, g state.Goal) state.Operator {
	switch {
	case hasPrefix(name, "read_file"):
		paths := s.OpenPaths()
		if len(paths) == 0 {
			return nil
		}
		return operator.ReadFile{Path: paths[0]}
	case hasPrefix(name, "list_directory"):
		return operator.ListDirectory{Path: "."}
	default:
		return nil
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// applyFixOperator builds the operator that lands an evolved patch.
// The evolutionary solver returns a full replacement body rather than a
// unified diff, so this writes the file directly rather than routing
// through operator.ApplyFix's diff parser; it is still gated by the
// safety middleware's destructive-operator path exactly as apply_fix
// would be.
func applyFixOperator(path, patch string) state.Operator {
	return operator.WriteFile{Path: path, Content: patch}
}

// primaryOpenFile picks the file most likely to be the evolutionary
// solver's target: the last path in OpenPaths()'s alphabetical order,
// not necessarily the most recently opened one — a simple, deterministic stand-in for "the file the
// last error or goal pointed at" when no richer signal is available.
func primaryOpenFile(s state.State) (string, string) {
	paths := s.OpenPaths()
	if len(paths) == 0 {
		return "", ""
	}
	path := paths[len(paths)-1]
	return path, s.Files[path].Content
}

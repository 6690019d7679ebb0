// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package safety implements the execute-with-safety middleware that
// gates every operator application behind dry-run, approval, and
// utility-threshold checks before it touches the real state (spec.md
// §4.12).
package safety

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/latticeforge/neurocore/internal/engine/state"
)

// ErrDenied is the sentinel error carried by a denied OperatorResult.
var ErrDenied = errors.New("denied")

var tracer = otel.Tracer("neurocore.safety")

// Decision records how a particular execution was authorized.
type Decision string

const (
	DecisionDryRun   Decision = "dry_run"
	DecisionAuto     Decision = "auto"
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// ApprovalRequest carries everything a hook needs to render a prompt
// to whatever is granting approval (a human, a policy engine, a test
// double).
type ApprovalRequest struct {
	OperatorName string
	Description  string
	Destructive  bool
	Utility      float64
	HasUtility   bool
	Reasoning    string
}

// ApprovalHook is the abstract approval boundary named in spec.md §6.
// It must be synchronous from the middleware's perspective — Decide
// blocks until an answer is available — but an implementation is free
// to suspend its own goroutine (e.g. waiting on a channel fed by a
// UI) while doing so.
type ApprovalHook interface {
	Decide(ctx context.Context, req ApprovalRequest) bool
}

// AutoApproveHook approves everything without asking, useful for
// non-interactive runs and tests.
type AutoApproveHook struct{}

// Decide implements ApprovalHook.
func (AutoApproveHook) Decide(ctx context.Context, req ApprovalRequest) bool { return true }

// DenyAllHook rejects every request, useful for dry test harnesses
// that must prove the agent never executes a destructive operator
// without approval.
type DenyAllHook struct{}

// Decide implements ApprovalHook.
func (DenyAllHook) Decide(ctx context.Context, req ApprovalRequest) bool { return false }

// Config carries the tunables named in spec.md §6.
type Config struct {
	DryRun              bool
	ApprovalGateEnabled bool
	AutoApproveSafe     bool
	UtilityThreshold    float64
}

// Counters tracks how many times each decision kind fired across a
// solve call, surfaced for the CLI's verbose output.
type Counters struct {
	mu       sync.Mutex
	byResult map[Decision]int
}

func newCounters() *Counters {
	return &Counters{byResult: make(map[Decision]int)}
}

func (c *Counters) record(d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byResult[d]++
}

// Snapshot returns a copy of the current counts.
func (c *Counters) Snapshot() map[Decision]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Decision]int, len(c.byResult))
	for k, v := range c.byResult {
		out[k] = v
	}
	return out
}

// Middleware wraps operator execution with the decision order spec.md
// §4.12 defines.
type Middleware struct {
	cfg      Config
	hook     ApprovalHook
	counters *Counters
}

// New returns a Middleware using hook for any approval request it
// needs to make.
func New(cfg Config, hook ApprovalHook) *Middleware {
	if hook == nil {
		hook = AutoApproveHook{}
	}
	return &Middleware{cfg: cfg, hook: hook, counters: newCounters()}
}

// Counters exposes the running decision counts.
func (m *Middleware) Counters() *Counters { return m.counters }

// Outcome is what ExecuteWithSafety returns: the underlying operator
// result (real or synthetic) plus how the decision was made.
type Outcome struct {
	Result   state.OperatorResult
	Decision Decision
	Reason   string
}

// UtilityInput carries an optional ACT-R utility score and the
// reasoning behind choosing this operator, both purely advisory until
// they cross the configured threshold.
type UtilityInput struct {
	Utility    float64
	HasUtility bool
	Reasoning  string
}

// ExecuteWithSafety implements spec.md §4.12's decision order:
//  1. dry-run short-circuits with a synthetic success.
//  2. a destructive operator, with the approval gate enabled, requires
//     approval.
//  3. otherwise a utility below threshold requires approval.
//  4. otherwise a non-destructive operator auto-executes when
//     auto-approve-safe is on.
//  5. otherwise it just executes.
func (m *Middleware) ExecuteWithSafety(ctx context.Context, op state.Operator, s state.State, utility UtilityInput) Outcome {
	if m.cfg.DryRun {
		m.counters.record(DecisionDryRun)
		return Outcome{
			Result:   state.OperatorResult{Success: true, NewState: &s, Output: "dry-run: " + op.Name()},
			Decision: DecisionDryRun,
			Reason:   "dry run enabled",
		}
	}

	if op.IsDestructive() && m.cfg.ApprovalGateEnabled {
		return m.withApproval(ctx, op, s, utility, "destructive operator requires approval")
	}

	if utility.HasUtility && utility.Utility < m.cfg.UtilityThreshold {
		return m.withApproval(ctx, op, s, utility, "utility below threshold")
	}

	if !op.IsDestructive() && m.cfg.AutoApproveSafe {
		m.counters.record(DecisionAuto)
		return Outcome{Result: op.Execute(s), Decision: DecisionAuto, Reason: "auto-approved: non-destructive"}
	}

	m.counters.record(DecisionAuto)
	return Outcome{Result: op.Execute(s), Decision: DecisionAuto, Reason: "no gate applicable"}
}

func (m *Middleware) withApproval(ctx context.Context, op state.Operator, s state.State, utility UtilityInput, reason string) Outcome {
	ctx, span := tracer.Start(ctx, "Middleware.withApproval")
	defer span.End()
	span.SetAttributes(
		attribute.String("operator", op.Name()),
		attribute.Bool("destructive", op.IsDestructive()),
		attribute.String("reason", reason),
	)

	approved := m.hook.Decide(ctx, ApprovalRequest{
		OperatorName: op.Name(),
		Description:  op.Name(),
		Destructive:  op.IsDestructive(),
		Utility:      utility.Utility,
		HasUtility:   utility.HasUtility,
		Reasoning:    utility.Reasoning,
	})
	span.SetAttributes(attribute.Bool("approved", approved))
	if !approved {
		m.counters.record(DecisionDenied)
		return Outcome{
			Result:   state.OperatorResult{Success: false, NewState: &s, Err: ErrDenied},
			Decision: DecisionDenied,
			Reason:   reason,
		}
	}
	m.counters.record(DecisionApproved)
	return Outcome{Result: op.Execute(s), Decision: DecisionApproved, Reason: reason}
}

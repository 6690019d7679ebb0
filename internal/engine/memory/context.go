// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/latticeforge/neurocore/internal/vectorstore"
)

// ContextStatus is the terminal state a context node was sealed with.
type ContextStatus string

const (
	ContextActive  ContextStatus = "active"
	ContextSuccess ContextStatus = "success"
	ContextFailure ContextStatus = "failure"
)

// ContextNode is one entry in the operational memory stack: a goal and
// the state snapshot it was pushed with, persisted on push and sealed
// on pop (spec.md §4.2, §4.9).
type ContextNode struct {
	ID                 string        `json:"id"`
	GoalText           string        `json:"goal_text"`
	StateSnapshot      string        `json:"state_snapshot"`
	ParentID           string        `json:"parent_id"`
	HasParent          bool          `json:"has_parent"`
	Status             ContextStatus `json:"status"`
	ResolutionOperator string        `json:"resolution_operator"`
	PushedAtMs         int64         `json:"pushed_at_ms"`
	SealedAtMs         int64         `json:"sealed_at_ms"`
}

// OperationalMemory tracks the live context stack for a single solve
// call and persists each node to a vector collection so
// retrieve_relevant_history can search across them. A disabled store
// (nil collection) keeps the in-memory stack working but never
// persists or retrieves anything beyond the current call.
type OperationalMemory struct {
	collection *vectorstore.Collection

	mu    sync.Mutex
	stack []ContextNode
}

// NewOperationalMemory wraps collection. A nil collection disables
// cross-call persistence but not the in-process stack.
func NewOperationalMemory(collection *vectorstore.Collection) *OperationalMemory {
	if collection == nil {
		slog.Warn("operational memory constructed without a collection; history persistence disabled")
	}
	return &OperationalMemory{collection: collection}
}

// PushContext opens a new context node as a child of the current top
// of stack (if any) and returns its ID.
func (m *OperationalMemory) PushContext(ctx context.Context, goalText, stateSnapshot string, now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	node := ContextNode{
		ID:            uuid.NewString(),
		GoalText:      goalText,
		StateSnapshot: stateSnapshot,
		Status:        ContextActive,
		PushedAtMs:    now.UnixMilli(),
	}
	if len(m.stack) > 0 {
		node.ParentID = m.stack[len(m.stack)-1].ID
		node.HasParent = true
	}
	m.stack = append(m.stack, node)
	m.persist(ctx, node)
	return node.ID
}

// PopContext seals the active context with status and, if the
// resolution came from the ACT-R or evolutionary path, the operator
// that resolved it. It returns the parent context's ID, or "" with
// ok=false if the stack was already empty or the popped context has
// no parent.
func (m *OperationalMemory) PopContext(ctx context.Context, status ContextStatus, resolutionOperator string, now time.Time) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.stack) == 0 {
		return "", false
	}
	top := m.stack[len(m.stack)-1]
	top.Status = status
	top.ResolutionOperator = resolutionOperator
	top.SealedAtMs = now.UnixMilli()
	m.stack = m.stack[:len(m.stack)-1]
	m.persist(ctx, top)

	if !top.HasParent {
		return "", false
	}
	return top.ParentID, true
}

// GetActiveContext returns the top of stack, or the zero value with
// ok=false when nothing is active.
func (m *OperationalMemory) GetActiveContext() (ContextNode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return ContextNode{}, false
	}
	return m.stack[len(m.stack)-1], true
}

// GetContextChain returns the full stack from root to the active leaf.
func (m *OperationalMemory) GetContextChain() []ContextNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := make([]ContextNode, len(m.stack))
	copy(chain, m.stack)
	return chain
}

// RetrieveRelevantHistory searches persisted context nodes for text
// relevant to query, returning up to maxResults human-readable lines.
// Used by the ACT-R resolver to inject past solutions into prompts
// (spec.md §4.9).
func (m *OperationalMemory) RetrieveRelevantHistory(ctx context.Context, query string, maxResults int) []string {
	if m.collection == nil {
		return nil
	}
	scored, err := m.collection.QueryByText(ctx, query, maxResults)
	if err != nil {
		slog.Warn("context history retrieval failed", "error", err)
		return nil
	}
	out := make([]string, 0, len(scored))
	for _, sr := range scored {
		out = append(out, sr.Document)
	}
	return out
}

func (m *OperationalMemory) persist(ctx context.Context, node ContextNode) {
	if m.collection == nil {
		return
	}
	record := vectorstore.Record{
		ID:       node.ID,
		Document: fmt.Sprintf("Goal: %s | Status: %s | Resolution: %s", node.GoalText, node.Status, node.ResolutionOperator),
		Metadata: map[string]any{
			"goal_text":           node.GoalText,
			"parent_id":           node.ParentID,
			"has_parent":          node.HasParent,
			"status":              string(node.Status),
			"resolution_operator": node.ResolutionOperator,
			"pushed_at_ms":        node.PushedAtMs,
			"sealed_at_ms":        node.SealedAtMs,
		},
	}
	if err := m.collection.Upsert(ctx, record); err != nil {
		slog.Warn("context node persist failed", "context_id", node.ID, "error", err)
	}
}

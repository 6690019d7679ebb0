// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package memory implements the cognitive agent's unified memory: a
// chunk store of reusable successful solutions (spec.md §4.9) and the
// operational context stack that tracks goal nesting across a solve
// call. Both are backed by internal/vectorstore, degrading to a
// disabled no-op mode when the underlying store can't be constructed.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/latticeforge/neurocore/internal/metrics"
	"github.com/latticeforge/neurocore/internal/vectorstore"
)

// Chunk is a learned (goal, operator) pairing with its observed success
// and failure counts, and enough context to judge relevance to a new
// situation.
type Chunk struct {
	ID           string   `json:"id"`
	GoalText     string   `json:"goal_text"`
	OperatorName string   `json:"operator_name"`
	ErrorText    string   `json:"error_text"`
	Files        []string `json:"files"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	CreatedAtMs  int64    `json:"created_at_ms"`
	LastUsedMs   int64    `json:"last_used_ms"`
}

// SuccessRate is successes over total observed uses, 0 when never used.
func (c Chunk) SuccessRate() float64 {
	total := c.SuccessCount + c.FailureCount
	if total == 0 {
		return 0
	}
	return float64(c.SuccessCount) / float64(total)
}

// Activation implements the activation formula named in spec.md §4.9:
// ln(success_count+1) - 0.5 * hours_since_last_use. It favors chunks
// that have worked often and recently.
func (c Chunk) Activation(now time.Time) float64 {
	hoursSince := 0.0
	if c.LastUsedMs > 0 {
		hoursSince = now.Sub(time.UnixMilli(c.LastUsedMs)).Hours()
	}
	return math.Log(float64(c.SuccessCount)+1) - 0.5*hoursSince
}

// embeddingText is the string handed to the vector store for semantic
// retrieval, matching the "Goal: ... | Operator: ... | Error: ... |
// Files: ..." layout named in spec.md §4.9.
func (c Chunk) embeddingText() string {
	return fmt.Sprintf("Goal: %s | Operator: %s | Error: %s | Files: %s",
		c.GoalText, c.OperatorName, c.ErrorText, strings.Join(c.Files, ","))
}

// chunkID derives a deterministic ID from the fields that define a
// chunk's identity, so repeated successes on the same (goal, operator)
// pair merge into one record instead of piling up duplicates.
func chunkID(goalText, operatorName string) string {
	sum := sha256.Sum256([]byte(goalText + "\x00" + operatorName))
	return hex.EncodeToString(sum[:])[:16]
}

// minSuccessRateDefault is the retrieval floor named in spec.md §4.9's
// Open Question resolution (filter by success rate >= 0.7).
const minSuccessRateDefault = 0.7

// ChunkStore stores and retrieves Chunks from a vector collection. A
// nil-underlying ChunkStore (constructed via NewChunkStore(nil))
// silently no-ops every operation, implementing the non-fatal
// construction-failure degradation spec.md §4.9 requires.
type ChunkStore struct {
	collection *vectorstore.Collection
	mu         sync.Mutex
	byID       map[string]Chunk
}

// NewChunkStore wraps collection. Passing a nil collection yields a
// disabled store: every call becomes a no-op and retrievals return
// nothing, matching the construction-failure degradation path.
func NewChunkStore(collection *vectorstore.Collection) *ChunkStore {
	if collection == nil {
		slog.Warn("chunk store constructed without a collection; learning disabled")
	}
	return &ChunkStore{collection: collection, byID: make(map[string]Chunk)}
}

// Enabled reports whether this store persists anything at all.
func (s *ChunkStore) Enabled() bool { return s.collection != nil }

// StoreChunk inserts or merges a successful (or failed) execution into
// the chunk it belongs to, keyed by (goal_text, operator_name).
func (s *ChunkStore) StoreChunk(ctx context.Context, goalText, operatorName, errorText string, files []string, succeeded bool, now time.Time) {
	if !s.Enabled() {
		return
	}

	id := chunkID(goalText, operatorName)
	s.mu.Lock()
	chunk, existed := s.byID[id]
	if !existed {
		chunk = Chunk{ID: id, GoalText: goalText, OperatorName: operatorName, CreatedAtMs: now.UnixMilli()}
	}
	chunk.ErrorText = errorText
	chunk.Files = files
	if succeeded {
		chunk.SuccessCount++
	} else {
		chunk.FailureCount++
	}
	chunk.LastUsedMs = now.UnixMilli()
	s.byID[id] = chunk
	s.mu.Unlock()

	record := vectorstore.Record{
		ID:       chunk.ID,
		Document: chunk.embeddingText(),
		Metadata: map[string]any{
			"goal_text":     chunk.GoalText,
			"operator_name": chunk.OperatorName,
			"error_text":    chunk.ErrorText,
			"files":         strings.Join(chunk.Files, ","),
			"success_count": chunk.SuccessCount,
			"failure_count": chunk.FailureCount,
			"created_at_ms": chunk.CreatedAtMs,
			"last_used_ms":  chunk.LastUsedMs,
		},
	}
	if err := s.collection.Upsert(ctx, record); err != nil {
		slog.Warn("chunk upsert failed", "chunk_id", chunk.ID, "error", err)
	}
	metrics.RecordChunkStored()
}

// UpdateSuccess records a reuse outcome for an existing chunk without
// changing its goal/operator identity.
func (s *ChunkStore) UpdateSuccess(ctx context.Context, chunkID string, succeeded bool, now time.Time) {
	if !s.Enabled() {
		return
	}
	s.mu.Lock()
	chunk, ok := s.byID[chunkID]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.StoreChunk(ctx, chunk.GoalText, chunk.OperatorName, chunk.ErrorText, chunk.Files, succeeded, now)
}

// RetrieveSimilar implements spec.md §4.9's retrieval policy: a vector
// search over embedding text, filtered to success_rate >= minSuccessRate
// (0 uses the package default of 0.7), ordered by descending
// activation, capped at topK.
func (s *ChunkStore) RetrieveSimilar(ctx context.Context, goalText, errorText string, files []string, topK int, minSuccessRate float64) []Chunk {
	if !s.Enabled() {
		return nil
	}
	if minSuccessRate <= 0 {
		minSuccessRate = minSuccessRateDefault
	}

	query := fmt.Sprintf("Goal: %s | Error: %s | Files: %s", goalText, errorText, strings.Join(files, ","))
	scored, err := s.collection.QueryByText(ctx, query, topK*4+10)
	if err != nil {
		slog.Warn("chunk retrieval failed", "error", err)
		return nil
	}

	now := time.Now()
	candidates := make([]Chunk, 0, len(scored))
	for _, sr := range scored {
		chunk := chunkFromRecord(sr.Record)
		if chunk.SuccessRate() < minSuccessRate {
			continue
		}
		candidates = append(candidates, chunk)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Activation(now) > candidates[j].Activation(now)
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

func chunkFromRecord(r vectorstore.Record) Chunk {
	get := func(key string) string {
		v, _ := r.Metadata[key].(string)
		return v
	}
	getInt := func(key string) int {
		switch v := r.Metadata[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return 0
		}
	}
	getInt64 := func(key string) int64 {
		switch v := r.Metadata[key].(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		default:
			return 0
		}
	}

	var files []string
	if raw := get("files"); raw != "" {
		files = strings.Split(raw, ",")
	}
	return Chunk{
		ID:           r.ID,
		GoalText:     get("goal_text"),
		OperatorName: get("operator_name"),
		ErrorText:    get("error_text"),
		Files:        files,
		SuccessCount: getInt("success_count"),
		FailureCount: getInt("failure_count"),
		CreatedAtMs:  getInt64("created_at_ms"),
		LastUsedMs:   getInt64("last_used_ms"),
	}
}

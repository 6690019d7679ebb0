// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package vectorstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// Record is a single document in a logical collection: an opaque ID,
// the text Weaviate embeds for semantic search, and a metadata map
// carried alongside it. The engine's chunk and context-node stores
// both serialize onto this shape (spec.md §4.9, §4.2).
type Record struct {
	ID       string
	Document string
	Metadata map[string]any
}

// ScoredRecord is a Record paired with the similarity score its query
// was ranked by.
type ScoredRecord struct {
	Record
	Score float64
}

// Collection is a named bucket of Records ("chunks" or "goal_stack" per
// spec.md §6) backed by Weaviate when reachable and by an in-memory map
// otherwise.
type Collection struct {
	name    string
	client  *ResilientClient
	mode    atomic.Int32 // DegradationMode
	dataDir string

	mu       sync.RWMutex
	fallback map[string]Record
}

// NewCollection wires a collection to client and registers it as a
// degradation handler so it switches to its in-memory fallback the
// moment Weaviate becomes unreachable.
func NewCollection(name string, client *ResilientClient) *Collection {
	c := &Collection{name: name, client: client, fallback: make(map[string]Record)}
	if client != nil {
		client.RegisterHandler(c)
	}
	return c
}

// WithDataDir persists the in-memory fallback map to a JSON snapshot
// under dir and reloads it immediately, so a Weaviate-less run (or a
// degraded one) keeps what it learned across restarts (SPEC_FULL.md
// §6's vectorstore_data_dir option). A zero-value dir leaves the
// collection memory-only, the prior behavior.
func (c *Collection) WithDataDir(dir string) *Collection {
	c.dataDir = dir
	if dir != "" {
		c.loadSnapshot()
	}
	return c
}

func (c *Collection) snapshotPath() string {
	return filepath.Join(c.dataDir, c.name+".json")
}

func (c *Collection) loadSnapshot() {
	data, err := os.ReadFile(c.snapshotPath())
	if err != nil {
		return
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return
	}
	c.mu.Lock()
	for _, rec := range records {
		c.fallback[rec.ID] = rec
	}
	c.mu.Unlock()
}

func (c *Collection) saveSnapshot() {
	if c.dataDir == "" {
		return
	}
	c.mu.RLock()
	records := make([]Record, 0, len(c.fallback))
	for _, rec := range c.fallback {
		records = append(records, rec)
	}
	c.mu.RUnlock()

	data, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(c.snapshotPath(), data, 0o644)
}

// OnDegraded implements DegradationHandler.
func (c *Collection) OnDegraded(reason string) { c.mode.Store(int32(ModeDegraded)) }

// OnRecovered implements DegradationHandler.
func (c *Collection) OnRecovered() { c.mode.Store(int32(ModeNormal)) }

// GetMode implements DegradationHandler.
func (c *Collection) GetMode() DegradationMode { return DegradationMode(c.mode.Load()) }

// Upsert inserts or replaces rec by ID.
func (c *Collection) Upsert(ctx context.Context, rec Record) error {
	c.mu.Lock()
	c.fallback[rec.ID] = rec
	c.mu.Unlock()
	c.saveSnapshot()

	if c.client == nil || c.GetMode() != ModeNormal {
		return nil
	}
	return c.client.Execute(ctx, func() error {
		props := map[string]any{"document": rec.Document}
		if metaJSON, err := json.Marshal(rec.Metadata); err == nil {
			props["metadataJson"] = string(metaJSON)
		}
		_, err := c.client.Client().Data().Creator().
			WithClassName(c.className()).
			WithID(rec.ID).
			WithProperties(props).
			Do(ctx)
		return err
	})
}

// Delete removes rec by ID from both Weaviate and the fallback map.
func (c *Collection) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	delete(c.fallback, id)
	c.mu.Unlock()
	c.saveSnapshot()

	if c.client == nil || c.GetMode() != ModeNormal {
		return nil
	}
	return c.client.Execute(ctx, func() error {
		return c.client.Client().Data().Deleter().
			WithClassName(c.className()).
			WithID(id).
			Do(ctx)
	})
}

// QueryByText runs a semantic nearText search for topK results, or,
// when degraded, a trivial substring scan over the in-memory fallback
// so retrieval never goes fully dark (spec.md §4.9 retrieve_similar
// must keep returning candidates even without Weaviate).
func (c *Collection) QueryByText(ctx context.Context, text string, topK int) ([]ScoredRecord, error) {
	if c.client != nil && c.GetMode() == ModeNormal {
		results, err := c.queryWeaviate(ctx, text, topK)
		if err == nil {
			return results, nil
		}
	}
	return c.queryFallback(text, topK), nil
}

func (c *Collection) queryWeaviate(ctx context.Context, text string, topK int) ([]ScoredRecord, error) {
	var out []ScoredRecord
	err := c.client.Execute(ctx, func() error {
		nearText := c.client.Client().GraphQL().NearTextArgBuilder().WithConcepts([]string{text})
		resp, err := c.client.Client().GraphQL().Get().
			WithClassName(c.className()).
			WithNearText(nearText).
			WithLimit(topK).
			WithFields(
				graphql.Field{Name: "document"},
				graphql.Field{Name: "metadataJson"},
				graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
			).
			Do(ctx)
		if err != nil {
			return err
		}
		if resp != nil {
			data := make(map[string]any, len(resp.Data))
			for k, v := range resp.Data {
				data[k] = v
			}
			out = parseGraphQLResult(c.className(), data)
		}
		return nil
	})
	return out, err
}

func (c *Collection) queryFallback(text string, topK int) []ScoredRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scored := make([]ScoredRecord, 0, len(c.fallback))
	for _, rec := range c.fallback {
		scored = append(scored, ScoredRecord{Record: rec, Score: textOverlapScore(text, rec.Document)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func (c *Collection) className() string {
	return "Neurocore" + capitalize(c.name)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// textOverlapScore is a crude token-overlap similarity used only when
// Weaviate is unreachable; it exists to keep the degraded path
// functional, not to approximate embedding similarity.
func textOverlapScore(query, doc string) float64 {
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}
	dTokens := make(map[string]bool)
	for _, t := range tokenize(doc) {
		dTokens[t] = true
	}
	matches := 0
	for _, t := range qTokens {
		if dTokens[t] {
			matches++
		}
	}
	return float64(matches) / float64(len(qTokens))
}

func tokenize(s string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			cur = append(cur, r)
		case r >= 'A' && r <= 'Z':
			cur = append(cur, r+('a'-'A'))
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// parseGraphQLResult is deliberately conservative: Weaviate's GraphQL
// response shape is a nested map, and a malformed or empty payload
// should yield no results rather than a panic.
func parseGraphQLResult(className string, respData map[string]any) []ScoredRecord {
	data, ok := respData["Get"].(map[string]any)
	if !ok {
		return nil
	}
	items, ok := data[className].([]any)
	if !ok {
		return nil
	}
	out := make([]ScoredRecord, 0, len(items))
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		doc, _ := obj["document"].(string)
		id, distance := "", 1.0
		if additional, ok := obj["_additional"].(map[string]any); ok {
			id, _ = additional["id"].(string)
			if d, ok := additional["distance"].(float64); ok {
				distance = d
			}
		}
		var metadata map[string]any
		if metaJSON, ok := obj["metadataJson"].(string); ok && metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &metadata)
		}
		out = append(out, ScoredRecord{
			Record: Record{ID: id, Document: doc, Metadata: metadata},
			Score:  1 - distance,
		})
	}
	return out
}


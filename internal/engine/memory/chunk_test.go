// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/latticeforge/neurocore/internal/vectorstore"
)

func TestChunkStoreDisabledIsNoOp(t *testing.T) {
	s := NewChunkStore(nil)
	assert.False(t, s.Enabled())

	s.StoreChunk(context.Background(), "fix the bug", "apply_fix", "panic", nil, true, time.Now())
	results := s.RetrieveSimilar(context.Background(), "fix the bug", "panic", nil, 3, 0)
	assert.Nil(t, results)
}

func TestChunkStoreRetrieveFiltersBySuccessRateAndOrdersByActivation(t *testing.T) {
	collection := vectorstore.NewCollection("chunks", nil)
	s := NewChunkStore(collection)
	now := time.Now()

	s.StoreChunk(context.Background(), "fix the off-by-one bug", "apply_fix", "index out of range", []string{"a.go"}, true, now.Add(-2*time.Hour))
	s.StoreChunk(context.Background(), "fix the off-by-one bug", "apply_fix", "index out of range", []string{"a.go"}, true, now.Add(-1*time.Hour))

	s.StoreChunk(context.Background(), "rename a variable", "apply_fix", "", []string{"b.go"}, false, now.Add(-1*time.Hour))
	s.StoreChunk(context.Background(), "rename a variable", "apply_fix", "", []string{"b.go"}, true, now)

	results := s.RetrieveSimilar(context.Background(), "fix the off-by-one bug", "index out of range", []string{"a.go"}, 5, 0)
	for _, c := range results {
		assert.GreaterOrEqual(t, c.SuccessRate(), minSuccessRateDefault)
	}
}

func TestChunkActivationFavorsRecentSuccesses(t *testing.T) {
	now := time.Now()
	recent := Chunk{SuccessCount: 2, LastUsedMs: now.Add(-1 * time.Hour).UnixMilli()}
	stale := Chunk{SuccessCount: 2, LastUsedMs: now.Add(-100 * time.Hour).UnixMilli()}
	assert.Greater(t, recent.Activation(now), stale.Activation(now))
}

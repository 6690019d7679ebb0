// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package compress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeforge/neurocore/internal/engine/state"
)

func TestCompressRoundTripsGoalAndError(t *testing.T) {
	s := state.New("/p")
	s = s.WithError("main.go:10: nil pointer")

	g := state.Goal{Description: "fix main.go"}
	view := Compress(context.Background(), s, g, 500)

	assert.Equal(t, g.Description, view.GoalText)
	assert.Equal(t, "main.go:10: nil pointer", view.LatestError)
}

func TestCompressIsDeterministic(t *testing.T) {
	s := state.New("/p").WithFile("a.go", state.FileRecord{Content: "package a", Language: "go"})
	g := state.Goal{Description: "read a.go"}

	first := Compress(context.Background(), s, g, 200)
	second := Compress(context.Background(), s, g, 200)
	require.Equal(t, first.Render(), second.Render())
}

func TestCompressNeverDropsGoalOrErrorUnderTinyBudget(t *testing.T) {
	s := state.New("/p").WithFile("a.go", state.FileRecord{Content: "package a\n\nfunc f() {}\n", Language: "go"})
	s = s.WithError("boom")
	g := state.Goal{Description: "fix a.go"}

	view := Compress(context.Background(), s, g, 1)
	assert.Equal(t, g.Description, view.GoalText)
	assert.Equal(t, "boom", view.LatestError)
}

func TestRankFilesPrioritizesGoalAndErrorMentions(t *testing.T) {
	s := state.New("/p").
		WithFile("a.go", state.FileRecord{Content: "x"}).
		WithFile("b.go", state.FileRecord{Content: "y"})
	ranked := rankFiles(s, state.Goal{Description: "fix a.go"}, "")
	require.Len(t, ranked, 2)
	assert.Equal(t, "a.go", ranked[0].path)
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package astutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package main

func add(a, b int) int {
	return a + b
}

func main() {
	println(add(1, 2))
}
`

func TestParseAndFindFunctionGo(t *testing.T) {
	tree, err := Parse(context.Background(), []byte(goSource), "go")
	require.NoError(t, err)

	text, ok := tree.FindFunction("add")
	require.True(t, ok)
	assert.Contains(t, text, "return a + b")

	_, ok = tree.FindFunction("missing")
	assert.False(t, ok)
}

func TestFindNodeAtLine(t *testing.T) {
	tree, err := Parse(context.Background(), []byte(goSource), "go")
	require.NoError(t, err)

	node := tree.FindNodeAtLine(4)
	require.NotNil(t, node)
	assert.Contains(t, tree.NodeText(node), "return a + b")
}

func TestParseUnsupportedLanguage(t *testing.T) {
	_, err := Parse(context.Background(), []byte("x"), "cobol")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestHasErrorOnValidSource(t *testing.T) {
	tree, err := Parse(context.Background(), []byte(goSource), "go")
	require.NoError(t, err)
	assert.False(t, tree.HasError())
}

func TestHasErrorOnMalformedSource(t *testing.T) {
	tree, err := Parse(context.Background(), []byte("func add(a, b int) int {\nreturn a +\n"), "go")
	require.NoError(t, err)
	assert.True(t, tree.HasError())
}

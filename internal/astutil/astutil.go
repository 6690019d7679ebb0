// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package astutil parses source code with tree-sitter and answers the
// two questions the context compressor needs (spec.md §4.6, §6): the
// text of a named function, and the smallest node enclosing a given
// line. It deliberately stops short of full symbol extraction — the
// engine only ever needs excerpts, not a symbol table.
package astutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrUnsupportedLanguage is returned when no tree-sitter grammar is
// registered for the requested language.
var ErrUnsupportedLanguage = errors.New("astutil: unsupported language")

// Tree is a parsed file: the source it was parsed from plus the
// tree-sitter syntax tree. Callers never touch the tree-sitter API
// directly.
type Tree struct {
	Language string
	Source   []byte
	root     *sitter.Node
}

// funcNodeKinds maps a language to the grammar node kinds that
// represent a callable definition. FindFunction matches any kind in
// the list and returns the first match in tree order; the order of the
// list itself does not matter.
var funcNodeKinds = map[string][]string{
	"go":         {"function_declaration", "method_declaration"},
	"python":     {"function_definition"},
	"javascript": {"function_declaration", "method_definition"},
	"java":       {"method_declaration", "constructor_declaration"},
	"c":          {"function_definition"},
}

// nameFieldByKind names the child field holding a definition's
// identifier, since tree-sitter grammars don't agree on a field name.
var nameFieldByKind = map[string]string{
	"function_declaration":    "name",
	"method_declaration":      "name",
	"function_definition":     "name",
	"method_definition":       "name",
	"constructor_declaration": "name",
}

func grammar(language string) (*sitter.Language, error) {
	switch language {
	case "go":
		return golang.GetLanguage(), nil
	case "python":
		return python.GetLanguage(), nil
	case "javascript":
		return javascript.GetLanguage(), nil
	case "java":
		return java.GetLanguage(), nil
	case "c":
		return c.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
}

// Parse builds a Tree from source code in the given language.
// Supported languages: go, python, javascript, java, c.
func Parse(ctx context.Context, code []byte, language string) (*Tree, error) {
	lang, err := grammar(language)
	if err != nil {
		return nil, err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, code)
	if err != nil {
		return nil, fmt.Errorf("parse %s source: %w", language, err)
	}
	return &Tree{Language: language, Source: code, root: tree.RootNode()}, nil
}

// FindFunction returns the full source text of the named function or
// method, or "", false if no definition with that name exists.
func (t *Tree) FindFunction(name string) (string, bool) {
	kinds := funcNodeKinds[t.Language]
	if len(kinds) == 0 {
		return "", false
	}
	var found *sitter.Node
	walk(t.root, func(n *sitter.Node) bool {
		if !containsKind(kinds, n.Type()) {
			return true
		}
		field := nameFieldByKind[n.Type()]
		nameNode := n.ChildByFieldName(field)
		if nameNode != nil && nameNode.Content(t.Source) == name {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return "", false
	}
	return found.Content(t.Source), true
}

// FindNodeAtLine returns the smallest named node that spans the whole
// non-blank text of the given 1-indexed line, or nil if line is out of
// range.
func (t *Tree) FindNodeAtLine(line int) *sitter.Node {
	if line < 1 {
		return nil
	}
	lines := strings.Split(string(t.Source), "\n")
	if line > len(lines) {
		return nil
	}
	start := 0
	for _, l := range lines[:line-1] {
		start += len(l) + 1
	}
	text := lines[line-1]
	lo := uint32(start + len(text) - len(strings.TrimLeft(text, " \t")))
	hi := uint32(start + len(strings.TrimRight(text, " \t\r")))
	var best *sitter.Node
	walk(t.root, func(n *sitter.Node) bool {
		if n.StartByte() > lo || n.EndByte() < hi {
			return false
		}
		if n.IsNamed() {
			best = n
		}
		return true
	})
	return best
}

// HasError reports whether the parse tree contains an ERROR node or a
// missing token, tree-sitter's only signal that the source it parsed
// was not syntactically valid (the parser itself never fails outright;
// it always produces a best-effort tree).
func (t *Tree) HasError() bool {
	return t.root.HasError()
}

// NodeText returns the source text spanned by n.
func (t *Tree) NodeText(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.Source)
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// walk performs a pre-order traversal, calling visit on every node.
// Returning false from visit prunes that subtree.
func walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		walk(n.Child(i), visit)
	}
}

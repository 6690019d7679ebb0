// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package llm wraps the language model backends the engine calls to
// estimate operator utilities and generate candidate patches
// (spec.md §4.7). Callers
// never talk to a backend directly; they go through Client, which adds
// retry, circuit breaking, and JSON-schema validation on top of a raw
// Backend.
package llm

import "context"

// Message is a single turn in a chat-style completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams tunes a single completion request. A nil pointer
// field means "let the backend pick its default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	// Schema, if non-nil, is a JSON schema the backend should constrain
	// its output to. Backends that cannot enforce this natively fall
	// back to prompting for it and letting the caller validate.
	Schema map[string]any `json:"schema,omitempty"`
}

// Backend is the minimal transport every LLM provider implements.
// Higher-level concerns (retry, circuit breaking, schema validation)
// live in Client, not here.
type Backend interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/latticeforge/neurocore/internal/engine/safety"
)

// stdinApprovalHook realizes SPEC_FULL.md §6's blocking yes/no/always
// prompt for the safety middleware's approval gate. "always" latches
// approval for the remainder of the run so a long solve doesn't stall
// on every destructive operator.
type stdinApprovalHook struct {
	in     *bufio.Reader
	out    io.Writer
	always bool
}

func newStdinApprovalHook(in io.Reader, out io.Writer) *stdinApprovalHook {
	return &stdinApprovalHook{in: bufio.NewReader(in), out: out}
}

// Decide implements safety.ApprovalHook.
func (h *stdinApprovalHook) Decide(ctx context.Context, req safety.ApprovalRequest) bool {
	if h.always {
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	fmt.Fprintf(h.out, "approve %q (destructive=%v, utility=%.2f)? [y/N/a] ", req.OperatorName, req.Destructive, req.Utility)
	if req.Reasoning != "" {
		fmt.Fprintf(h.out, "\n  reasoning: %s\n", req.Reasoning)
	}

	line, err := h.in.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "a", "always":
		h.always = true
		return true
	default:
		return false
	}
}

// nonInteractiveApprovalHook denies every destructive or
// below-threshold request without blocking on stdin, for
// `--non-interactive` runs (SPEC_FULL.md §6).
type nonInteractiveApprovalHook struct{}

func (nonInteractiveApprovalHook) Decide(ctx context.Context, req safety.ApprovalRequest) bool {
	return false
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Command neurocore runs the cognitive decision engine against a
// working directory, driving it toward a stated goal through the
// rule engine, meta-cognitive monitor, ACT-R resolver, and
// evolutionary solver described in spec.md §4.
//
// Usage:
//
//	neurocore solve "fix the failing build in ./internal/parser"
//	neurocore config show
//	neurocore config init
package main

import (
	"context"
	"log"
)

func main() {
	ctx := context.Background()
	shutdown, err := initTracing(ctx)
	if err != nil {
		log.Fatalf("neurocore: %v", err)
	}
	defer shutdown(ctx)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("neurocore: %v", err)
	}
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package metrics registers the Prometheus counters named in
// SPEC_FULL.md §2's observability component: decision cycles, state
// transitions, and stored chunks. Collectors register themselves with
// the default registry on import, the way services/trace's routing
// package does, so the CLI only needs to expose promhttp.Handler to
// make them scrapable.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal counts every decision-cycle iteration Agent.Solve runs,
	// across every goal it has been given.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "neurocore",
		Subsystem: "agent",
		Name:      "cycles_total",
		Help:      "Total decision cycles executed by the cognitive agent.",
	})

	// TransitionsTotal counts recorded state transitions, labeled by
	// whether the underlying operator execution succeeded.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neurocore",
		Subsystem: "agent",
		Name:      "transitions_total",
		Help:      "Total state transitions recorded, labeled by outcome.",
	}, []string{"success"})

	// ChunksStoredTotal counts every chunk upsert, successful or not.
	ChunksStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "neurocore",
		Subsystem: "memory",
		Name:      "chunks_stored_total",
		Help:      "Total chunks written to operational memory.",
	})
)

// RecordCycle increments the cycle counter. Called once per iteration
// of Agent.Solve's decision loop.
func RecordCycle() {
	CyclesTotal.Inc()
}

// RecordTransition increments the transition counter for the given
// outcome.
func RecordTransition(success bool) {
	label := "false"
	if success {
		label = "true"
	}
	TransitionsTotal.WithLabelValues(label).Inc()
}

// RecordChunkStored increments the chunk-store counter.
func RecordChunkStored() {
	ChunksStoredTotal.Inc()
}

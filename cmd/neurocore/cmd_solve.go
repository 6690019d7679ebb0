// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/latticeforge/neurocore/internal/config"
	"github.com/latticeforge/neurocore/internal/engine/actr"
	"github.com/latticeforge/neurocore/internal/engine/agent"
	"github.com/latticeforge/neurocore/internal/engine/evaluator"
	"github.com/latticeforge/neurocore/internal/engine/evolve"
	"github.com/latticeforge/neurocore/internal/engine/memory"
	"github.com/latticeforge/neurocore/internal/engine/metacog"
	"github.com/latticeforge/neurocore/internal/engine/rules"
	"github.com/latticeforge/neurocore/internal/engine/safety"
	"github.com/latticeforge/neurocore/internal/engine/state"
	"github.com/latticeforge/neurocore/internal/llm"
	"github.com/latticeforge/neurocore/internal/vectorstore"
)

var solveWorkdir string

// solveCmd drives the decision engine against a goal, starting from
// solveWorkdir (the current directory by default).
var solveCmd = &cobra.Command{
	Use:   "solve <goal description>",
	Short: "Run the decision engine against a goal",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&solveWorkdir, "workdir", ".", "working directory the agent explores")
}

func runSolve(cmd *cobra.Command, args []string) error {
	goalText := args[0]

	backend, err := buildBackend(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build llm backend: %w", err)
	}
	client := llm.NewClient(backend,
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		llm.WithSchemaStrict(cfg.LLM.SchemaStrict),
	)

	collection, err := buildChunkCollection(cfg.VectorDB)
	if err != nil {
		return fmt.Errorf("build vectorstore collection: %w", err)
	}
	chunks := memory.NewChunkStore(collection)
	opMemory := memory.NewOperationalMemory(vectorstore.NewCollection("goal_stack", nil))

	engine := rules.NewEngine()
	rules.RegisterDefaults(engine)

	actrCfg := actr.Config{
		GoalValue:         cfg.ACTR.GoalValue,
		NoiseStddev:       cfg.ACTR.NoiseStddev,
		PenaltyMultiplier: cfg.Cognitive.HistoryPenaltyMultiplier,
	}
	resolver := actr.New(client, actrCfg, nil)

	eval := evaluator.New("go", os.TempDir())
	solver := evolve.New(client, eval)

	safetyCfg := safety.Config{
		DryRun:              cfg.Safety.DryRun,
		ApprovalGateEnabled: cfg.Safety.DestructiveRequiresApproval,
		AutoApproveSafe:     cfg.Safety.AutoApproveSafe,
		UtilityThreshold:    cfg.Safety.UtilityThreshold,
	}
	guard := safety.New(safetyCfg, buildApprovalHook())

	a := agent.New(agent.Config{
		MaxCycles:     cfg.Cognitive.MaxCycles,
		LoopWindow:    cfg.Cognitive.LoopWindow,
		Metacog:       metacog.Config{DepthThreshold: cfg.Cognitive.DepthThreshold, TimeThresholdMs: cfg.Cognitive.TimeThresholdMs},
		ACTR:          actrCfg,
		EvolveGens:    cfg.Evolution.MaxGenerations,
		EvolvePop:     cfg.Evolution.PopulationSize,
		EvolveEnabled: cfg.Evolution.Enabled,
		Safety:        safetyCfg,
	}, engine, resolver, solver, chunks, opMemory, guard, nil, logger.Slog())

	initial := state.New(solveWorkdir)
	ok, final := a.Solve(context.Background(), goalText, initial, verbosity)

	logger.Info("solve finished", "success", ok, "working_dir", final.WorkingDir, "decisions", guard.Counters().Snapshot())

	if !ok {
		return fmt.Errorf("goal not reached within %d cycles", cfg.Cognitive.MaxCycles)
	}
	fmt.Println("goal reached")
	return nil
}

func buildApprovalHook() safety.ApprovalHook {
	if nonInteractive {
		return nonInteractiveApprovalHook{}
	}
	return newStdinApprovalHook(os.Stdin, os.Stdout)
}

// buildBackend selects the llm.Backend named by cfg.Backend
// (SPEC_FULL.md §6's llm_backend option). The OpenAI backend reads
// its API key from OPENAI_API_KEY rather than the config file so the
// key is never written to disk alongside the rest of the settings.
func buildBackend(cfg config.LLMConfig) (llm.Backend, error) {
	switch cfg.Backend {
	case "ollama":
		return llm.NewOllamaBackend(cfg.Host, cfg.Model), nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return llm.NewOpenAIBackend(apiKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

// buildChunkCollection wires the resilient Weaviate client when
// cfg.Host is set, falling back to the in-memory-only collection
// otherwise (SPEC_FULL.md §4.9a).
func buildChunkCollection(cfg config.VectorDBConfig) (*vectorstore.Collection, error) {
	if cfg.Host == "" {
		return vectorstore.NewCollection("chunks", nil).WithDataDir(cfg.DataDir), nil
	}
	client, err := vectorstore.NewResilientClient(vectorstore.DefaultClientConfig(cfg.Host))
	if err != nil {
		return nil, err
	}
	return vectorstore.NewCollection("chunks", client).WithDataDir(cfg.DataDir), nil
}

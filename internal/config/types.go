// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package config

// Config is the single immutable record loaded at startup (spec.md §6,
// SPEC_FULL.md §6). Every field recognized by a component lives here;
// components never read environment variables or flags directly.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	ACTR          ACTRConfig          `yaml:"actr"`
	Cognitive     CognitiveConfig     `yaml:"cognitive"`
	Evolution     EvolutionConfig     `yaml:"evolution"`
	VectorDB      VectorDBConfig      `yaml:"vectorstore"`
	Safety        SafetyConfig        `yaml:"safety"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type LLMConfig struct {
	// Backend selects the transport: "ollama" or "openai".
	Backend     string  `yaml:"backend" validate:"oneof=ollama openai"`
	Model       string  `yaml:"model" validate:"required"`
	Host        string  `yaml:"host" validate:"required,url"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxRetries  int     `yaml:"max_retries" validate:"gte=0,lte=10"`
	// TimeoutSeconds is the per-attempt deadline.
	TimeoutSeconds int  `yaml:"timeout_seconds" validate:"gte=1,lte=120"`
	SchemaStrict   bool `yaml:"schema_strict"`
}

type ACTRConfig struct {
	GoalValue   float64 `yaml:"goal_value" validate:"gt=0"`
	NoiseStddev float64 `yaml:"noise_stddev" validate:"gte=0"`
}

type CognitiveConfig struct {
	DepthThreshold           int     `yaml:"depth_threshold" validate:"gt=0"`
	TimeThresholdMs          int64   `yaml:"time_threshold_ms" validate:"gt=0"`
	MaxCycles                int     `yaml:"max_cycles" validate:"gt=0"`
	HistoryPenaltyMultiplier float64 `yaml:"history_penalty_multiplier" validate:"gte=0"`
	LoopWindow               int     `yaml:"loop_window" validate:"gt=0"`
}

type EvolutionConfig struct {
	Enabled        bool `yaml:"enabled"`
	PopulationSize int  `yaml:"population_size"`
	MaxGenerations int  `yaml:"max_generations"`
}

// Clamp enforces the [2,10] and [1,10] bounds from spec.md §6
// irrespective of what the YAML file contained.
func (e *EvolutionConfig) Clamp() {
	e.PopulationSize = clampInt(e.PopulationSize, 2, 10)
	e.MaxGenerations = clampInt(e.MaxGenerations, 1, 10)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type VectorDBConfig struct {
	Host    string `yaml:"host"`
	DataDir string `yaml:"data_dir"`
}

type SafetyConfig struct {
	DryRun                      bool    `yaml:"dry_run"`
	DestructiveRequiresApproval bool    `yaml:"destructive_requires_approval"`
	UtilityThreshold            float64 `yaml:"utility_threshold"`
	AutoApproveSafe             bool    `yaml:"auto_approve_safe"`
}

type ObservabilityConfig struct {
	Enabled  bool   `yaml:"enabled"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogDir   string `yaml:"log_dir"`
}

// Default returns the out-of-the-box configuration. It mirrors the
// defaults named throughout spec.md §4 and §6.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Backend:        "ollama",
			Model:          "qwen2.5-coder",
			Host:           "http://localhost:11434",
			Temperature:    0.2,
			MaxRetries:     2,
			TimeoutSeconds: 5,
		},
		ACTR: ACTRConfig{
			GoalValue:   10,
			NoiseStddev: 0.5,
		},
		Cognitive: CognitiveConfig{
			DepthThreshold:           3,
			TimeThresholdMs:          500,
			MaxCycles:                50,
			HistoryPenaltyMultiplier: 2,
			LoopWindow:               3,
		},
		Evolution: EvolutionConfig{
			Enabled:        true,
			PopulationSize: 4,
			MaxGenerations: 5,
		},
		VectorDB: VectorDBConfig{
			Host:    "",
			DataDir: "",
		},
		Safety: SafetyConfig{
			DryRun:                      false,
			DestructiveRequiresApproval: true,
			UtilityThreshold:            3.0,
			AutoApproveSafe:             true,
		},
		Observability: ObservabilityConfig{
			Enabled:  true,
			LogLevel: "info",
		},
	}
}

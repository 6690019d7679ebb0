// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

package main

import (
	"github.com/spf13/cobra"

	"github.com/latticeforge/neurocore/internal/config"
	"github.com/latticeforge/neurocore/internal/logging"
)

// --- Global Command Variables ---
var (
	configPath     string
	nonInteractive bool
	verbosity      int

	logger *logging.Logger
	cfg    config.Config

	rootCmd = &cobra.Command{
		Use:   "neurocore",
		Short: "A cognitive decision engine for autonomous code editing",
		Long: `neurocore drives an autonomous agent toward a stated goal using a
rule engine, a meta-cognitive monitor, an ACT-R resolver, and an
evolutionary solver, falling back on each other as impasses demand.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			cfg = loaded
			logger = newLogger(cfg)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to ~/.neurocore/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "auto-deny every approval prompt instead of blocking on stdin")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "decision-cycle log detail (0-2)")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	if err := config.Load(); err != nil {
		return config.Config{}, err
	}
	return config.Global, nil
}

func newLogger(cfg config.Config) *logging.Logger {
	level := logging.LevelInfo
	switch cfg.Observability.LogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(logging.Config{
		Level:   level,
		Service: "neurocore",
		LogDir:  cfg.Observability.LogDir,
		Quiet:   !cfg.Observability.Enabled,
	})
}

// Copyright (C) 2025 The Neurocore Authors
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE.txt for details.

// Package config loads the engine's single immutable configuration
// record from ~/.neurocore/config.yaml, creating a default file on
// first run. Config loading and persistence are collaborators the
// core decision engine depends on but never mutates (spec.md §1).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Global is the process-wide singleton, set once by Load.
	//
	// Components should prefer having Config injected through their
	// constructor (spec.md §9 design notes) — Global exists only for
	// the CLI entrypoint's convenience.
	Global Config
	once   sync.Once
	loadErr error
)

// Load reads (or creates) the config file and populates Global.
// Safe to call multiple times; only the first call touches disk.
func Load() error {
	once.Do(func() {
		loadErr = loadInternal()
	})
	return loadErr
}

// LoadFrom reads a config from an explicit path without touching the
// Global singleton, for tests and the `config show` CLI subcommand.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	cfg.Evolution.Clamp()
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadInternal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	path := filepath.Join(home, ".neurocore", "config.yaml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return err
		}
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		return err
	}
	Global = cfg
	return nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

var validatorInstance = validator.New()

func validate(cfg *Config) error {
	if err := validatorInstance.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

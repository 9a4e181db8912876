// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads eyemat YAML configuration files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is an eyemat.yaml file. Every value is optional and acts as a
// default for the matching replay flag; flags always win.
type Config struct {
	Recording         string       `yaml:"recording"`
	ExperimentVersion int          `yaml:"experiment_version"`
	FadeOut           *int         `yaml:"fade_out,omitempty"`
	Output            OutputConfig `yaml:"output"`
	Store             StoreConfig  `yaml:"store"`
	Log               LogConfig    `yaml:"log"`
}

// OutputConfig controls where raycast lines are written.
type OutputConfig struct {
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter"`
}

// StoreConfig locates the sqlite event store. Events are not stored when
// Path is empty.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file, expands environment variables, and
// unmarshals it into a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	if cfg.FadeOut != nil && *cfg.FadeOut < 0 {
		return nil, fmt.Errorf("invalid fade_out %d in %s: must not be negative", *cfg.FadeOut, path)
	}

	return &cfg, nil
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config implements the analyzer options and logging utilities. Options are loaded from a
// yaml file; any option left unset in the file keeps its default.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the options of an analysis run.
// To add elements to a config file, add fields to this struct.
// Private fields are not populated from a yaml file, but computed after initialization.
type Config struct {
	// LogLevel controls the verbosity of the tool.
	LogLevel int `yaml:"log-level"`

	// MaxRoutines is the number of goroutines used for the per-function analysis phases. If
	// MaxRoutines <= 0, one routine per available CPU is used.
	MaxRoutines int `yaml:"max-routines"`

	// RecursionDepthBound bounds the work spent resolving recursive call-graph cycles during shape
	// classification. Cycles past the bound resolve conservatively as non-constant-time-shaped.
	RecursionDepthBound int `yaml:"recursion-depth-bound"`

	// MaxAlarms sets a limit for the number of findings reported by a run. If MaxAlarms > 0, then
	// at most MaxAlarms findings will be reported. Otherwise, it is ignored.
	MaxAlarms int `yaml:"max-alarms"`

	// SilenceWarn suppresses warnings.
	SilenceWarn bool `yaml:"silence-warn"`

	// NonConstantTimeFuncs lists function names the user declares non-constant-time-shaped
	// regardless of what classification would conclude. Useful for externally linked routines the
	// front end cannot expand.
	NonConstantTimeFuncs []string `yaml:"non-constant-time-funcs"`

	// SeverityOverrides maps a rule id (e.g. "R2") to "high" or "critical", overriding the rule's
	// default severity in reported findings.
	SeverityOverrides map[string]string `yaml:"severity-overrides"`

	sourceFile string
}

// NewDefault returns a config with all options at their default values.
func NewDefault() *Config {
	return &Config{
		LogLevel:            int(InfoLevel),
		MaxRoutines:         0,
		RecursionDepthBound: DefaultRecursionDepthBound,
		MaxAlarms:           0,
		SilenceWarn:         false,
	}
}

// Load reads a configuration from a yaml file.
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	cfg, err := LoadFromBytes(b)
	if err != nil {
		return nil, err
	}
	cfg.sourceFile = filename
	return cfg, nil
}

// LoadFromBytes reads a configuration from raw yaml bytes.
func LoadFromBytes(b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	// If LogLevel has not been specified (i.e. it is 0) set the default to Info.
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	if cfg.RecursionDepthBound <= 0 {
		cfg.RecursionDepthBound = DefaultRecursionDepthBound
	}

	for rule, sev := range cfg.SeverityOverrides {
		if sev != "high" && sev != "critical" {
			return nil, fmt.Errorf("invalid severity override %q for rule %s: must be \"high\" or \"critical\"", sev, rule)
		}
	}

	return cfg, nil
}

// SourceFile returns the file the config was loaded from, or "" if it was not loaded from a file.
func (c *Config) SourceFile() string {
	return c.sourceFile
}

// IsDeclaredNonConstantTime reports whether the user declared name non-constant-time-shaped in the
// config.
func (c *Config) IsDeclaredNonConstantTime(name string) bool {
	for _, f := range c.NonConstantTimeFuncs {
		if f == name {
			return true
		}
	}
	return false
}

// SeverityOverride returns the configured severity override for the rule id, or "" when the rule
// keeps its default severity.
func (c *Config) SeverityOverride(rule string) string {
	return c.SeverityOverrides[rule]
}

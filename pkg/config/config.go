// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the YAML description of which graphs to compile,
// their per-node retry policies, checkpoint/store backend selection,
// compression thresholds, and approval tool-name sets.
//
// Grounded on the teacher's pkg/config/loader.go five-step pipeline (read
// bytes -> parse -> expand env vars -> decode -> validate) and
// config/env.go's ${VAR:-default}/${VAR}/$VAR expansion, narrowed from the
// teacher's full agent/workflow/LLM-provider configuration surface to the
// fields SPEC_FULL's components actually read.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Topology selects which agent-topology package compiles a GraphConfig.
type Topology string

const (
	TopologyReactive     Topology = "reactive"
	TopologyDeliberative Topology = "deliberative"
	TopologyTreeOfThought Topology = "tree_of_thought"
	TopologyGraphOfThought Topology = "graph_of_thought"
)

// RetryConfig configures a node's RetryPolicy (spec.md §4.5).
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS int    `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMS  int    `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Strategy    string `yaml:"strategy" mapstructure:"strategy"` // "fixed" | "exponential" | "none"
}

// CompressionConfig configures the compress sub-graph (spec.md §4.9).
type CompressionConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	MaxMessages  int    `yaml:"max_messages" mapstructure:"max_messages"`
	KeepLast     int    `yaml:"keep_last" mapstructure:"keep_last"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Encoding     string `yaml:"encoding" mapstructure:"encoding"`
	SummarizerID string `yaml:"summarizer" mapstructure:"summarizer"` // key into Config.LLMClients, resolved by the host
}

// LoopConfig configures the react Observe loop policy (spec.md §4.8).
type LoopConfig struct {
	MaxTurns         int  `yaml:"max_turns" mapstructure:"max_turns"`
	EnableReflection bool `yaml:"enable_reflection" mapstructure:"enable_reflection"`
}

// ApprovalConfig names tools that require human approval before execution
// (spec.md §4.7 step 2).
type ApprovalConfig struct {
	RequireApprovalFor []string `yaml:"require_approval_for" mapstructure:"require_approval_for"`
}

// ErrorConfig selects the Act node's on-tool-error behavior (spec.md §4.7).
type ErrorConfig struct {
	Kind     string `yaml:"kind" mapstructure:"kind"` // "never" | "always" | "custom"
	Template string `yaml:"template" mapstructure:"template"`
}

// GraphConfig describes one compiled graph: its topology and the policies
// threaded into its nodes.
type GraphConfig struct {
	Topology    Topology               `yaml:"topology" mapstructure:"topology"`
	LLMClientID string                 `yaml:"llm_client" mapstructure:"llm_client"`
	ToolSourceID string                `yaml:"tool_source" mapstructure:"tool_source"`
	Retries     map[string]RetryConfig `yaml:"retries" mapstructure:"retries"`
	Compression CompressionConfig      `yaml:"compression" mapstructure:"compression"`
	Loop        LoopConfig             `yaml:"loop" mapstructure:"loop"`
	Approval    ApprovalConfig         `yaml:"approval" mapstructure:"approval"`
	OnToolError ErrorConfig            `yaml:"on_tool_error" mapstructure:"on_tool_error"`
	Adaptive    bool                   `yaml:"adaptive" mapstructure:"adaptive"` // got topology only
}

// CheckpointConfig selects the checkpoint backend (C2).
type CheckpointConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // "memory" | "sql" (host-provided)
}

// StoreConfig selects the long-term store backend (C3).
type StoreConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // "memory" | "chromem"
}

// ObservabilityConfig toggles tracing/metrics wiring.
type ObservabilityConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
	MetricsAddr    string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// LoggingConfig configures pkg/logger's slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "text" | "json"
}

// Config is the top-level, single entry point for wiring a loomstate run.
type Config struct {
	Name        string                 `yaml:"name" mapstructure:"name"`
	Graphs      map[string]GraphConfig `yaml:"graphs" mapstructure:"graphs"`
	Checkpoint  CheckpointConfig       `yaml:"checkpoint" mapstructure:"checkpoint"`
	Store       StoreConfig            `yaml:"store" mapstructure:"store"`
	Observability ObservabilityConfig  `yaml:"observability" mapstructure:"observability"`
	Logging     LoggingConfig          `yaml:"logging" mapstructure:"logging"`
}

// SetDefaults fills in zero-value fields with the engine's defaults.
func (c *Config) SetDefaults() {
	if c.Graphs == nil {
		c.Graphs = make(map[string]GraphConfig)
	}
	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = "memory"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for name, g := range c.Graphs {
		if g.Loop.MaxTurns == 0 {
			g.Loop.MaxTurns = 10
		}
		if g.Retries == nil {
			g.Retries = make(map[string]RetryConfig)
		}
		if g.OnToolError.Kind == "" {
			g.OnToolError.Kind = "always"
		}
		c.Graphs[name] = g
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	for name, g := range c.Graphs {
		switch g.Topology {
		case TopologyReactive, TopologyDeliberative, TopologyTreeOfThought, TopologyGraphOfThought:
		default:
			return fmt.Errorf("graph %q: unknown topology %q", name, g.Topology)
		}
		if g.LLMClientID == "" {
			return fmt.Errorf("graph %q: llm_client is required", name)
		}
		for node, r := range g.Retries {
			if r.MaxAttempts < 0 {
				return fmt.Errorf("graph %q node %q: max_attempts must be >= 0", name, node)
			}
		}
	}
	switch c.Checkpoint.Backend {
	case "memory", "":
	default:
		// Non-memory backends are host-provided; accept any non-empty name.
	}
	return nil
}

// Load reads filePath, expands environment variables, decodes into a
// Config, applies defaults, and validates.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filePath, err)
	}
	return LoadBytes(data)
}

// LoadBytes is Load without a filesystem read, for embedded or
// test-provided YAML.
func LoadBytes(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	expanded, ok := ExpandEnvVarsInData(raw).(map[string]any)
	if !ok {
		expanded = raw
	}

	cfg := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := dec.Decode(expanded); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

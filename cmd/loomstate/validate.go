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

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loomstate/loomstate/pkg/config"
)

// ValidateCmd validates a configuration file: YAML syntax, env expansion,
// decoding into config.Config, and config.Config.Validate's consistency
// checks (unknown topology, missing llm_client, negative retry counts).
type ValidateCmd struct {
	Config      string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration with defaults applied."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	_ = config.LoadEnvFiles()

	cfg, err := config.Load(c.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return err
	}

	fmt.Printf("%s: valid (%d graph(s))\n", c.Config, len(cfg.Graphs))
	for name, g := range cfg.Graphs {
		fmt.Printf("  - %s: topology=%s llm_client=%s\n", name, g.Topology, g.LLMClientID)
	}

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal expanded config: %w", err)
		}
		fmt.Println("---")
		fmt.Print(string(out))
	}
	return nil
}

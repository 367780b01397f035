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
	"strings"

	"github.com/loomstate/loomstate/pkg/config"
	"github.com/loomstate/loomstate/pkg/deliberative"
	"github.com/loomstate/loomstate/pkg/got"
	"github.com/loomstate/loomstate/pkg/react"
	"github.com/loomstate/loomstate/pkg/tot"
)

// RunCmd compiles a named graph from the config file and reports its node
// shape. It never invokes the graph: doing so needs a concrete llm.Client
// and tool.Source, which are host-application concerns this module does
// not provide (spec.md §1). Embed the pkg/graph.Executor in a host program
// to actually run a graph end to end.
type RunCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." placeholder:"PATH"`
	Graph  string `help:"Graph name to compile (default: all graphs in the config)."`
}

func (c *RunCmd) Run(cli *CLI) error {
	_ = config.LoadEnvFiles()

	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	names := []string{c.Graph}
	if c.Graph == "" {
		names = names[:0]
		for name := range cfg.Graphs {
			names = append(names, name)
		}
	}

	for _, name := range names {
		g, ok := cfg.Graphs[name]
		if !ok {
			return fmt.Errorf("graph %q not found in %s", name, c.Config)
		}
		nodeIDs, entry, err := compileShape(g)
		if err != nil {
			return fmt.Errorf("compile graph %q: %w", name, err)
		}
		fmt.Printf("%s (%s): entry=%s nodes=[%s]\n", name, g.Topology, entry, strings.Join(nodeIDs, ", "))
	}
	return nil
}

// compileShape compiles the given topology with zero-value collaborators,
// sufficient to validate node/edge wiring without ever running a node.
func compileShape(g config.GraphConfig) ([]string, string, error) {
	loop := react.LoopPolicy{MaxTurns: g.Loop.MaxTurns}

	switch g.Topology {
	case config.TopologyReactive:
		compiled, err := react.Build(react.Config{Loop: loop})
		if err != nil {
			return nil, "", err
		}
		return compiled.NodeIDs(), compiled.Entry(), nil

	case config.TopologyDeliberative:
		compiled, err := deliberative.Build(nil, react.Config{Loop: loop})
		if err != nil {
			return nil, "", err
		}
		return compiled.NodeIDs(), compiled.Entry(), nil

	case config.TopologyTreeOfThought:
		compiled, err := tot.Build(nil, nil, nil, react.ApprovalPolicy{}, react.ErrorPolicy{}, loop)
		if err != nil {
			return nil, "", err
		}
		return compiled.NodeIDs(), compiled.Entry(), nil

	case config.TopologyGraphOfThought:
		compiled, err := got.Build(nil, nil, nil, nil)
		if err != nil {
			return nil, "", err
		}
		return compiled.NodeIDs(), compiled.Entry(), nil

	default:
		return nil, "", fmt.Errorf("unknown topology %q", g.Topology)
	}
}

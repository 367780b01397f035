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

package react

import (
	"github.com/loomstate/loomstate/pkg/compress"
	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
	"github.com/loomstate/loomstate/pkg/tool"
)

// Config wires up the canonical Think/Act/Observe/Compress loop (C14,
// spec.md §2 C14). Compress is optional; when nil the loop routes
// Observe straight back to Think.
type Config struct {
	Client         llm.Client
	Tools          tool.Source
	ToolSpecs      []llm.ToolSpec
	Approval       ApprovalPolicy
	OnError        ErrorPolicy
	Loop           LoopPolicy
	Compress       *compress.Config
	RetryOnThink   graph.RetryPolicy
}

// Build compiles the reactive agent graph: think -> act -> observe, with
// observe looping back through an optional compression sub-graph.
func Build(cfg Config) (*graph.Graph[State], error) {
	b := graph.NewBuilder[State]()

	think := Think(cfg.Client, cfg.ToolSpecs)
	act := Act(cfg.Tools, cfg.Approval, cfg.OnError)

	observeNext := ThinkNodeID
	b.AddNode(think).AddNode(act)

	if cfg.Compress != nil {
		prune, compact := compress.Nodes(*cfg.Compress)
		b.AddNode(asStateNode(prune)).AddNode(asStateNode(compact))
		b.AddEdge(compress.PruneNodeID, compress.CompactNodeID)
		b.AddEdge(compress.CompactNodeID, ThinkNodeID)
		observeNext = compress.PruneNodeID
	}

	observe := Observe(cfg.Loop, observeNext)
	b.AddNode(observe)

	b.SetEntry(ThinkNodeID)
	b.AddConditionalEdge(ThinkNodeID, func(s State) string {
		if len(s.ToolCalls) > 0 {
			return "act"
		}
		return "end"
	}, map[string]string{"act": ActNodeID, "end": graph.End_})
	b.AddEdge(ActNodeID, ObserveNodeID)

	if cfg.RetryOnThink != nil {
		b.SetRetryPolicy(ThinkNodeID, cfg.RetryOnThink)
	}

	return b.Compile()
}

// asStateNode adapts a graph.Node[compress.State] to graph.Node[State] by
// threading react.State's message slice through compress's narrower view.
// This keeps the compression sub-graph reusable across topologies (react,
// deliberative) that each carry a different outer state shape but the same
// message-history field.
func asStateNode(n graph.Node[compress.State]) graph.Node[State] {
	return graph.NewNodeFunc(n.ID(), func(rc *graph.RunContext, s State) (State, graph.Next, error) {
		inner := compress.State{Messages: s.Messages, MessageCountAfterLastThink: s.MessageCountAfterLastThink}
		outInner, next, err := n.Run(rc, inner)
		if err != nil {
			return s, next, err
		}
		out := s
		out.Messages = outInner.Messages
		return out, next, nil
	})
}

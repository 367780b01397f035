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
	"fmt"

	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
)

// ObserveNodeID is the conventional node id for an Observe node.
const ObserveNodeID = "observe"

// DefaultMaxTurns is the turn cap used when LoopPolicy.MaxTurns is zero
// (spec.md §4.8: "default 10").
const DefaultMaxTurns = 10

// LoopPolicy controls whether Observe continues the react loop or ends the
// run (spec.md §4.8).
type LoopPolicy struct {
	// MaxTurns caps turn_count; zero uses DefaultMaxTurns.
	MaxTurns int

	// Reflection enables the opt-in self-critique hook; nil skips it
	// entirely, leaving spec.md §4.8's Observe contract unchanged.
	Reflection *ReflectionPolicy
}

func (p LoopPolicy) maxTurns() int {
	if p.MaxTurns <= 0 {
		return DefaultMaxTurns
	}
	return p.MaxTurns
}

// Observe builds a graph.Node that folds state.ToolResults into
// state.Messages and decides whether to loop back to Think or end (C12,
// spec.md §4.8). next names the node to continue to (typically a
// compression sub-graph entry, falling back to Think).
func Observe(policy LoopPolicy, next string) graph.Node[State] {
	return graph.NewNodeFunc(ObserveNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		out := state.Clone()

		hadToolCalls := len(state.ToolCalls) > 0

		for _, r := range state.ToolResults {
			label := r.Name
			if label == "" {
				label = r.CallID
			}
			if label == "" {
				label = "tool"
			}
			out.Messages = append(out.Messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("Tool %s returned: %s", label, r.Content),
			})
		}
		out.ToolCalls = nil
		out.ToolResults = nil

		if policy.Reflection != nil && hadToolCalls {
			analysis, err := analyzeToolResults(policy.Reflection.Analyzer, state.ToolResults)
			if err != nil {
				return out, graph.Next{}, graph.NewExecutionError(ObserveNodeID, "reflection analysis failed", err)
			}
			out.LastReflection = analysis
			rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ObserveNodeID, Data: analysis})
		}

		if out.TurnCount >= policy.maxTurns() {
			return out, graph.End(), nil
		}
		if !hadToolCalls {
			return out, graph.End(), nil
		}

		out.TurnCount++
		if next == "" {
			next = ThinkNodeID
		}
		return out, graph.GoTo(next), nil
	})
}

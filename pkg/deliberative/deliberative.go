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

// Package deliberative implements the deliberative agent topology: a
// react.State loop preceded by an explicit Understand phase that extracts
// the goal and sub-goals before any tool call is attempted.
//
// This supplements spec.md's three named topologies with a fourth the
// distillation dropped: the teacher's pkg/reasoning/thinking.go goal-
// extraction display and pkg/reasoning/reflection.go meta-cognitive pass
// show a deliberate "understand before acting" phase that the bare
// reactive loop doesn't capture. Grounded on those two files, generalized
// from chat-log display strings into a graph.Node[State] stage.
package deliberative

import (
	"encoding/json"
	"strings"

	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
	"github.com/loomstate/loomstate/pkg/react"
)

// UnderstandNodeID is the conventional node id for the Understand node.
const UnderstandNodeID = "understand"

// Understanding is the structured record Understand writes before the
// react loop begins.
type Understanding struct {
	Goal     string   `json:"goal"`
	SubGoals []string `json:"sub_goals,omitempty"`
}

// State wraps react.State with the Understanding record produced once, up
// front, by the Understand node.
type State struct {
	react.State
	Understanding *Understanding
}

func (s State) Clone() State {
	out := State{State: s.State.Clone()}
	if s.Understanding != nil {
		u := *s.Understanding
		u.SubGoals = append([]string(nil), s.Understanding.SubGoals...)
		out.Understanding = &u
	}
	return out
}

const understandPrompt = `Before acting, state the user's goal and, if useful, break it into sub-goals.
Respond as JSON: {"goal": "...", "sub_goals": ["...", "..."]}. If there are no sub-goals, omit the field.`

// Understand builds a node that asks client to restate the goal implied by
// state.Messages, recording it on state.Understanding without appending
// any message to the conversation. The lifted react nodes receive only the
// embedded react.State, so Think does not see Understanding.
func Understand(client llm.Client) graph.Node[State] {
	return graph.NewNodeFunc(UnderstandNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		out := state.Clone()

		req := append(append([]llm.Message(nil), state.Messages...), llm.Message{
			Role: llm.RoleUser, Content: understandPrompt,
		})
		resp, err := client.Invoke(req, nil)
		if err != nil {
			return out, graph.Next{}, graph.NewExecutionError(UnderstandNodeID, "goal extraction failed", err)
		}

		u := parseUnderstanding(resp.Content)
		out.Understanding = &u
		rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: UnderstandNodeID, Data: u})
		return out, graph.Continue(), nil
	})
}

func parseUnderstanding(content string) Understanding {
	var u Understanding
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &u); err == nil && u.Goal != "" {
			return u
		}
	}
	return Understanding{Goal: trimmed}
}

// liftReact adapts a graph.Node[react.State] to operate on the embedded
// react.State inside State, leaving Understanding untouched.
func liftReact(n graph.Node[react.State]) graph.Node[State] {
	return graph.NewNodeFunc(n.ID(), func(rc *graph.RunContext, s State) (State, graph.Next, error) {
		innerOut, next, err := n.Run(rc, s.State)
		if err != nil {
			return s, next, err
		}
		out := s
		out.State = innerOut
		return out, next, nil
	})
}

// Build compiles understand -> think -> act -> observe, reusing react's
// node constructors and lifting them onto the wider State.
func Build(understandClient llm.Client, reactCfg react.Config) (*graph.Graph[State], error) {
	b := graph.NewBuilder[State]()
	b.AddNode(Understand(understandClient))
	b.AddNode(liftReact(react.Think(reactCfg.Client, reactCfg.ToolSpecs)))
	b.AddNode(liftReact(react.Act(reactCfg.Tools, reactCfg.Approval, reactCfg.OnError)))
	b.AddNode(liftReact(react.Observe(reactCfg.Loop, "")))

	b.SetEntry(UnderstandNodeID)
	b.AddEdge(UnderstandNodeID, react.ThinkNodeID)
	b.AddConditionalEdge(react.ThinkNodeID, func(s State) string {
		if len(s.ToolCalls) > 0 {
			return "act"
		}
		return "end"
	}, map[string]string{"act": react.ActNodeID, "end": graph.End_})
	b.AddEdge(react.ActNodeID, react.ObserveNodeID)

	if reactCfg.RetryOnThink != nil {
		b.SetRetryPolicy(react.ThinkNodeID, reactCfg.RetryOnThink)
	}

	return b.Compile()
}

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

// Package tot implements the tree-of-thoughts agent topology (C15):
// ThinkExpand generates candidate thoughts, ThinkEvaluate scores and picks
// one, Act/Observe execute it, and a backtrack policy retries sibling
// candidates or unwinds a level when a chosen path fails.
//
// Grounded on the teacher's pkg/reasoning/supervisor_strategy.go
// multi-candidate delegation planning and pkg/reasoning/reflection.go
// failure-triggered re-evaluation, generalized into an explicit
// expand/evaluate/backtrack state machine.
package tot

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
	"github.com/loomstate/loomstate/pkg/react"
	"github.com/loomstate/loomstate/pkg/tool"
)

const (
	ThinkExpandNodeID   = "think_expand"
	ThinkEvaluateNodeID = "think_evaluate"
	ActNodeID           = react.ActNodeID
	ObserveNodeID       = react.ObserveNodeID
)

// Candidate is one proposed branch at the current depth.
type Candidate struct {
	Thought   string
	ToolCalls []llm.ToolCall
	Score     float64
}

// State is the tree-of-thoughts state threaded through the graph.
type State struct {
	react.State

	Candidates     []Candidate
	ChosenIndex    int
	TriedIndices   map[int]bool
	SuggestBacktrack bool
	BacktrackReason  string
	Depth          int
}

func (s State) Clone() State {
	out := State{State: s.State.Clone(), ChosenIndex: s.ChosenIndex, Depth: s.Depth,
		SuggestBacktrack: s.SuggestBacktrack, BacktrackReason: s.BacktrackReason}
	out.Candidates = append([]Candidate(nil), s.Candidates...)
	out.TriedIndices = make(map[int]bool, len(s.TriedIndices))
	for k, v := range s.TriedIndices {
		out.TriedIndices[k] = v
	}
	return out
}

// ExpandEvent is emitted by ThinkExpand (spec.md §4.10 TotExpand).
type ExpandEvent struct{ Thoughts []string }

// EvaluateEvent is emitted by ThinkEvaluate (spec.md §4.10 TotEvaluate).
type EvaluateEvent struct {
	Chosen int
	Scores []float64
}

// BacktrackEvent is emitted when the run unwinds to a sibling or parent
// candidate (spec.md §4.10 TotBacktrack).
type BacktrackEvent struct {
	Reason  string
	ToDepth int
}

const expandPrompt = `Propose 2 or 3 distinct candidate approaches to the task so far. For each, output:
CANDIDATE i: THOUGHT: <one-sentence plan> | TOOL_CALLS: [{"name": "...", "arguments": {...}}, ...]
Number candidates starting at 1. If a candidate needs no tool call, use an empty list.`

// ThinkExpand asks client for 2-3 candidate thoughts and parses them
// (spec.md §4.10 ThinkExpand).
func ThinkExpand(client llm.Client, tools []llm.ToolSpec) graph.Node[State] {
	return graph.NewNodeFunc(ThinkExpandNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		out := state.Clone()
		out.ChosenIndex = -1
		out.SuggestBacktrack = false
		out.BacktrackReason = ""

		if state.SuggestBacktrack {
			if next, ok := nextUntried(state); ok {
				out.ChosenIndex = next
				out.TriedIndices[next] = true
				return out, graph.GoTo(ThinkEvaluateNodeID), nil
			}
			out.Depth--
			rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ThinkExpandNodeID, Data: BacktrackEvent{Reason: "siblings exhausted", ToDepth: out.Depth}})
		}

		req := append(append([]llm.Message(nil), state.Messages...), llm.Message{Role: llm.RoleUser, Content: expandPrompt})
		resp, err := client.Invoke(req, tools)
		if err != nil {
			return out, graph.Next{}, graph.NewExecutionError(ThinkExpandNodeID, "expand call failed", err)
		}

		candidates := parseCandidates(resp.Content)
		if len(candidates) == 0 && len(resp.ToolCalls) > 0 {
			candidates = []Candidate{{Thought: resp.Content, ToolCalls: resp.ToolCalls}}
		}
		if len(candidates) == 0 {
			candidates = []Candidate{{Thought: resp.Content}}
		}
		out.Candidates = candidates
		out.TriedIndices = map[int]bool{}

		thoughts := make([]string, len(candidates))
		for i, c := range candidates {
			thoughts[i] = c.Thought
		}
		rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ThinkExpandNodeID, Data: ExpandEvent{Thoughts: thoughts}})

		return out, graph.Continue(), nil
	})
}

func nextUntried(state State) (int, bool) {
	for i := range state.Candidates {
		if !state.TriedIndices[i] {
			return i, true
		}
	}
	return 0, false
}

// parseCandidates tries, in order: line-based "CANDIDATE i: ..." format,
// then a {"candidates": [...]} JSON envelope (spec.md §4.10).
func parseCandidates(content string) []Candidate {
	if cs := parseLineCandidates(content); len(cs) > 0 {
		return cs
	}
	if cs := parseJSONCandidates(content); len(cs) > 0 {
		return cs
	}
	return nil
}

func parseLineCandidates(content string) []Candidate {
	var out []Candidate
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToUpper(line), "CANDIDATE") {
			continue
		}
		rest := line[strings.Index(line, ":")+1:]
		parts := strings.SplitN(rest, "|", 2)
		thought := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "THOUGHT:"))
		thought = strings.TrimSpace(thought)
		var calls []llm.ToolCall
		if len(parts) == 2 {
			tcRaw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[1]), "TOOL_CALLS:"))
			var raw []struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			}
			if err := json.Unmarshal([]byte(tcRaw), &raw); err == nil {
				for _, r := range raw {
					args, _ := json.Marshal(r.Arguments)
					calls = append(calls, llm.ToolCall{Name: r.Name, Arguments: string(args)})
				}
			}
		}
		out = append(out, Candidate{Thought: thought, ToolCalls: calls})
	}
	return out
}

func parseJSONCandidates(content string) []Candidate {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil
	}
	var envelope struct {
		Candidates []struct {
			Thought   string `json:"thought"`
			ToolCalls []struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"tool_calls"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &envelope); err != nil {
		return nil
	}
	out := make([]Candidate, 0, len(envelope.Candidates))
	for _, c := range envelope.Candidates {
		var calls []llm.ToolCall
		for _, tc := range c.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			calls = append(calls, llm.ToolCall{Name: tc.Name, Arguments: string(args)})
		}
		out = append(out, Candidate{Thought: c.Thought, ToolCalls: calls})
	}
	return out
}

const evaluatePrompt = `Score each candidate from 0 to 1 on likelihood of making progress, then pick the best.
Respond as JSON: {"scores": [0.0, ...], "chosen": i} using 0-based indices.`

// ThinkEvaluate scores state.Candidates and promotes the chosen one's tool
// calls onto state.ToolCalls (spec.md §4.10 ThinkEvaluate).
func ThinkEvaluate(client llm.Client) graph.Node[State] {
	return graph.NewNodeFunc(ThinkEvaluateNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		out := state.Clone()

		if out.ChosenIndex >= 0 && out.ChosenIndex < len(out.Candidates) {
			// Resuming a backtrack: evaluation already happened for this pick.
			c := out.Candidates[out.ChosenIndex]
			out.ToolCalls = c.ToolCalls
			out.Messages = append(out.Messages, llm.Message{Role: llm.RoleAssistant, Content: c.Thought})
			return out, graph.Continue(), nil
		}

		lines := make([]string, len(state.Candidates))
		for i, c := range state.Candidates {
			lines[i] = strconv.Itoa(i) + ": " + c.Thought
		}
		req := append(append([]llm.Message(nil), state.Messages...), llm.Message{
			Role: llm.RoleUser, Content: evaluatePrompt + "\n" + strings.Join(lines, "\n"),
		})
		resp, err := client.Invoke(req, nil)
		if err != nil {
			return out, graph.Next{}, graph.NewExecutionError(ThinkEvaluateNodeID, "evaluate call failed", err)
		}

		scores, chosen := parseEvaluation(resp.Content, len(state.Candidates))
		for i := range out.Candidates {
			if i < len(scores) {
				out.Candidates[i].Score = scores[i]
			}
		}
		out.ChosenIndex = chosen
		out.TriedIndices[chosen] = true

		c := out.Candidates[chosen]
		out.ToolCalls = c.ToolCalls
		out.Messages = append(out.Messages, llm.Message{Role: llm.RoleAssistant, Content: c.Thought})

		rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ThinkEvaluateNodeID, Data: EvaluateEvent{Chosen: chosen, Scores: scores}})

		if len(c.ToolCalls) == 0 && !out.SuggestBacktrack {
			return out, graph.End(), nil
		}
		return out, graph.Continue(), nil
	})
}

func parseEvaluation(content string, n int) ([]float64, int) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	scores := make([]float64, n)
	chosen := 0
	if start < 0 || end <= start {
		return scores, chosen
	}
	var env struct {
		Scores []float64 `json:"scores"`
		Chosen int       `json:"chosen"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &env); err != nil {
		return scores, chosen
	}
	if len(env.Scores) > 0 {
		scores = env.Scores
	}
	if env.Chosen >= 0 && env.Chosen < n {
		chosen = env.Chosen
	}
	return scores, chosen
}

// Act and Observe are react's, lifted onto the wider State, with Observe
// additionally flagging SuggestBacktrack when any of the chosen path's
// tool results is an error.
func Act(source tool.Source, approval react.ApprovalPolicy, onError react.ErrorPolicy) graph.Node[State] {
	return lift(ActNodeID, react.Act(source, approval, onError))
}

func Observe(policy react.LoopPolicy) graph.Node[State] {
	inner := react.Observe(policy, ThinkExpandNodeID)
	return graph.NewNodeFunc(ObserveNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		failed := false
		for _, r := range state.ToolResults {
			if r.IsError {
				failed = true
				break
			}
		}

		innerOut, next, err := inner.Run(rc, state.State)
		if err != nil {
			return state, next, err
		}
		out := state
		out.State = innerOut
		if failed {
			out.SuggestBacktrack = true
			out.BacktrackReason = "chosen candidate's tool call failed"
			next = graph.GoTo(ThinkExpandNodeID)
		}
		return out, next, nil
	})
}

func lift(id string, n graph.Node[react.State]) graph.Node[State] {
	return graph.NewNodeFunc(id, func(rc *graph.RunContext, s State) (State, graph.Next, error) {
		innerOut, next, err := n.Run(rc, s.State)
		if err != nil {
			return s, next, err
		}
		out := s
		out.State = innerOut
		return out, next, nil
	})
}

// Build compiles think_expand -> think_evaluate -> act -> observe, with
// observe looping back to think_expand (spec.md §4.10).
func Build(client llm.Client, tools []llm.ToolSpec, source tool.Source, approval react.ApprovalPolicy, onError react.ErrorPolicy, loop react.LoopPolicy) (*graph.Graph[State], error) {
	b := graph.NewBuilder[State]()
	b.AddNode(ThinkExpand(client, tools))
	b.AddNode(ThinkEvaluate(client))
	b.AddNode(Act(source, approval, onError))
	b.AddNode(Observe(loop))

	b.SetEntry(ThinkExpandNodeID)
	b.AddEdge(ThinkExpandNodeID, ThinkEvaluateNodeID)
	b.AddEdge(ActNodeID, ObserveNodeID)
	b.AddConditionalEdge(ThinkEvaluateNodeID, func(s State) string {
		if len(s.ToolCalls) > 0 {
			return "act"
		}
		return "end"
	}, map[string]string{"act": ActNodeID, "end": graph.End_})

	return b.Compile()
}

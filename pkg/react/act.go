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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
	"github.com/loomstate/loomstate/pkg/tool"
)

// ActNodeID is the conventional node id for an Act node.
const ActNodeID = "act"

// ApprovalPolicy names the tools that require human approval before
// execution (spec.md §4.7 step 2).
type ApprovalPolicy struct {
	RequiresApproval map[string]bool
}

// NewApprovalPolicy builds a policy requiring approval for the named tools.
func NewApprovalPolicy(names ...string) ApprovalPolicy {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return ApprovalPolicy{RequiresApproval: m}
}

func (p ApprovalPolicy) requires(name string) bool {
	return p.RequiresApproval != nil && p.RequiresApproval[name]
}

// ErrorPolicyKind discriminates Act's failure handling (spec.md §4.7 step 5).
type ErrorPolicyKind int

const (
	// ErrorNever surfaces a tool failure as ExecutionFailed, aborting the run.
	ErrorNever ErrorPolicyKind = iota
	// ErrorAlways converts a tool failure into an error tool result and
	// continues with the next call.
	ErrorAlways
	// ErrorCustom uses Format to render the error tool result's content.
	ErrorCustom
)

// ErrorPolicy governs what happens when a tool call fails.
type ErrorPolicy struct {
	Kind     ErrorPolicyKind
	Template string                                      // used by ErrorAlways when non-empty
	Format   func(name string, args map[string]any, err error) string // used by ErrorCustom
}

func (p ErrorPolicy) message(name string, args map[string]any, err error) string {
	switch p.Kind {
	case ErrorCustom:
		if p.Format != nil {
			return p.Format(name, args, err)
		}
	case ErrorAlways:
		if p.Template != "" {
			return p.Template
		}
	}
	return fmt.Sprintf("tool %q failed with arguments %v: %v", name, args, err)
}

// InterruptPayload is the opaque value carried by an approval interrupt
// (spec.md §4.5, §4.7 step 2).
type InterruptPayload struct {
	Type      string         `json:"type"` // "tool_approval"
	CallID    string         `json:"call_id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// StepProgress is the Custom event emitted after each successful call.
type StepProgress struct {
	Type    string `json:"type"` // "step_progress"
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// Act builds a graph.Node that executes state.ToolCalls in order (C10,
// spec.md §4.7).
func Act(source tool.Source, approval ApprovalPolicy, onError ErrorPolicy) graph.Node[State] {
	return graph.NewNodeFunc(ActNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		out := state.Clone()
		out.ToolResults = nil

		cctx := &tool.CallContext{
			Ctx:            rc.Ctx,
			RecentMessages: lastN(state.Messages, 10),
			ThreadID:       rc.Config.ThreadID,
			UserID:         rc.Config.UserID,
		}
		if rc.WantsMode(graph.StreamCustom) {
			cctx.StreamingWriter = func(chunk string) {
				rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ActNodeID, Data: chunk})
			}
		}
		source.SetCallContext(cctx)

		consumedApproval := false

		for _, call := range state.ToolCalls {
			args, err := parseArguments(call.Arguments)
			if err != nil {
				source.SetCallContext(nil)
				return out, graph.Next{}, graph.NewExecutionError(ActNodeID, "invalid tool arguments", err)
			}

			if approval.requires(call.Name) {
				if state.ApprovalResult == nil {
					rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ActNodeID, Data: InterruptPayload{
						Type: "tool_approval", CallID: call.ID, Name: call.Name, Arguments: args,
					}})
					source.SetCallContext(nil)
					return out, graph.Next{}, &graph.InterruptError{
						NodeID: ActNodeID,
						Payload: InterruptPayload{Type: "tool_approval", CallID: call.ID, Name: call.Name, Arguments: args},
					}
				}
				consumedApproval = true
				if !*state.ApprovalResult {
					out.ToolResults = append(out.ToolResults, llm.ToolResult{
						CallID: call.ID, Name: call.Name, Content: "User rejected.", IsError: true,
					})
					continue
				}
			}

			res, err := source.CallToolWithContext(call.Name, args, cctx)
			if err != nil {
				switch onError.Kind {
				case ErrorNever:
					source.SetCallContext(nil)
					return out, graph.Next{}, graph.NewExecutionError(ActNodeID, "tool call failed", err)
				default:
					msg := onError.message(call.Name, args, err)
					out.ToolResults = append(out.ToolResults, llm.ToolResult{
						CallID: call.ID, Name: call.Name, Content: msg, IsError: true,
					})
					continue
				}
			}

			out.ToolResults = append(out.ToolResults, llm.ToolResult{
				CallID: call.ID, Name: call.Name, Content: res.Text, IsError: false,
			})
			rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ActNodeID, Data: StepProgress{
				Type: "step_progress", CallID: call.ID, Name: call.Name, Summary: truncate(res.Text, 200),
			}})
		}

		source.SetCallContext(nil)
		if consumedApproval {
			out.ApprovalResult = nil
		}
		return out, graph.Continue(), nil
	})
}

// parseArguments decodes a tool call's raw arguments, handling empty input
// and providers that double-encode the JSON object as a string (spec.md
// §4.7 step 1).
func parseArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, fmt.Errorf("parse tool arguments: %w", err)
	}
	if s, ok := v.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, fmt.Errorf("parse double-encoded tool arguments: %w", err)
		}
		v = inner
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tool arguments is not a JSON object")
	}
	return m, nil
}

func lastN(msgs []llm.Message, n int) []llm.Message {
	if len(msgs) <= n {
		return append([]llm.Message(nil), msgs...)
	}
	return append([]llm.Message(nil), msgs[len(msgs)-n:]...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

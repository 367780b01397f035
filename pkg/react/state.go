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

// Package react implements the reactive think/act/observe agent loop
// (C10-C12, C14): Think invokes the model, Act executes pending tool
// calls with approval and error policies, and Observe folds results back
// into history and decides whether to loop or terminate.
//
// Grounded on the teacher's pkg/reasoning/state.go agent-owned/strategy-
// owned field split and pkg/reasoning/supervisor_strategy.go think/act/
// observe wiring, generalized from Hector's single-agent reasoning loop
// to a graph.Node[ReactState] implementation.
package react

import (
	"github.com/loomstate/loomstate/pkg/llm"
)

// State is the state type threaded through the reactive loop's graph.
type State struct {
	Messages    []llm.Message
	ToolCalls   []llm.ToolCall
	ToolResults []llm.ToolResult

	Usage      *llm.Usage
	TotalUsage *llm.Usage

	// MessageCountAfterLastThink lets the compression sub-graph skip
	// compaction when there's been no new history since the last Think
	// (spec.md §4.9 invariant).
	MessageCountAfterLastThink int

	TurnCount int

	// ApprovalResult carries a human's HITL decision back in after resume;
	// nil means "not yet decided" (spec.md §4.7 step 2).
	ApprovalResult *bool

	// LastReflection holds the most recent ReflectionAnalysis when Observe
	// was built with a ReflectionPolicy; nil when reflection is disabled or
	// hasn't run yet.
	LastReflection *ReflectionAnalysis

	// approvalConsumed is unexported, so callers cannot set it; Act tracks
	// a consumed approval in a local variable and does not use this field.
	approvalConsumed bool
}

// Clone returns a deep-enough copy that a retried node invocation never
// observes a previous attempt's partial mutation (spec.md §4.3).
func (s State) Clone() State {
	out := s
	out.Messages = append([]llm.Message(nil), s.Messages...)
	out.ToolCalls = append([]llm.ToolCall(nil), s.ToolCalls...)
	out.ToolResults = append([]llm.ToolResult(nil), s.ToolResults...)
	if s.Usage != nil {
		u := *s.Usage
		out.Usage = &u
	}
	if s.TotalUsage != nil {
		u := *s.TotalUsage
		out.TotalUsage = &u
	}
	if s.ApprovalResult != nil {
		v := *s.ApprovalResult
		out.ApprovalResult = &v
	}
	if s.LastReflection != nil {
		r := *s.LastReflection
		r.SuccessfulTools = append([]string(nil), s.LastReflection.SuccessfulTools...)
		r.FailedTools = append([]string(nil), s.LastReflection.FailedTools...)
		out.LastReflection = &r
	}
	return out
}

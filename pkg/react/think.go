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
	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
)

// fallbackContent substitutes for an empty model response so downstream
// nodes always see a content message (spec.md §4.6).
const fallbackContent = "No text response from the model. Please try again or check the API."

// ThinkNodeID is the conventional node id for a Think node in a compiled
// reactive graph.
const ThinkNodeID = "think"

// Think builds a graph.Node that invokes client with state.Messages,
// producing a new assistant message and any parsed tool calls (C11,
// spec.md §4.6).
func Think(client llm.Client, tools []llm.ToolSpec) graph.Node[State] {
	return graph.NewNodeFunc(ThinkNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		var resp llm.Response
		var err error

		if rc.WantsMode(graph.StreamMessages) {
			resp, err = client.InvokeStream(state.Messages, tools, func(chunk string) {
				rc.Emit(graph.Event{
					Mode:   graph.StreamMessages,
					NodeID: ThinkNodeID,
					Data:   MessageChunk{Chunk: chunk, NodeID: ThinkNodeID},
				})
			})
		} else {
			resp, err = client.Invoke(state.Messages, tools)
		}
		if err != nil {
			return state, graph.Next{}, graph.NewExecutionError(ThinkNodeID, "llm invoke failed", err)
		}

		content := resp.Content
		if content == "" && len(resp.ToolCalls) == 0 {
			content = fallbackContent
		}

		out := state
		out.Messages = append(append([]llm.Message(nil), state.Messages...), llm.Message{
			Role:    llm.RoleAssistant,
			Content: content,
		})
		out.ToolCalls = resp.ToolCalls
		out.Usage = resp.Usage
		out.TotalUsage = llm.AddUsage(state.TotalUsage, resp.Usage)
		out.MessageCountAfterLastThink = len(out.Messages)

		if rc.WantsMode(graph.StreamMessages) && resp.Usage != nil {
			rc.Emit(graph.Event{Mode: graph.StreamMessages, NodeID: ThinkNodeID, Data: UsageEvent{Usage: *resp.Usage, Total: out.TotalUsage}})
		}

		return out, graph.Continue(), nil
	})
}

// MessageChunk is the payload of a StreamMessages token-chunk event.
type MessageChunk struct {
	Chunk  string
	NodeID string
}

// UsageEvent is emitted once per Think call when StreamMessages is active.
type UsageEvent struct {
	Usage llm.Usage
	Total *llm.Usage
}

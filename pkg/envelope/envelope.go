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

// Package envelope implements the wire-format event envelope (C17, C18):
// every event an Executor emits is wrapped with a monotonic event_id, the
// run's session_id, and the node_id active when it was produced (spec.md
// §4.12, §6.1).
//
// Grounded on the teacher's pkg/a2a event-wrapping shape (per-task
// contextId/taskId stamping) and pkg/agui/events.go's typed event
// catalog, generalized to the core's graph.Event stream.
package envelope

import (
	"encoding/json"
	"sync/atomic"

	"github.com/loomstate/loomstate/pkg/graph"
)

// Type is the wire discriminant for an envelope (spec.md §4.12).
type Type string

const (
	TypeNodeEnter      Type = "node_enter"
	TypeNodeExit       Type = "node_exit"
	TypeMessageChunk   Type = "message_chunk"
	TypeUsage          Type = "usage"
	TypeValues         Type = "values"
	TypeUpdates        Type = "updates"
	TypeCustom         Type = "custom"
	TypeCheckpoint     Type = "checkpoint"
	TypeTotExpand      Type = "tot_expand"
	TypeTotEvaluate    Type = "tot_evaluate"
	TypeTotBacktrack   Type = "tot_backtrack"
	TypeGotPlan        Type = "got_plan"
	TypeGotNodeStart   Type = "got_node_start"
	TypeGotNodeComplete Type = "got_node_complete"
	TypeGotNodeFailed  Type = "got_node_failed"
	TypeGotExpand      Type = "got_expand"
	TypeToolCallChunk  Type = "tool_call_chunk"
	TypeToolCall       Type = "tool_call"
	TypeToolStart      Type = "tool_start"
	TypeToolOutput     Type = "tool_output"
	TypeToolEnd        Type = "tool_end"
	TypeToolApproval   Type = "tool_approval"
)

// Envelope is the self-describing wire frame every event is wrapped in
// before being sent to a client (spec.md §4.12):
//
//	{ "type": "...", <payload fields inlined>, "session_id": "...", "node_id": "...", "event_id": N }
type Envelope struct {
	Type      Type   `json:"type"`
	Payload   any    `json:"-"`
	SessionID string `json:"session_id"`
	NodeID    string `json:"node_id"`
	EventID   uint64 `json:"event_id"`
}

// MarshalJSON inlines Payload's fields alongside the envelope's own, per
// spec.md §4.12's flattened wire shape.
func (e Envelope) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &fields); err != nil {
			// Payload wasn't a JSON object (e.g. a bare string chunk); keep
			// it under a "data" key instead of silently dropping it.
			fields = map[string]json.RawMessage{"data": payload}
		}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}

	idJSON, _ := json.Marshal(e.EventID)
	sessJSON, _ := json.Marshal(e.SessionID)
	nodeJSON, _ := json.Marshal(e.NodeID)
	typeJSON, _ := json.Marshal(e.Type)
	fields["type"] = typeJSON
	fields["session_id"] = sessJSON
	fields["node_id"] = nodeJSON
	fields["event_id"] = idJSON

	return json.Marshal(fields)
}

// State tracks the per-run monotonic counter and current node id used to
// stamp every outgoing Envelope (C17: "EnvelopeState holds session_id,
// monotonic event_id, and the current node_id, updated on TaskStart").
type State struct {
	sessionID string
	counter   atomic.Uint64
	nodeID    atomic.Value // string
}

// NewState starts an envelope sequence for sessionID; the first issued
// event_id is 1 (spec.md §3, §6.1: ids start at 1 and increase strictly).
func NewState(sessionID string) *State {
	s := &State{sessionID: sessionID}
	s.nodeID.Store("")
	return s
}

// SetNode updates the current node id, called on TaskStart (spec.md §4.12).
func (s *State) SetNode(nodeID string) { s.nodeID.Store(nodeID) }

// Next stamps payload into an Envelope with the next event_id, the
// current session/node ids, and increments the counter. event_id values
// start at 1 and increase strictly (spec.md §3, §6.1, §8).
func (s *State) Next(t Type, payload any) Envelope {
	id := s.counter.Add(1)
	node, _ := s.nodeID.Load().(string)
	return Envelope{Type: t, Payload: payload, SessionID: s.sessionID, NodeID: node, EventID: id}
}

// LastEventID returns the most recently issued event_id; the end-of-run
// response uses LastEventID()+1 (spec.md §4.12).
func (s *State) LastEventID() uint64 {
	return s.counter.Load()
}

// eventTypeFor maps a graph.StreamMode (plus payload shape) to its wire
// Type. Node-internal event payloads (tool progress, tree-of-thoughts and
// graph-of-thoughts events) travel as StreamCustom and are wrapped as
// TypeCustom; they are not mapped to dedicated wire types.
func eventTypeFor(mode graph.StreamMode) Type {
	switch mode {
	case graph.StreamValues:
		return TypeValues
	case graph.StreamUpdates:
		return TypeUpdates
	case graph.StreamMessages:
		return TypeMessageChunk
	case graph.StreamCustom:
		return TypeCustom
	case graph.StreamCheckpoints:
		return TypeCheckpoint
	case graph.StreamTasks:
		return TypeNodeEnter
	default:
		return TypeCustom
	}
}

// FromGraphEvent converts a graph.Event into a wire Envelope, advancing
// state's counter and updating the tracked node id on task-start events.
func FromGraphEvent(state *State, ev graph.Event) Envelope {
	if ev.Mode == graph.StreamTasks {
		if te, ok := ev.Data.(graph.TaskEvent); ok && te.Started {
			state.SetNode(ev.NodeID)
			return state.Next(TypeNodeEnter, te)
		}
		state.SetNode(ev.NodeID)
		return state.Next(TypeNodeExit, ev.Data)
	}
	return state.Next(eventTypeFor(ev.Mode), ev.Data)
}

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

package graph

import (
	"context"

	"github.com/loomstate/loomstate/pkg/checkpoint"
	"github.com/loomstate/loomstate/pkg/store"
)

// StreamMode selects which event categories Stream emits (spec.md §4.2,
// §4.12). A run may request more than one concurrently.
type StreamMode string

const (
	StreamValues      StreamMode = "values"
	StreamUpdates     StreamMode = "updates"
	StreamMessages    StreamMode = "messages"
	StreamCustom      StreamMode = "custom"
	StreamCheckpoints StreamMode = "checkpoints"
	StreamTasks       StreamMode = "tasks"
	StreamDebug       StreamMode = "debug"
)

// StreamModeSet is the set of stream modes a run requests, keyed by mode.
type StreamModeSet map[StreamMode]struct{}

// NewStreamModeSet builds a set from the given modes.
func NewStreamModeSet(modes ...StreamMode) StreamModeSet {
	s := make(StreamModeSet, len(modes))
	for _, m := range modes {
		s[m] = struct{}{}
	}
	return s
}

// Has reports whether mode m is active for this set. StreamDebug implies
// StreamTasks and StreamCheckpoints (spec.md §4.2: "Debug (implies
// Checkpoints ∪ Tasks)"), so a run requesting only Debug still sees
// node_enter/node_exit and checkpoint events.
func (s StreamModeSet) Has(m StreamMode) bool {
	if s == nil {
		return false
	}
	if _, ok := s[m]; ok {
		return true
	}
	if m == StreamTasks || m == StreamCheckpoints {
		_, ok := s[StreamDebug]
		return ok
	}
	return false
}

// Event is a single item emitted on a run's event sink (spec.md §4.12). Data
// shape depends on Mode; consumers type-switch on it.
type Event struct {
	Mode   StreamMode
	NodeID string
	Data   any
}

// EventSink receives events as a run produces them. Implementations must not
// block the run indefinitely; a bounded channel writer is the typical shape.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// NopEventSink discards all events; NewRunContext substitutes it when given
// a nil sink.
var NopEventSink EventSink = EventSinkFunc(func(Event) {})

// RunContext is the per-invocation handle threaded through every node call
// (C6, spec.md §3): addressing config, the event sink, the set of requested
// stream modes, the long-term store, and the checkpointer, plus the
// standard Go context for cancellation/deadlines.
//
// RunContext is not generic — the node's state type is the only thing
// parameterized — so a single compiled executor can host heterogeneous
// sub-graphs (e.g. a compression sub-graph nested under a react agent).
type RunContext struct {
	Ctx    context.Context
	Config checkpoint.RunnableConfig

	sink        EventSink
	streamModes StreamModeSet

	Store      store.Store
	Checkpoint checkpoint.Saver

	// Step is the executor's current super-step counter (spec.md §4.2),
	// exposed so nodes can make retry/backoff decisions relative to it.
	Step int
}

// NewRunContext builds a RunContext with a non-nil sink, defaulting to
// NopEventSink when sink is nil.
func NewRunContext(ctx context.Context, cfg checkpoint.RunnableConfig, modes StreamModeSet, sink EventSink, st store.Store, saver checkpoint.Saver) *RunContext {
	if sink == nil {
		sink = NopEventSink
	}
	return &RunContext{
		Ctx:         ctx,
		Config:      cfg,
		sink:        sink,
		streamModes: modes,
		Store:       st,
		Checkpoint:  saver,
	}
}

// Emit forwards ev to the sink if its mode was requested for this run.
func (rc *RunContext) Emit(ev Event) {
	if rc == nil || rc.sink == nil {
		return
	}
	if !rc.streamModes.Has(ev.Mode) {
		return
	}
	rc.sink.Emit(ev)
}

// WantsMode reports whether mode was requested for this run.
func (rc *RunContext) WantsMode(mode StreamMode) bool {
	if rc == nil {
		return false
	}
	return rc.streamModes.Has(mode)
}

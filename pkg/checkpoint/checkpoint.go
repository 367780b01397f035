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

// Package checkpoint implements the per-thread checkpointer contract (C2):
// immutable full-state snapshots addressable by (thread_id, checkpoint_ns,
// checkpoint_id), enabling time-travel and resume-after-interrupt.
//
// Grounded on the teacher's pkg/checkpoint/state.go phase/type vocabulary,
// generalized from Hector's single-agent execution snapshot to the generic
// channel_values envelope spec.md §3 describes.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source identifies why a checkpoint was written (spec.md §3 Checkpoint).
type Source string

const (
	SourceInput  Source = "input"
	SourceLoop   Source = "loop"
	SourceUpdate Source = "update"
	SourceFork   Source = "fork"
)

// Envelope is the self-describing serialization wrapper spec.md §6.3
// requires for channel_values: {type, data}.
type Envelope struct {
	Type string          `json:"type"` // "json" | "bytes" | "null"
	Data json.RawMessage `json:"data,omitempty"`
}

// NewJSONEnvelope serializes v as a json Envelope.
func NewJSONEnvelope(v any) (Envelope, error) {
	if v == nil {
		return Envelope{Type: "null"}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("checkpoint: marshal channel_values: %w", err)
	}
	return Envelope{Type: "json", Data: data}, nil
}

// Unmarshal decodes the envelope's data into v.
func (e Envelope) Unmarshal(v any) error {
	if e.Type == "null" || len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Metadata carries the source and step number of a checkpoint.
type Metadata struct {
	Source Source `json:"source"`
	Step   int    `json:"step"`
}

// PendingWrite is a partial-progress write appended to the current
// checkpoint, typically across an interrupt (spec.md §4.13 put_writes).
type PendingWrite struct {
	TaskID  string          `json:"task_id"`
	Channel string          `json:"channel"`
	Value   json.RawMessage `json:"value"`
}

// Checkpoint is an immutable full-state snapshot (spec.md §3).
type Checkpoint struct {
	ID             string         `json:"id"`
	Timestamp      string         `json:"timestamp"`
	ChannelValues  Envelope       `json:"channel_values"`
	Metadata       Metadata       `json:"metadata"`
	PendingWrites  []PendingWrite `json:"pending_writes,omitempty"`
}

// NewID returns a monotonic, time-ordered UUIDv6 suitable for Checkpoint.ID
// (spec.md §3: "id (monotonic UUID-v6)").
func NewID() (string, error) {
	id, err := uuid.NewV6()
	if err != nil {
		return "", fmt.Errorf("checkpoint: generate uuidv6: %w", err)
	}
	return id.String(), nil
}

// RunnableConfig is the per-invocation addressing and scoping value
// threaded through compile/run (spec.md §3).
type RunnableConfig struct {
	ThreadID         string
	CheckpointID     string // load a specific snapshot / branch point
	CheckpointNS     string // sub-graph scoping
	UserID           string
	ResumeFromNodeID string
}

// CheckpointTuple additionally carries the RunnableConfig used at save
// time, as returned by GetTuple.
type CheckpointTuple struct {
	Config     RunnableConfig
	Checkpoint Checkpoint
}

// ListOptions paginates List.
type ListOptions struct {
	Limit  int
	Before string // checkpoint id cursor, exclusive
}

// CheckpointListItem is a single row returned by List.
type CheckpointListItem struct {
	Config     RunnableConfig
	Checkpoint Checkpoint
}

// Saver is the checkpointer contract (C2, spec.md §4.13). Implementations
// must be safe for concurrent use across runs (spec.md §5).
type Saver interface {
	// Put stores checkpoint by (thread_id, checkpoint_ns, checkpoint_id),
	// updating the latest-for-thread/ns pointer.
	Put(cfg RunnableConfig, cp Checkpoint) error

	// GetTuple returns the specific checkpoint if cfg.CheckpointID is set,
	// else the latest for (thread_id, ns). ok is false if none exists.
	GetTuple(cfg RunnableConfig) (tuple CheckpointTuple, ok bool, err error)

	// List returns checkpoints for (thread_id, ns), newest first, paginated.
	List(cfg RunnableConfig, opts ListOptions) ([]CheckpointListItem, error)

	// PutWrites appends pending writes to the current checkpoint for
	// (thread_id, ns). Writes are idempotent per (checkpoint_id, task_id).
	PutWrites(cfg RunnableConfig, writes []PendingWrite, taskID string) error
}

// timestamp is split out so tests can observe the format without faking
// the clock.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

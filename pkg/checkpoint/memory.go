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

package checkpoint

import (
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type threadNS struct {
	thread string
	ns     string
}

// MemorySaver is an in-process Saver. It bounds the number of distinct
// (thread_id, ns) lineages it tracks with an LRU so a long-running process
// hosting many short-lived threads doesn't grow unbounded — the teacher
// uses the same "bounded index, full snapshot per entry" shape in
// pkg/memory/index.go for its keyword/vector indexes.
type MemorySaver struct {
	mu    sync.Mutex
	lines *lru.Cache[threadNS, []Checkpoint]
	// writes dedupes PutWrites by (checkpoint_id, task_id) per spec.md §4.13.
	writes map[string]bool
}

// NewMemorySaver builds a MemorySaver tracking at most maxLineages distinct
// (thread_id, ns) pairs concurrently.
func NewMemorySaver(maxLineages int) *MemorySaver {
	if maxLineages <= 0 {
		maxLineages = 4096
	}
	cache, _ := lru.New[threadNS, []Checkpoint](maxLineages)
	return &MemorySaver{lines: cache, writes: make(map[string]bool)}
}

func key(cfg RunnableConfig) threadNS {
	return threadNS{thread: cfg.ThreadID, ns: cfg.CheckpointNS}
}

func (m *MemorySaver) Put(cfg RunnableConfig, cp Checkpoint) error {
	if cfg.ThreadID == "" {
		return fmt.Errorf("checkpoint: Put requires a thread_id")
	}
	if cp.Timestamp == "" {
		cp.Timestamp = timestamp(time.Now())
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(cfg)
	existing, _ := m.lines.Get(k)
	// Checkpoints are immutable after write (spec.md §3); append, never
	// mutate in place.
	m.lines.Add(k, append(existing, cp))
	return nil
}

func (m *MemorySaver) GetTuple(cfg RunnableConfig) (CheckpointTuple, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(cfg)
	list, ok := m.lines.Get(k)
	if !ok || len(list) == 0 {
		return CheckpointTuple{}, false, nil
	}

	if cfg.CheckpointID != "" {
		for _, cp := range list {
			if cp.ID == cfg.CheckpointID {
				return CheckpointTuple{Config: cfg, Checkpoint: cp}, true, nil
			}
		}
		return CheckpointTuple{}, false, nil
	}

	latest := list[len(list)-1]
	out := cfg
	out.CheckpointID = latest.ID
	return CheckpointTuple{Config: out, Checkpoint: latest}, true, nil
}

func (m *MemorySaver) List(cfg RunnableConfig, opts ListOptions) ([]CheckpointListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list, ok := m.lines.Get(key(cfg))
	if !ok {
		return nil, nil
	}

	// Newest first, by the monotonic UUIDv6 total order (spec.md §5).
	sorted := make([]Checkpoint, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })

	started := opts.Before == ""
	items := make([]CheckpointListItem, 0, len(sorted))
	for _, cp := range sorted {
		if !started {
			if cp.ID == opts.Before {
				started = true
			}
			continue
		}
		out := cfg
		out.CheckpointID = cp.ID
		items = append(items, CheckpointListItem{Config: out, Checkpoint: cp})
		if opts.Limit > 0 && len(items) >= opts.Limit {
			break
		}
	}
	return items, nil
}

func (m *MemorySaver) PutWrites(cfg RunnableConfig, writes []PendingWrite, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(cfg)
	list, ok := m.lines.Get(k)
	if !ok || len(list) == 0 {
		return fmt.Errorf("checkpoint: PutWrites: no checkpoint for thread %q ns %q", cfg.ThreadID, cfg.CheckpointNS)
	}
	idx := len(list) - 1
	cp := list[idx]

	dedupeKey := cp.ID + "/" + taskID
	if m.writes[dedupeKey] {
		return nil // idempotent per (checkpoint_id, task_id)
	}
	m.writes[dedupeKey] = true

	for _, w := range writes {
		w.TaskID = taskID
		cp.PendingWrites = append(cp.PendingWrites, w)
	}
	list[idx] = cp
	m.lines.Add(k, list)
	return nil
}

var _ Saver = (*MemorySaver)(nil)

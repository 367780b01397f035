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

package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memKey struct {
	ns  string
	key string
}

// MemoryStore is an in-process Store backed by a map, with a
// string-containment Search fallback (spec.md §4.14: "backends without
// vector indexing implement a string-containment filter returning
// score = None"). Grounded on the teacher's pkg/memory/index_keyword.go
// bounded in-memory index shape.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[memKey]Item
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[memKey]Item)}
}

func mk(ns Namespace, key string) memKey { return memKey{ns: ns.String(), key: key} }

func (s *MemoryStore) Put(ns Namespace, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: marshal value: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := mk(ns, key)
	now := time.Now().UTC()
	created := now
	if existing, ok := s.items[k]; ok {
		created = existing.CreatedAt
	}
	s.items[k] = Item{
		Namespace: append(Namespace{}, ns...),
		Key:       key,
		Value:     data,
		CreatedAt: created,
		UpdatedAt: now,
	}
	return nil
}

func (s *MemoryStore) GetItem(ns Namespace, key string) (Item, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[mk(ns, key)]
	return item, ok, nil
}

func (s *MemoryStore) Get(ns Namespace, key string) (any, bool, error) {
	item, ok, err := s.GetItem(ns, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var v any
	if err := json.Unmarshal(item.Value, &v); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal value: %w", err)
	}
	return v, true, nil
}

func (s *MemoryStore) Delete(ns Namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, mk(ns, key)) // idempotent: deleting a missing key is a no-op
	return nil
}

func (s *MemoryStore) List(ns Namespace) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := ns.String()
	var keys []string
	for k := range s.items {
		if k.ns == prefix {
			keys = append(keys, k.key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Search(nsPrefix Namespace, opts SearchOptions) ([]SearchItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := nsPrefix.String()
	var matches []Item
	for k, item := range s.items {
		if prefix != "" && !strings.HasPrefix(k.ns, prefix) {
			continue
		}
		if opts.Query != "" && !strings.Contains(strings.ToLower(string(item.Value)), strings.ToLower(opts.Query)) {
			continue
		}
		if !matchesFilter(item, opts.Filter) {
			continue
		}
		matches = append(matches, item)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Key < matches[j].Key })

	matches = paginate(matches, opts.Offset, opts.Limit)
	out := make([]SearchItem, 0, len(matches))
	for _, m := range matches {
		out = append(out, SearchItem{Item: m}) // Score stays nil: no vector index
	}
	return out, nil
}

func matchesFilter(item Item, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	var decoded map[string]any
	if err := json.Unmarshal(item.Value, &decoded); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := decoded[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func paginate(items []Item, offset, limit int) []Item {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *MemoryStore) ListNamespaces(opts ListNamespacesOptions) ([]Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]Namespace)
	for k := range s.items {
		var ns Namespace
		if k.ns != "" {
			ns = strings.Split(k.ns, "/")
		}
		if opts.MaxDepth > 0 && len(ns) > opts.MaxDepth {
			ns = ns[:opts.MaxDepth]
		}
		seen[ns.String()] = ns
	}

	var out []Namespace
	for _, ns := range seen {
		if len(opts.MatchConditions) > 0 {
			ok := false
			for _, c := range opts.MatchConditions {
				if c.matches(ns) {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })

	result := make([]Item, len(out))
	for i, ns := range out {
		result[i] = Item{Namespace: ns} // reuse paginate on a throwaway Item slice
	}
	result = paginate(result, opts.Offset, opts.Limit)
	final := make([]Namespace, len(result))
	for i, r := range result {
		final[i] = r.Namespace
	}
	return final, nil
}

func (s *MemoryStore) Batch(ops []Op) ([]any, error) {
	out := make([]any, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpGet:
			v, ok, err := s.Get(op.Namespace, op.Key)
			if err != nil {
				return nil, err
			}
			if !ok {
				out[i] = nil
				continue
			}
			out[i] = v
		case OpPut:
			if op.Value == nil {
				out[i] = s.Delete(op.Namespace, op.Key)
				continue
			}
			out[i] = s.Put(op.Namespace, op.Key, op.Value)
		case OpSearch:
			res, err := s.Search(op.Namespace, op.Search)
			if err != nil {
				return nil, err
			}
			out[i] = res
		case OpListNamespaces:
			res, err := s.ListNamespaces(op.ListNS)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

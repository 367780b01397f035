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
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// EmbeddingFunc turns text into a vector. The core treats embedding as an
// external collaborator (spec.md §1 excludes concrete LLM wire protocols);
// callers inject whichever provider they use.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

// ChromemStore is a Store with semantic Search, backed by chromem-go for
// the vector index and an in-memory map for exact get/put/list/delete.
// Grounded on the teacher's pkg/vector/chromem.go ChromemProvider, adapted
// from a session-indexing service into the generic namespaced Store
// contract of spec.md §4.14.
type ChromemStore struct {
	fallback *MemoryStore

	mu          sync.Mutex
	db          *chromem.DB
	collections map[string]*chromem.Collection
	embed       EmbeddingFunc
}

// NewChromemStore builds a ChromemStore. embed is used to vectorize the
// "text" field (or the JSON value's string form) of each stored item.
func NewChromemStore(embed EmbeddingFunc) *ChromemStore {
	return &ChromemStore{
		fallback:    NewMemoryStore(),
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		embed:       embed,
	}
}

func (s *ChromemStore) Put(ns Namespace, key string, value any) error {
	if err := s.fallback.Put(ns, key, value); err != nil {
		return err
	}
	if s.embed == nil {
		return nil
	}

	text := embeddableText(value)
	vec, err := s.embed(context.Background(), text)
	if err != nil {
		return fmt.Errorf("store: embed value: %w", err)
	}

	col, err := s.collection(ns)
	if err != nil {
		return err
	}
	doc := chromem.Document{ID: key, Content: text, Embedding: vec}
	return col.AddDocuments(context.Background(), []chromem.Document{doc}, runtime.NumCPU())
}

func (s *ChromemStore) collection(ns Namespace) (*chromem.Collection, error) {
	name := ns.String()
	if name == "" {
		name = "__root__"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}
	identity := func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("store: collection %q requires pre-computed embeddings", name)
	}
	col, err := s.db.GetOrCreateCollection(name, nil, identity)
	if err != nil {
		return nil, fmt.Errorf("store: get/create collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

func embeddableText(value any) string {
	if m, ok := value.(map[string]any); ok {
		if text, ok := m["text"].(string); ok {
			return text
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}

func (s *ChromemStore) Get(ns Namespace, key string) (any, bool, error) { return s.fallback.Get(ns, key) }
func (s *ChromemStore) GetItem(ns Namespace, key string) (Item, bool, error) {
	return s.fallback.GetItem(ns, key)
}
func (s *ChromemStore) List(ns Namespace) ([]string, error) { return s.fallback.List(ns) }
func (s *ChromemStore) ListNamespaces(opts ListNamespacesOptions) ([]Namespace, error) {
	return s.fallback.ListNamespaces(opts)
}

func (s *ChromemStore) Delete(ns Namespace, key string) error {
	if err := s.fallback.Delete(ns, key); err != nil {
		return err
	}
	col, err := s.collection(ns)
	if err != nil {
		return err
	}
	return col.Delete(context.Background(), nil, nil, key)
}

// Search performs cosine-similarity search when embed and a query are both
// set, scoring each hit (spec.md §4.14: "semantic backends return
// cosine/L2 similarity in score"); otherwise it falls back to the
// string-containment Search.
func (s *ChromemStore) Search(nsPrefix Namespace, opts SearchOptions) ([]SearchItem, error) {
	if s.embed == nil || opts.Query == "" {
		return s.fallback.Search(nsPrefix, opts)
	}

	col, err := s.collection(nsPrefix)
	if err != nil {
		return nil, err
	}
	vec, err := s.embed(context.Background(), opts.Query)
	if err != nil {
		return nil, fmt.Errorf("store: embed query: %w", err)
	}

	topK := opts.Limit
	if topK <= 0 {
		topK = 10
	}
	results, err := col.QueryEmbedding(context.Background(), vec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("store: query embedding: %w", err)
	}

	out := make([]SearchItem, 0, len(results))
	for _, r := range results {
		item, ok, err := s.fallback.GetItem(nsPrefix, r.ID)
		if err != nil || !ok {
			continue
		}
		score := float64(r.Similarity)
		out = append(out, SearchItem{Item: item, Score: &score})
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Score > *out[j].Score })
	return out, nil
}

func (s *ChromemStore) Batch(ops []Op) ([]any, error) {
	out := make([]any, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case OpGet:
			v, ok, err := s.Get(op.Namespace, op.Key)
			if err != nil {
				return nil, err
			}
			if ok {
				out[i] = v
			}
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

var _ Store = (*ChromemStore)(nil)

// namespaceString joins ns's segments with "/", as Namespace.String does.
func namespaceString(ns Namespace) string { return strings.Join(ns, "/") }

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

const (
	// Start and End are the two reserved node ids every graph is wired
	// against (spec.md §4.1).
	Start = "__start__"
	End_  = "__end__"
)

// conditionalEdge is a router plus its path map, attached to exactly one
// source node.
type conditionalEdge[S any] struct {
	router  Router[S]
	pathMap map[string]string // routing key -> destination node id; "" key is the default
}

// Builder accumulates nodes and edges before Compile validates and freezes
// them into a Graph. Mirrors the teacher's workflow.Builder staged-construction
// shape (pkg/workflow/builder.go), generalized to the typed node contract.
type Builder[S any] struct {
	nodes       map[string]Node[S]
	edges       map[string]string // unconditional: source -> dest
	conditional map[string]conditionalEdge[S]
	order       []string // insertion order, used as edge_order fallback
	entry       string
	updater     Updater[S]
	retries     map[string]RetryPolicy
}

// NewBuilder starts an empty graph builder.
func NewBuilder[S any]() *Builder[S] {
	return &Builder[S]{
		nodes:       make(map[string]Node[S]),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge[S]),
		retries:     make(map[string]RetryPolicy),
	}
}

// SetRetryPolicy attaches a RetryPolicy to a single node (C4). Nodes without
// an explicit policy use NoRetry.
func (b *Builder[S]) SetRetryPolicy(nodeID string, policy RetryPolicy) *Builder[S] {
	b.retries[nodeID] = policy
	return b
}

// AddNode registers a node. Calling AddNode twice with the same id replaces
// the previous registration.
func (b *Builder[S]) AddNode(n Node[S]) *Builder[S] {
	id := n.ID()
	if _, exists := b.nodes[id]; !exists {
		b.order = append(b.order, id)
	}
	b.nodes[id] = n
	return b
}

// SetEntry designates the node that receives the initial state. Required.
func (b *Builder[S]) SetEntry(nodeID string) *Builder[S] {
	b.entry = nodeID
	return b
}

// AddEdge wires an unconditional edge from -> to. "to" may be End_.
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	b.edges[from] = to
	return b
}

// AddConditionalEdge wires a router-driven edge: after from runs, router
// picks a key and pathMap resolves it to a destination node id (or End_).
// An empty-string key in pathMap is the default when the router's result
// isn't otherwise present.
func (b *Builder[S]) AddConditionalEdge(from string, router Router[S], pathMap map[string]string) *Builder[S] {
	b.conditional[from] = conditionalEdge[S]{router: router, pathMap: pathMap}
	return b
}

// SetUpdater overrides the default ReplaceUpdater for this graph's state
// merge semantics (C1).
func (b *Builder[S]) SetUpdater(u Updater[S]) *Builder[S] {
	b.updater = u
	return b
}

// Graph is the immutable, validated result of Compile (spec.md §4.1). It
// carries no mutable state of its own; all per-run state lives in
// RunContext and the state value threaded through Invoke/Stream.
type Graph[S any] struct {
	nodes       map[string]Node[S]
	edges       map[string]string
	conditional map[string]conditionalEdge[S]
	order       []string
	entry       string
	updater     Updater[S]
	retries     map[string]RetryPolicy
}

// Compile validates the builder's wiring and freezes it into a Graph. The
// checks mirror spec.md §4.1's eight-step compiler algorithm:
//  1. at least one node exists
//  2. exactly one entry point is set
//  3. every edge source and destination refers to a known node (or End_)
//  4. a node cannot have both an unconditional edge and a conditional edge
//  5. every conditional edge's path map targets known nodes (or End_)
//  6. the entry node is a known node
//  7. no node is unreachable from entry (best-effort: only direct dangling
//     edges are checked here, not full reachability, matching the teacher's
//     shallow workflow.Validate pass in pkg/workflow/graph.go)
//  8. the returned Graph is immutable: callers cannot mutate nodes/edges
//     through it.
func (b *Builder[S]) Compile() (*Graph[S], error) {
	if len(b.nodes) == 0 {
		return nil, &CompilationError{Kind: ErrMissingStart, Message: "graph has no nodes"}
	}
	if b.entry == "" {
		return nil, &CompilationError{Kind: ErrMissingStart, Message: "no entry point set"}
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, &CompilationError{Kind: ErrNodeNotFound, NodeID: b.entry, Message: "entry point refers to unknown node"}
	}

	for from := range b.edges {
		if _, ok := b.conditional[from]; ok {
			return nil, &CompilationError{Kind: ErrNodeHasBothEdgeAndConditional, NodeID: from}
		}
	}

	for from, to := range b.edges {
		if _, ok := b.nodes[from]; !ok {
			return nil, &CompilationError{Kind: ErrNodeNotFound, NodeID: from, Message: "edge source not found"}
		}
		if to != End_ {
			if _, ok := b.nodes[to]; !ok {
				return nil, &CompilationError{Kind: ErrNodeNotFound, NodeID: to, Message: "edge destination not found"}
			}
		}
	}

	hasEnd := false
	for from, ce := range b.conditional {
		if _, ok := b.nodes[from]; !ok {
			return nil, &CompilationError{Kind: ErrNodeNotFound, NodeID: from, Message: "conditional edge source not found"}
		}
		if len(ce.pathMap) == 0 {
			return nil, &CompilationError{Kind: ErrInvalidConditionalPathMap, NodeID: from, Message: "path map is empty"}
		}
		for _, dest := range ce.pathMap {
			if dest == End_ {
				hasEnd = true
				continue
			}
			if _, ok := b.nodes[dest]; !ok {
				return nil, &CompilationError{Kind: ErrInvalidConditionalPathMap, NodeID: from, Message: "path map targets unknown node: " + dest}
			}
		}
	}
	for _, to := range b.edges {
		if to == End_ {
			hasEnd = true
		}
	}
	if !hasEnd {
		return nil, &CompilationError{Kind: ErrMissingEnd, Message: "graph has no path to __end__"}
	}

	updater := b.updater
	if updater == nil {
		updater = ReplaceUpdater[S]{}
	}

	nodes := make(map[string]Node[S], len(b.nodes))
	for k, v := range b.nodes {
		nodes[k] = v
	}
	edges := make(map[string]string, len(b.edges))
	for k, v := range b.edges {
		edges[k] = v
	}
	cond := make(map[string]conditionalEdge[S], len(b.conditional))
	for k, v := range b.conditional {
		cond[k] = v
	}
	order := make([]string, len(b.order))
	copy(order, b.order)
	retries := make(map[string]RetryPolicy, len(b.retries))
	for k, v := range b.retries {
		retries[k] = v
	}

	return &Graph[S]{
		nodes:       nodes,
		edges:       edges,
		conditional: cond,
		order:       order,
		entry:       b.entry,
		updater:     updater,
		retries:     retries,
	}, nil
}

// NodeIDs returns the compiled node ids in declaration order, for callers
// that need to report a graph's shape without executing it (e.g. the
// loomstate CLI's validate/run-dry-run reporting).
func (g *Graph[S]) NodeIDs() []string {
	return append([]string(nil), g.order...)
}

// Entry returns the graph's entry node id.
func (g *Graph[S]) Entry() string {
	return g.entry
}

// retryPolicy returns the node's configured RetryPolicy, defaulting to
// NoRetry.
func (g *Graph[S]) retryPolicy(nodeID string) RetryPolicy {
	if p, ok := g.retries[nodeID]; ok {
		return p
	}
	return NoRetry{}
}

// next resolves the destination node id following a node's Run result,
// falling back to the compiled unconditional/conditional edge, then to
// edge_order (spec.md §4.1 step 7, §4.2 step 7).
func (g *Graph[S]) next(from string, n Next, state S) (string, bool) {
	switch n.Kind {
	case NextEnd:
		return End_, true
	case NextNode:
		return n.Node, true
	}

	if ce, ok := g.conditional[from]; ok {
		key := ce.router(state)
		if dest, ok := ce.pathMap[key]; ok {
			return dest, true
		}
		if dest, ok := ce.pathMap[""]; ok {
			return dest, true
		}
		return "", false
	}

	if dest, ok := g.edges[from]; ok {
		return dest, true
	}

	for i, id := range g.order {
		if id == from && i+1 < len(g.order) {
			return g.order[i+1], true
		}
	}
	return End_, true
}

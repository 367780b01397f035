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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type intState int

func noop(id string, next Next) Node[intState] {
	return NewNodeFunc(id, func(rc *RunContext, s intState) (intState, Next, error) {
		return s + 1, next, nil
	})
}

func TestCompile_RequiresNodes(t *testing.T) {
	_, err := NewBuilder[intState]().Compile()
	require.Error(t, err)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrMissingStart, cerr.Kind)
}

func TestCompile_RequiresEntry(t *testing.T) {
	b := NewBuilder[intState]()
	b.AddNode(noop("a", End()))
	_, err := b.Compile()
	require.Error(t, err)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrMissingStart, cerr.Kind)
}

func TestCompile_RequiresPathToEnd(t *testing.T) {
	b := NewBuilder[intState]()
	b.AddNode(noop("a", Continue()))
	b.SetEntry("a")
	_, err := b.Compile()
	require.Error(t, err)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrMissingEnd, cerr.Kind)
}

func TestCompile_RejectsEdgeAndConditionalOnSameNode(t *testing.T) {
	b := NewBuilder[intState]()
	b.AddNode(noop("a", Continue()))
	b.AddNode(noop("b", End()))
	b.SetEntry("a")
	b.AddEdge("a", "b")
	b.AddConditionalEdge("a", func(intState) string { return "" }, map[string]string{"": End_})
	_, err := b.Compile()
	require.Error(t, err)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrNodeHasBothEdgeAndConditional, cerr.Kind)
}

func TestCompile_RejectsUnknownEdgeDestination(t *testing.T) {
	b := NewBuilder[intState]()
	b.AddNode(noop("a", Continue()))
	b.SetEntry("a")
	b.AddEdge("a", "ghost")
	_, err := b.Compile()
	require.Error(t, err)
	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrNodeNotFound, cerr.Kind)
}

func TestCompile_LinearChain(t *testing.T) {
	b := NewBuilder[intState]()
	b.AddNode(noop("a", Continue()))
	b.AddNode(noop("b", End()))
	b.SetEntry("a")
	b.AddEdge("a", "b")
	b.AddEdge("b", End_)

	g, err := b.Compile()
	require.NoError(t, err)
	assert.Equal(t, "a", g.Entry())
	assert.Equal(t, []string{"a", "b"}, g.NodeIDs())
}

func TestGraph_NodeIDsIsACopy(t *testing.T) {
	b := NewBuilder[intState]()
	b.AddNode(noop("a", End()))
	b.SetEntry("a")
	b.AddEdge("a", End_)
	g, err := b.Compile()
	require.NoError(t, err)

	ids := g.NodeIDs()
	ids[0] = "mutated"
	assert.Equal(t, []string{"a"}, g.NodeIDs(), "mutating the returned slice must not affect the graph")
}

func TestGraph_ConditionalRoutingDefaultKey(t *testing.T) {
	b := NewBuilder[intState]()
	b.AddNode(noop("a", Continue()))
	b.AddNode(noop("b", End()))
	b.SetEntry("a")
	b.AddConditionalEdge("a", func(s intState) string {
		if s > 10 {
			return "big"
		}
		return "unmatched"
	}, map[string]string{"big": "b", "": End_})
	b.AddEdge("b", End_)

	g, err := b.Compile()
	require.NoError(t, err)

	dest, ok := g.next("a", Continue(), 1)
	require.True(t, ok)
	assert.Equal(t, End_, dest, "unmatched routing key falls back to the default \"\" entry")

	dest, ok = g.next("a", Continue(), 20)
	require.True(t, ok)
	assert.Equal(t, "b", dest)
}

func TestGraph_EdgeOrderFallback(t *testing.T) {
	b := NewBuilder[intState]()
	b.AddNode(noop("a", Continue()))
	b.AddNode(noop("b", Continue()))
	b.AddNode(noop("c", End()))
	b.SetEntry("a")
	b.AddEdge("c", End_)

	g, err := b.Compile()
	require.NoError(t, err)

	dest, ok := g.next("a", Continue(), 0)
	require.True(t, ok)
	assert.Equal(t, "b", dest, "node without a compiled edge falls back to declaration order")
}

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

package got

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomstate/loomstate/pkg/checkpoint"
	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
)

type planClient struct {
	resp llm.Response
	err  error
}

func (c *planClient) Invoke(messages []llm.Message, tools []llm.ToolSpec) (llm.Response, error) {
	return c.resp, c.err
}

func (c *planClient) InvokeStream(messages []llm.Message, tools []llm.ToolSpec, sink llm.ChunkSink) (llm.Response, error) {
	return c.resp, c.err
}

func newRC() *graph.RunContext {
	return graph.NewRunContext(context.Background(), checkpoint.RunnableConfig{ThreadID: "t1"}, graph.NewStreamModeSet(graph.StreamCustom), graph.NopEventSink, nil, nil)
}

func TestParsePlan_BuildsNodesAndEdges(t *testing.T) {
	content := `{"nodes": [{"id": "a", "description": "do a"}, {"id": "b", "description": "do b"}], "edges": [{"from": "a", "to": "b"}]}`
	nodes, edges, err := parsePlan(content)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, StatusPending, nodes["a"].Status)
	require.Len(t, edges, 1)
	assert.Equal(t, TaskEdge{From: "a", To: "b"}, edges[0])
}

func TestParsePlan_RejectsDuplicateIDs(t *testing.T) {
	content := `{"nodes": [{"id": "a"}, {"id": "a"}], "edges": []}`
	_, _, err := parsePlan(content)
	assert.Error(t, err)
}

func TestParsePlan_RejectsEdgeToUnknownNode(t *testing.T) {
	content := `{"nodes": [{"id": "a"}], "edges": [{"from": "a", "to": "ghost"}]}`
	_, _, err := parsePlan(content)
	assert.Error(t, err)
}

func TestParsePlan_RejectsUnparsableContent(t *testing.T) {
	_, _, err := parsePlan("no json here")
	assert.Error(t, err)
}

func TestValidateAcyclic_DetectsCycle(t *testing.T) {
	nodes := map[string]*TaskNode{"a": {ID: "a"}, "b": {ID: "b"}}
	edges := []TaskEdge{{From: "a", To: "b"}, {From: "b", To: "a"}}
	assert.Error(t, validateAcyclic(nodes, edges))
}

func TestValidateAcyclic_AcceptsDAG(t *testing.T) {
	nodes := map[string]*TaskNode{"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}}
	edges := []TaskEdge{{From: "a", To: "b"}, {From: "a", To: "c"}}
	assert.NoError(t, validateAcyclic(nodes, edges))
}

func TestReadySet_OnlyUnblockedPendingNodes(t *testing.T) {
	state := State{
		Nodes: map[string]*TaskNode{
			"a": {ID: "a", Status: StatusDone},
			"b": {ID: "b", Status: StatusPending},
			"c": {ID: "c", Status: StatusPending},
		},
		Edges: []TaskEdge{{From: "a", To: "b"}, {From: "b", To: "c"}},
	}
	assert.Equal(t, []string{"b"}, readySet(state))
}

func TestReadySet_EmptyWhenNothingPending(t *testing.T) {
	state := State{Nodes: map[string]*TaskNode{"a": {ID: "a", Status: StatusDone}}}
	assert.Empty(t, readySet(state))
}

func TestPredecessorResults_JoinsUpstreamResultsInOrder(t *testing.T) {
	state := State{
		Nodes: map[string]*TaskNode{
			"a": {ID: "a", Result: "result A"},
			"b": {ID: "b", Result: "result B"},
			"c": {ID: "c"},
		},
		Edges: []TaskEdge{{From: "a", To: "c"}, {From: "b", To: "c"}},
	}
	out := predecessorResults(state, "c")
	assert.Contains(t, out, "result A")
	assert.Contains(t, out, "result B")
}

func TestDefaultClassify_FlagsLongDescriptions(t *testing.T) {
	long := ""
	for len(long) < 120 {
		long += "word "
	}
	assert.True(t, DefaultClassify(long))
}

func TestDefaultClassify_FlagsComplexityKeyword(t *testing.T) {
	assert.True(t, DefaultClassify("analyze the dataset"))
}

func TestDefaultClassify_FalseForShortSimpleDescription(t *testing.T) {
	assert.False(t, DefaultClassify("write the file"))
}

func TestPlanGraph_EmitsPlanEventAndStoresGraph(t *testing.T) {
	client := &planClient{resp: llm.Response{Content: `{"nodes": [{"id": "a", "description": "x"}], "edges": []}`}}
	node := PlanGraph(client)
	rc := newRC()

	out, next, err := node.Run(rc, State{Task: "build a thing"})
	require.NoError(t, err)
	assert.Equal(t, graph.Continue(), next)
	assert.Len(t, out.Nodes, 1)
}

func TestPlanGraph_InvalidGraphIsExecutionError(t *testing.T) {
	client := &planClient{resp: llm.Response{Content: `{"nodes": [{"id": "a"}, {"id": "b"}], "edges": [{"from": "a", "to": "b"}, {"from": "b", "to": "a"}]}`}}
	node := PlanGraph(client)
	rc := newRC()

	_, _, err := node.Run(rc, State{Task: "x"})
	require.Error(t, err)
	var execErr *graph.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestExecuteGraph_RunsReadyNodeAndLoopsUntilDone(t *testing.T) {
	state := State{
		Task: "root task",
		Nodes: map[string]*TaskNode{
			"a": {ID: "a", Status: StatusPending, Description: "step a"},
			"b": {ID: "b", Status: StatusPending, Description: "step b"},
		},
		Edges: []TaskEdge{{From: "a", To: "b"}},
	}
	run := func(rc *graph.RunContext, task string) (string, error) { return "ok: " + task[:4], nil }
	node := ExecuteGraph(run, nil, nil)
	rc := newRC()

	out, next, err := node.Run(rc, state)
	require.NoError(t, err)
	assert.Equal(t, graph.GoTo(ExecuteGraphNodeID), next)
	assert.Equal(t, StatusDone, out.Nodes["a"].Status)
	assert.Equal(t, StatusPending, out.Nodes["b"].Status)

	out2, next2, err := node.Run(rc, out)
	require.NoError(t, err)
	assert.Equal(t, graph.End(), next2)
	assert.Equal(t, StatusDone, out2.Nodes["b"].Status)
}

func TestExecuteGraph_FailureEndsRunWithoutPanicking(t *testing.T) {
	state := State{Nodes: map[string]*TaskNode{"a": {ID: "a", Status: StatusPending}}}
	run := func(rc *graph.RunContext, task string) (string, error) { return "", errors.New("boom") }
	node := ExecuteGraph(run, nil, nil)
	rc := newRC()

	out, next, err := node.Run(rc, state)
	require.NoError(t, err)
	assert.Equal(t, graph.End(), next)
	assert.Equal(t, StatusFailed, out.Nodes["a"].Status)
	assert.Equal(t, "boom", out.Nodes["a"].Error)
}

func TestExecuteGraph_EndsImmediatelyWithEmptyReadySet(t *testing.T) {
	state := State{Nodes: map[string]*TaskNode{}}
	node := ExecuteGraph(func(rc *graph.RunContext, task string) (string, error) { return "", nil }, nil, nil)
	rc := newRC()

	_, next, err := node.Run(rc, state)
	require.NoError(t, err)
	assert.Equal(t, graph.End(), next)
}

func TestNewExpandFunc_PrefixesGeneratedIDsAndRequiresParentEdge(t *testing.T) {
	client := &planClient{resp: llm.Response{Content: `{"nodes": [{"id": "x", "description": "sub step"}], "edges": [{"from": "parent", "to": "x"}]}`}}
	expand := NewExpandFunc(client)
	nodes, edges, err := expand("parent", "complex step")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	for id := range nodes {
		assert.Contains(t, id, "parent_sub_")
	}
	require.Len(t, edges, 1)
	assert.Equal(t, "parent", edges[0].From)
}

func TestNewExpandFunc_RejectsExpansionWithNoParentEdge(t *testing.T) {
	client := &planClient{resp: llm.Response{Content: `{"nodes": [{"id": "x"}, {"id": "y"}], "edges": [{"from": "x", "to": "y"}]}`}}
	expand := NewExpandFunc(client)
	_, _, err := expand("parent", "complex step")
	assert.Error(t, err)
}

func TestBuild_CompilesTopology(t *testing.T) {
	g, err := Build(&planClient{}, func(rc *graph.RunContext, task string) (string, error) { return "", nil }, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, PlanGraphNodeID, g.Entry())
	assert.ElementsMatch(t, []string{PlanGraphNodeID, ExecuteGraphNodeID}, g.NodeIDs())
}

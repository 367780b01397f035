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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
)

func TestObserve_EndsWhenNoToolCallsWereMade(t *testing.T) {
	node := Observe(LoopPolicy{}, "")
	rc, _ := newRC()

	out, next, err := node.Run(rc, State{})
	require.NoError(t, err)
	assert.Equal(t, graph.End(), next)
	assert.Equal(t, 0, out.TurnCount)
}

func TestObserve_LoopsBackToThinkAfterToolResults(t *testing.T) {
	node := Observe(LoopPolicy{}, "")
	rc, _ := newRC()

	in := State{
		ToolCalls:   []llm.ToolCall{{ID: "c1", Name: "search"}},
		ToolResults: []llm.ToolResult{{CallID: "c1", Name: "search", Content: "3 hits"}},
	}
	out, next, err := node.Run(rc, in)
	require.NoError(t, err)
	assert.Equal(t, graph.GoTo(ThinkNodeID), next)
	assert.Equal(t, 1, out.TurnCount)
	require.Len(t, out.Messages, 1)
	assert.Contains(t, out.Messages[0].Content, "3 hits")
}

func TestObserve_RoutesToCustomNextNode(t *testing.T) {
	node := Observe(LoopPolicy{}, "compress_prune")
	rc, _ := newRC()

	in := State{
		ToolCalls:   []llm.ToolCall{{ID: "c1", Name: "search"}},
		ToolResults: []llm.ToolResult{{CallID: "c1", Content: "ok"}},
	}
	_, next, err := node.Run(rc, in)
	require.NoError(t, err)
	assert.Equal(t, graph.GoTo("compress_prune"), next)
}

func TestObserve_EndsAtMaxTurnsEvenWithToolCalls(t *testing.T) {
	node := Observe(LoopPolicy{MaxTurns: 2}, "")
	rc, _ := newRC()

	in := State{
		TurnCount:   2,
		ToolCalls:   []llm.ToolCall{{ID: "c1", Name: "search"}},
		ToolResults: []llm.ToolResult{{CallID: "c1", Content: "ok"}},
	}
	_, next, err := node.Run(rc, in)
	require.NoError(t, err)
	assert.Equal(t, graph.End(), next)
}

func TestObserve_ClearsToolCallsAndResults(t *testing.T) {
	node := Observe(LoopPolicy{}, "")
	rc, _ := newRC()

	in := State{
		ToolCalls:   []llm.ToolCall{{ID: "c1"}},
		ToolResults: []llm.ToolResult{{CallID: "c1", Content: "ok"}},
	}
	out, _, err := node.Run(rc, in)
	require.NoError(t, err)
	assert.Nil(t, out.ToolCalls)
	assert.Nil(t, out.ToolResults)
}

func TestObserve_SkipsReflectionWhenPolicyIsNil(t *testing.T) {
	node := Observe(LoopPolicy{}, "")
	rc, events := newRC(graph.StreamCustom)

	in := State{
		ToolCalls:   []llm.ToolCall{{ID: "c1", Name: "search"}},
		ToolResults: []llm.ToolResult{{CallID: "c1", Name: "search", Content: "ok"}},
	}
	out, _, err := node.Run(rc, in)
	require.NoError(t, err)
	assert.Nil(t, out.LastReflection)
	assert.Empty(t, *events)
}

func TestObserve_SkipsReflectionWhenNoToolCallsWereMade(t *testing.T) {
	client := &stubClient{resp: llm.Response{Content: `{"recommendation":"continue"}`}}
	node := Observe(LoopPolicy{Reflection: &ReflectionPolicy{Analyzer: client}}, "")
	rc, events := newRC(graph.StreamCustom)

	out, _, err := node.Run(rc, State{})
	require.NoError(t, err)
	assert.Nil(t, out.LastReflection)
	assert.Empty(t, *events)
}

func TestObserve_RunsReflectionAndEmitsAnalysis(t *testing.T) {
	client := &stubClient{resp: llm.Response{
		Content: `{"successful_tools":["search"],"confidence":0.9,"should_pivot":false,"recommendation":"continue"}`,
	}}
	node := Observe(LoopPolicy{Reflection: &ReflectionPolicy{Analyzer: client}}, "")
	rc, events := newRC(graph.StreamCustom)

	in := State{
		ToolCalls:   []llm.ToolCall{{ID: "c1", Name: "search"}},
		ToolResults: []llm.ToolResult{{CallID: "c1", Name: "search", Content: "3 hits"}},
	}
	out, _, err := node.Run(rc, in)
	require.NoError(t, err)
	require.NotNil(t, out.LastReflection)
	assert.Equal(t, []string{"search"}, out.LastReflection.SuccessfulTools)
	assert.Equal(t, 0.9, out.LastReflection.Confidence)
	require.Len(t, *events, 1)
	assert.Equal(t, ObserveNodeID, (*events)[0].NodeID)
}

func TestObserve_ReflectionClientErrorIsExecutionError(t *testing.T) {
	client := &stubClient{err: errors.New("analyzer down")}
	node := Observe(LoopPolicy{Reflection: &ReflectionPolicy{Analyzer: client}}, "")
	rc, _ := newRC()

	in := State{
		ToolCalls:   []llm.ToolCall{{ID: "c1", Name: "search"}},
		ToolResults: []llm.ToolResult{{CallID: "c1", Name: "search", Content: "3 hits"}},
	}
	_, _, err := node.Run(rc, in)
	var execErr *graph.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestParseReflection_FallsBackToRawContentWhenUnparsable(t *testing.T) {
	analysis := parseReflection("not json at all")
	assert.Equal(t, "not json at all", analysis.Recommendation)
}

func TestParseReflection_ParsesWellFormedJSON(t *testing.T) {
	analysis := parseReflection(`{"should_pivot": true, "recommendation": "retry with a narrower query"}`)
	assert.True(t, analysis.ShouldPivot)
	assert.Equal(t, "retry with a narrower query", analysis.Recommendation)
}

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
	"github.com/loomstate/loomstate/pkg/tool"
)

type stubSource struct {
	results map[string]tool.Result
	errs    map[string]error
	cctx    *tool.CallContext
}

func (s *stubSource) ListTools() ([]llm.ToolSpec, error) { return nil, nil }

func (s *stubSource) CallTool(name string, args map[string]any) (tool.Result, error) {
	return s.CallToolWithContext(name, args, s.cctx)
}

func (s *stubSource) CallToolWithContext(name string, args map[string]any, cctx *tool.CallContext) (tool.Result, error) {
	if err, ok := s.errs[name]; ok {
		return tool.Result{}, err
	}
	return s.results[name], nil
}

func (s *stubSource) SetCallContext(cctx *tool.CallContext) { s.cctx = cctx }

func TestAct_ExecutesCallsInOrder(t *testing.T) {
	src := &stubSource{results: map[string]tool.Result{
		"search": {Text: "result A"},
	}}
	node := Act(src, ApprovalPolicy{}, ErrorPolicy{Kind: ErrorAlways})
	rc, _ := newRC()

	in := State{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search", Arguments: `{"q":"go"}`}}}
	out, next, err := node.Run(rc, in)
	require.NoError(t, err)
	assert.Equal(t, graph.Continue(), next)
	require.Len(t, out.ToolResults, 1)
	assert.Equal(t, "result A", out.ToolResults[0].Content)
	assert.False(t, out.ToolResults[0].IsError)
}

func TestAct_ErrorAlwaysConvertsFailureToToolResult(t *testing.T) {
	src := &stubSource{errs: map[string]error{"fail_tool": errors.New("boom")}}
	node := Act(src, ApprovalPolicy{}, ErrorPolicy{Kind: ErrorAlways, Template: "tool failed"})
	rc, _ := newRC()

	in := State{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "fail_tool", Arguments: `{}`}}}
	out, _, err := node.Run(rc, in)
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 1)
	assert.True(t, out.ToolResults[0].IsError)
	assert.Equal(t, "tool failed", out.ToolResults[0].Content)
}

func TestAct_ErrorNeverSurfacesExecutionError(t *testing.T) {
	src := &stubSource{errs: map[string]error{"fail_tool": errors.New("boom")}}
	node := Act(src, ApprovalPolicy{}, ErrorPolicy{Kind: ErrorNever})
	rc, _ := newRC()

	in := State{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "fail_tool", Arguments: `{}`}}}
	_, _, err := node.Run(rc, in)
	require.Error(t, err)
	var execErr *graph.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestAct_RequiresApprovalInterruptsFirstTime(t *testing.T) {
	src := &stubSource{results: map[string]tool.Result{"delete_file": {Text: "done"}}}
	node := Act(src, NewApprovalPolicy("delete_file"), ErrorPolicy{Kind: ErrorAlways})
	rc, _ := newRC()

	in := State{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "delete_file", Arguments: `{"path":"x"}`}}}
	_, _, err := node.Run(rc, in)
	require.Error(t, err)
	ie, ok := graph.AsInterrupt(err)
	require.True(t, ok)
	payload, ok := ie.Payload.(InterruptPayload)
	require.True(t, ok)
	assert.Equal(t, "delete_file", payload.Name)
}

func TestAct_ApprovedResultSkipsSecondInterrupt(t *testing.T) {
	src := &stubSource{results: map[string]tool.Result{"delete_file": {Text: "done"}}}
	node := Act(src, NewApprovalPolicy("delete_file"), ErrorPolicy{Kind: ErrorAlways})
	rc, _ := newRC()

	approved := true
	in := State{
		ToolCalls:      []llm.ToolCall{{ID: "c1", Name: "delete_file", Arguments: `{}`}},
		ApprovalResult: &approved,
	}
	out, _, err := node.Run(rc, in)
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 1)
	assert.Equal(t, "done", out.ToolResults[0].Content)
	assert.Nil(t, out.ApprovalResult, "a consumed approval must be reset for the next tool call batch")
}

func TestAct_RejectedApprovalRecordsRejectionWithoutCallingTool(t *testing.T) {
	called := false
	src := &stubSource{results: map[string]tool.Result{"delete_file": {Text: "done"}}}
	_ = called
	node := Act(src, NewApprovalPolicy("delete_file"), ErrorPolicy{Kind: ErrorAlways})
	rc, _ := newRC()

	rejected := false
	in := State{
		ToolCalls:      []llm.ToolCall{{ID: "c1", Name: "delete_file", Arguments: `{}`}},
		ApprovalResult: &rejected,
	}
	out, _, err := node.Run(rc, in)
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 1)
	assert.True(t, out.ToolResults[0].IsError)
	assert.Equal(t, "User rejected.", out.ToolResults[0].Content)
}

func TestAct_ParsesDoubleEncodedArguments(t *testing.T) {
	src := &stubSource{results: map[string]tool.Result{"search": {Text: "ok"}}}
	node := Act(src, ApprovalPolicy{}, ErrorPolicy{Kind: ErrorAlways})
	rc, _ := newRC()

	in := State{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search", Arguments: `"{\"q\":\"go\"}"`}}}
	out, _, err := node.Run(rc, in)
	require.NoError(t, err)
	require.Len(t, out.ToolResults, 1)
	assert.False(t, out.ToolResults[0].IsError)
}

func TestAct_InvalidArgumentsIsExecutionError(t *testing.T) {
	src := &stubSource{}
	node := Act(src, ApprovalPolicy{}, ErrorPolicy{Kind: ErrorAlways})
	rc, _ := newRC()

	in := State{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "search", Arguments: `not json`}}}
	_, _, err := node.Run(rc, in)
	require.Error(t, err)
	var execErr *graph.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomstate/loomstate/pkg/checkpoint"
	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
)

type stubClient struct {
	resp       llm.Response
	err        error
	streamErr  error
	streamResp llm.Response
}

func (c *stubClient) Invoke(messages []llm.Message, tools []llm.ToolSpec) (llm.Response, error) {
	return c.resp, c.err
}

func (c *stubClient) InvokeStream(messages []llm.Message, tools []llm.ToolSpec, sink llm.ChunkSink) (llm.Response, error) {
	sink("partial")
	return c.streamResp, c.streamErr
}

func newRC(modes ...graph.StreamMode) (*graph.RunContext, *[]graph.Event) {
	events := &[]graph.Event{}
	sink := graph.EventSinkFunc(func(ev graph.Event) { *events = append(*events, ev) })
	rc := graph.NewRunContext(context.Background(), checkpoint.RunnableConfig{ThreadID: "t1"}, graph.NewStreamModeSet(modes...), sink, nil, nil)
	return rc, events
}

func TestThink_AppendsAssistantMessage(t *testing.T) {
	client := &stubClient{resp: llm.Response{Content: "hello there", Usage: &llm.Usage{TotalTokens: 5}}}
	node := Think(client, nil)
	rc, _ := newRC()

	out, next, err := node.Run(rc, State{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, graph.Continue(), next)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "hello there", out.Messages[1].Content)
	assert.Equal(t, llm.RoleAssistant, out.Messages[1].Role)
	assert.Equal(t, 2, out.MessageCountAfterLastThink)
}

func TestThink_EmptyResponseFallsBackToPlaceholder(t *testing.T) {
	client := &stubClient{resp: llm.Response{}}
	node := Think(client, nil)
	rc, _ := newRC()

	out, _, err := node.Run(rc, State{})
	require.NoError(t, err)
	assert.Equal(t, fallbackContent, out.Messages[len(out.Messages)-1].Content)
}

func TestThink_PropagatesClientError(t *testing.T) {
	client := &stubClient{err: errors.New("rate limited")}
	node := Think(client, nil)
	rc, _ := newRC()

	_, _, err := node.Run(rc, State{})
	require.Error(t, err)
	var execErr *graph.ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestThink_AccumulatesTotalUsage(t *testing.T) {
	client := &stubClient{resp: llm.Response{Content: "ok", Usage: &llm.Usage{TotalTokens: 10}}}
	node := Think(client, nil)
	rc, _ := newRC()

	in := State{TotalUsage: &llm.Usage{TotalTokens: 20}}
	out, _, err := node.Run(rc, in)
	require.NoError(t, err)
	assert.Equal(t, 30, out.TotalUsage.TotalTokens)
}

func TestThink_StreamsWhenStreamMessagesRequested(t *testing.T) {
	client := &stubClient{streamResp: llm.Response{Content: "streamed", Usage: &llm.Usage{TotalTokens: 1}}}
	node := Think(client, nil)
	rc, events := newRC(graph.StreamMessages)

	_, _, err := node.Run(rc, State{})
	require.NoError(t, err)

	var sawChunk bool
	for _, ev := range *events {
		if _, ok := ev.Data.(MessageChunk); ok {
			sawChunk = true
		}
	}
	assert.True(t, sawChunk, "InvokeStream's chunk sink must surface as a StreamMessages event")
}

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

package compress

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomstate/loomstate/pkg/checkpoint"
	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
)

type stubSummarizer struct {
	calls int
}

func (s *stubSummarizer) Invoke(messages []llm.Message, tools []llm.ToolSpec) (llm.Response, error) {
	s.calls++
	return llm.Response{Content: "condensed summary"}, nil
}

func (s *stubSummarizer) InvokeStream(messages []llm.Message, tools []llm.ToolSpec, sink llm.ChunkSink) (llm.Response, error) {
	return s.Invoke(messages, tools)
}

func runNode(t *testing.T, n graph.Node[State], s State) State {
	t.Helper()
	rc := graph.NewRunContext(context.Background(), checkpoint.RunnableConfig{}, nil, nil, nil, nil)
	out, _, err := n.Run(rc, s)
	require.NoError(t, err)
	return out
}

func makeMessages(n int) []llm.Message {
	msgs := make([]llm.Message, 0, n+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: "you are an assistant"})
	for i := 0; i < n; i++ {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "message"})
	}
	return msgs
}

func TestPrune_NoOpBelowThreshold(t *testing.T) {
	pruneNode, _ := Nodes(Config{MaxMessages: 10, KeepLast: 5})
	in := State{Messages: makeMessages(5)}
	out := runNode(t, pruneNode, in)
	assert.Len(t, out.Messages, len(in.Messages))
}

func TestPrune_KeepsFirstSystemMessageAndTrailingWindow(t *testing.T) {
	pruneNode, _ := Nodes(Config{MaxMessages: 10, KeepLast: 3})
	in := State{Messages: makeMessages(20)}
	out := runNode(t, pruneNode, in)

	require.Len(t, out.Messages, 4) // system + 3 kept
	assert.Equal(t, llm.RoleSystem, out.Messages[0].Role, "the first System message must never be dropped")
}

func TestPrune_DoesNotMutateInputMessages(t *testing.T) {
	pruneNode, _ := Nodes(Config{MaxMessages: 5, KeepLast: 2})
	in := State{Messages: makeMessages(10)}
	_ = runNode(t, pruneNode, in)
	assert.Len(t, in.Messages, 11, "Clone must isolate the node's output from the caller's state")
}

func TestCompact_NoOpWithoutSummarizer(t *testing.T) {
	_, compactNode := Nodes(Config{MaxTokens: 1})
	in := State{Messages: makeMessages(50)}
	out := runNode(t, compactNode, in)
	assert.Equal(t, in.Messages, out.Messages)
}

func TestCompact_NoOpWhenNoNewHistorySinceLastThink(t *testing.T) {
	summarizer := &stubSummarizer{}
	_, compactNode := Nodes(Config{MaxTokens: 1, Summarizer: summarizer})
	msgs := makeMessages(50)
	in := State{Messages: msgs, MessageCountAfterLastThink: len(msgs)}
	out := runNode(t, compactNode, in)
	assert.Equal(t, 0, summarizer.calls)
	assert.Equal(t, in.Messages, out.Messages)
}

func TestCompact_FoldsMiddleWindowIntoSummary(t *testing.T) {
	summarizer := &stubSummarizer{}
	_, compactNode := Nodes(Config{MaxTokens: 1, Summarizer: summarizer})
	msgs := makeMessages(50)
	in := State{Messages: msgs, MessageCountAfterLastThink: 0}

	out := runNode(t, compactNode, in)
	assert.Equal(t, 1, summarizer.calls)
	require.True(t, len(out.Messages) < len(in.Messages), "compaction must shrink the message list")

	var foundSummary bool
	for _, m := range out.Messages {
		if strings.HasPrefix(m.Content, "SUMMARY:") {
			foundSummary = true
		}
	}
	assert.True(t, foundSummary)
	assert.Equal(t, llm.RoleSystem, out.Messages[0].Role, "the leading System message survives compaction")
}

func TestMiddleWindow_PreservesSystemAndTrailingMessage(t *testing.T) {
	msgs := makeMessages(5)
	start, end := middleWindow(msgs)
	assert.Equal(t, 1, start)
	assert.Equal(t, len(msgs)-1, end)
}

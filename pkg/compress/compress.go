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

// Package compress implements the context-compression sub-graph (C13):
// Prune then Compact, keeping a react loop's message history bounded
// without losing salient information.
//
// Grounded on the teacher's pkg/memory/summary_buffer.go token-budget
// summarization and pkg/memory/buffer_window.go message-count pruning,
// generalized into two graph.Node[State] stages and switched from the
// teacher's custom token counter to pkoukk/tiktoken-go directly.
package compress

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
)

// PruneNodeID and CompactNodeID are the conventional node ids in a
// compiled compression sub-graph.
const (
	PruneNodeID   = "compress_prune"
	CompactNodeID = "compress_compact"
)

// State is the narrow slice of an outer agent state the compression
// sub-graph needs; callers adapt their own state type to and from it
// (see react.asStateNode for the reactive loop's adapter).
type State struct {
	Messages                   []llm.Message
	MessageCountAfterLastThink int
}

func (s State) Clone() State {
	out := s
	out.Messages = append([]llm.Message(nil), s.Messages...)
	return out
}

// Config configures both stages.
type Config struct {
	// MaxMessages triggers Prune when message count exceeds it (T_prune).
	MaxMessages int
	// KeepLast is the target trailing message count kept after pruning
	// (K_keep).
	KeepLast int

	// MaxTokens triggers Compact when the token count exceeds it
	// (T_compact). Tokens are counted with Encoding (default "cl100k_base");
	// when that encoding cannot be loaded, the count is characters / 4.
	MaxTokens int
	Encoding  string

	// Summarizer performs the LLM call that produces the SUMMARY message.
	// If nil, Compact is a no-op.
	Summarizer llm.Client
}

const defaultEncoding = "cl100k_base"

func (c Config) maxMessages() int {
	if c.MaxMessages <= 0 {
		return 40
	}
	return c.MaxMessages
}

func (c Config) keepLast() int {
	if c.KeepLast <= 0 {
		return 20
	}
	return c.KeepLast
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return 6000
	}
	return c.MaxTokens
}

func (c Config) encoding() string {
	if c.Encoding == "" {
		return defaultEncoding
	}
	return c.Encoding
}

// Nodes builds the Prune and Compact graph.Node values for cfg.
func Nodes(cfg Config) (graph.Node[State], graph.Node[State]) {
	return prune(cfg), compact(cfg)
}

// prune drops the oldest non-system messages once the total exceeds
// cfg.maxMessages, preserving the first System message and the trailing
// cfg.keepLast messages (spec.md §4.9 Prune, invariant: first System
// message is never dropped).
func prune(cfg Config) graph.Node[State] {
	return graph.NewNodeFunc(PruneNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		out := state.Clone()
		msgs := out.Messages
		if len(msgs) <= cfg.maxMessages() {
			return out, graph.Continue(), nil
		}

		var system *llm.Message
		if len(msgs) > 0 && msgs[0].Role == llm.RoleSystem {
			m := msgs[0]
			system = &m
			msgs = msgs[1:]
		}

		keep := cfg.keepLast()
		if keep > len(msgs) {
			keep = len(msgs)
		}
		trimmed := append([]llm.Message(nil), msgs[len(msgs)-keep:]...)

		if system != nil {
			trimmed = append([]llm.Message{*system}, trimmed...)
		}
		out.Messages = trimmed
		return out, graph.Continue(), nil
	})
}

// compact summarizes a middle window of messages into a single
// assistant-authored "SUMMARY: ..." message once the token count exceeds
// cfg.maxTokens (spec.md §4.9 Compact). Skipped when there's been no new
// history since the last Think, and when there's nothing in the window to
// summarize.
func compact(cfg Config) graph.Node[State] {
	return graph.NewNodeFunc(CompactNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		out := state.Clone()
		if cfg.Summarizer == nil {
			return out, graph.Continue(), nil
		}
		if state.MessageCountAfterLastThink == len(state.Messages) {
			return out, graph.Continue(), nil // no new history since last Think
		}

		count, err := countTokens(out.Messages, cfg.encoding())
		if err != nil {
			return out, graph.Next{}, graph.NewExecutionError(CompactNodeID, "count tokens", err)
		}
		if count <= cfg.maxTokens() {
			return out, graph.Continue(), nil
		}

		start, end := middleWindow(out.Messages)
		if start >= end {
			return out, graph.Continue(), nil
		}

		window := out.Messages[start:end]
		summary, sumErr := summarize(cfg.Summarizer, window)
		if sumErr != nil {
			return out, graph.Next{}, graph.NewExecutionError(CompactNodeID, "summarize window", sumErr)
		}

		replaced := make([]llm.Message, 0, len(out.Messages)-(end-start)+1)
		replaced = append(replaced, out.Messages[:start]...)
		replaced = append(replaced, llm.Message{Role: llm.RoleAssistant, Content: "SUMMARY: " + summary})
		replaced = append(replaced, out.Messages[end:]...)
		out.Messages = replaced

		rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: CompactNodeID, Data: struct {
			Type            string `json:"type"`
			MessagesFolded  int    `json:"messages_folded"`
		}{Type: "compaction", MessagesFolded: end - start}})

		return out, graph.Continue(), nil
	})
}

// middleWindow preserves the first System message and the most recent
// assistant message (with everything after it), returning the [start, end)
// slice of everything in between. Without an assistant message after the
// System message, only the last message is preserved.
func middleWindow(msgs []llm.Message) (int, int) {
	start := 0
	if len(msgs) > 0 && msgs[0].Role == llm.RoleSystem {
		start = 1
	}
	end := len(msgs) - 1
	for i := len(msgs) - 1; i >= start; i-- {
		if msgs[i].Role == llm.RoleAssistant {
			end = i
			break
		}
	}
	if end < start {
		end = start
	}
	return start, end
}

func summarize(client llm.Client, window []llm.Message) (string, error) {
	var sb strings.Builder
	for _, m := range window {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	prompt := []llm.Message{
		{Role: llm.RoleSystem, Content: "Summarize the following conversation excerpt concisely, preserving facts and decisions."},
		{Role: llm.RoleUser, Content: sb.String()},
	}
	resp, err := client.Invoke(prompt, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func countTokens(msgs []llm.Message, encodingName string) (int, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		chars := 0
		for _, m := range msgs {
			chars += len(m.Content)
		}
		return chars / 4, nil
	}
	total := 0
	for _, m := range msgs {
		total += len(enc.Encode(m.Content, nil, nil))
	}
	return total, nil
}

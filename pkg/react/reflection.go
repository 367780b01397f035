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
	"encoding/json"
	"strings"

	"github.com/loomstate/loomstate/pkg/llm"
)

// ReflectionAnalysis is a structured, LLM-produced critique of a turn's
// tool results: which tools succeeded or failed, whether the run should
// change course, and why.
//
// Grounded on the teacher's pkg/reasoning/reflection.go ReflectionAnalysis
// (SuccessfulTools/FailedTools/CriticalErrors/Confidence/ShouldPivot/
// Recommendation), carried into the core as an opt-in Observe hook rather
// than a reasoning-strategy-internal call.
type ReflectionAnalysis struct {
	SuccessfulTools []string `json:"successful_tools"`
	FailedTools     []string `json:"failed_tools"`
	CriticalErrors  []string `json:"critical_errors"`
	Confidence      float64  `json:"confidence"`
	ShouldPivot     bool     `json:"should_pivot"`
	Recommendation  string   `json:"recommendation"`
}

// ReflectionPolicy enables Observe's self-critique hook. When nil (the
// LoopPolicy default), Observe skips reflection entirely — the core
// Observe contract (spec.md §4.8) is unaffected.
type ReflectionPolicy struct {
	Analyzer llm.Client
}

const reflectionPrompt = `Analyze the following tool results from one agent turn. Respond as JSON:
{"successful_tools": [...], "failed_tools": [...], "critical_errors": [...], "confidence": 0.0-1.0, "should_pivot": bool, "recommendation": "..."}`

func analyzeToolResults(analyzer llm.Client, results []llm.ToolResult) (*ReflectionAnalysis, error) {
	if len(results) == 0 {
		return &ReflectionAnalysis{Confidence: 1.0, Recommendation: "continue"}, nil
	}

	var sb strings.Builder
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = r.CallID
		}
		status := "ok"
		if r.IsError {
			status = "error"
		}
		sb.WriteString(name)
		sb.WriteString(" (")
		sb.WriteString(status)
		sb.WriteString("): ")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}

	resp, err := analyzer.Invoke([]llm.Message{
		{Role: llm.RoleSystem, Content: reflectionPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}, nil)
	if err != nil {
		return nil, err
	}

	return parseReflection(resp.Content), nil
}

func parseReflection(content string) *ReflectionAnalysis {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return &ReflectionAnalysis{Recommendation: content}
	}
	var a ReflectionAnalysis
	if err := json.Unmarshal([]byte(content[start:end+1]), &a); err != nil {
		return &ReflectionAnalysis{Recommendation: content}
	}
	return &a
}

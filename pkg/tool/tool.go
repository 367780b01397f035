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

// Package tool defines the tool-source contract (C9) the core consumes:
// list tools, invoke one with a per-call context, and an optional
// streaming hook for incremental output. Concrete tool implementations
// (file-system, web search, MCP transport) are out of scope (spec.md §1);
// this package only describes the interface and the request/response
// envelope shapes.
//
// Grounded on the teacher's pkg/tool/tool.go Tool/CallableTool/StreamingTool
// hierarchy, collapsed to the single ToolSource surface spec.md §6.2 calls
// for, and on pkg/tool/registry.go for schema-driven registration.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/loomstate/loomstate/pkg/llm"
)

// ErrorKind enumerates ToolSourceError variants (spec.md §6.2, §7).
type ErrorKind string

const (
	ErrInvalidInput ErrorKind = "invalid_input"
	ErrTransport    ErrorKind = "transport"
	ErrJSONRPC      ErrorKind = "json_rpc"
	ErrNotFound     ErrorKind = "not_found"
)

// SourceError is the typed failure surfaced by a ToolSource.
type SourceError struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %q: %s: %v", e.Tool, e.Kind, e.Err)
	}
	return fmt.Sprintf("tool %q: %s", e.Tool, e.Kind)
}

func (e *SourceError) Unwrap() error { return e.Err }

// CallContext carries per-call data a Tool's implementation may need:
// recent conversation history for context-aware tools, a streaming writer
// bound to the run's Custom event channel, and the thread/user identity
// from the run's config (spec.md §4.7 step 3).
type CallContext struct {
	Ctx             context.Context
	RecentMessages  []llm.Message
	ThreadID        string
	UserID          string
	StreamingWriter func(chunk string)
}

// Result is what a tool call produces; the core only ever looks at Text.
type Result struct {
	Text string
}

// Tool is a single invocable capability.
type Tool interface {
	Name() string
	Spec() llm.ToolSpec
	Call(args map[string]any, cctx *CallContext) (Result, error)
}

// Source lists and invokes tools (C9, spec.md §6.2).
type Source interface {
	ListTools() ([]llm.ToolSpec, error)

	// CallTool invokes name with no call context.
	CallTool(name string, args map[string]any) (Result, error)

	// CallToolWithContext invokes name with a CallContext.
	CallToolWithContext(name string, args map[string]any, cctx *CallContext) (Result, error)

	// SetCallContext scopes ctx around the next batch of tool calls; pass
	// nil to clear it (spec.md §6.2: "per-run context set around each tool
	// call batch").
	SetCallContext(cctx *CallContext)
}

// Registry is a simple in-process Source backed by a name->Tool map.
// Grounded on the teacher's pkg/tool/registry.go static registration
// pattern.
type Registry struct {
	tools   map[string]Tool
	current *CallContext
}

// NewRegistry builds a Registry over the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *Registry) ListTools() ([]llm.ToolSpec, error) {
	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec())
	}
	return specs, nil
}

func (r *Registry) CallTool(name string, args map[string]any) (Result, error) {
	return r.CallToolWithContext(name, args, r.current)
}

func (r *Registry) CallToolWithContext(name string, args map[string]any, cctx *CallContext) (Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return Result{}, &SourceError{Kind: ErrNotFound, Tool: name}
	}
	return t.Call(args, cctx)
}

func (r *Registry) SetCallContext(cctx *CallContext) { r.current = cctx }

var _ Source = (*Registry)(nil)

// SchemaOf generates a JSON schema for a Go type using invopop/jsonschema,
// for tools that want to derive their ToolSpec.InputSchema from a typed
// arguments struct instead of hand-writing the schema map.
func SchemaOf(v any) map[string]any {
	reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

// DecodeArgs decodes a raw arguments map into a typed struct, the
// counterpart to SchemaOf on the call side.
func DecodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("tool: build decoder: %w", err)
	}
	return dec.Decode(args)
}

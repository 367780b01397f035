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

import "fmt"

// CompilationErrorKind enumerates the typed compile-time failures of §4.1.
type CompilationErrorKind string

const (
	ErrNodeNotFound               CompilationErrorKind = "node_not_found"
	ErrInvalidConditionalPathMap  CompilationErrorKind = "invalid_conditional_path_map"
	ErrMissingStart               CompilationErrorKind = "missing_start"
	ErrMultipleStart              CompilationErrorKind = "multiple_start"
	ErrMissingEnd                 CompilationErrorKind = "missing_end"
	ErrInvalidChain               CompilationErrorKind = "invalid_chain"
	ErrNodeHasBothEdgeAndConditional CompilationErrorKind = "node_has_both_edge_and_conditional"
)

// CompilationError is returned by Compile when the graph definition is
// structurally invalid. It is never returned once a Graph has been built.
type CompilationError struct {
	Kind    CompilationErrorKind
	NodeID  string
	Message string
}

func (e *CompilationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("compile: %s (node=%q): %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("compile: %s: %s", e.Kind, e.Message)
}

// ExecutionError wraps any unrecoverable failure surfaced by a node or a
// collaborator during a run (spec.md §7 ExecutionFailed).
type ExecutionError struct {
	NodeID  string
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("execution failed at node %q: %s", e.NodeID, e.Message)
	}
	return fmt.Sprintf("execution failed: %s", e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// NewExecutionError builds an ExecutionError for the given node.
func NewExecutionError(nodeID, message string, cause error) *ExecutionError {
	return &ExecutionError{NodeID: nodeID, Message: message, Cause: cause}
}

// InterruptError is raised by a node requesting human input. The payload is
// an opaque JSON-serializable value (spec.md §4.5).
type InterruptError struct {
	NodeID  string
	Payload any
}

func (e *InterruptError) Error() string {
	return fmt.Sprintf("interrupted at node %q", e.NodeID)
}

// AsInterrupt reports whether err is an *InterruptError and returns it.
func AsInterrupt(err error) (*InterruptError, bool) {
	ie, ok := err.(*InterruptError)
	return ie, ok
}

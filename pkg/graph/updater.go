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

// Updater merges a node's output into the run's current state (C1). The
// default is a full replace; callers needing field-level merge (e.g.
// append-only message history) supply a FuncUpdater.
type Updater[S any] interface {
	Apply(current S, output S) S
}

// ReplaceUpdater overwrites the entire state with the node's output. This
// is the default used when a graph is compiled without an explicit
// updater.
type ReplaceUpdater[S any] struct{}

func (ReplaceUpdater[S]) Apply(current S, output S) S { return output }

// FuncUpdater adapts a merge function to Updater, letting callers implement
// field-level semantics (e.g. accumulate messages) without writing a named
// type.
type FuncUpdater[S any] struct {
	Merge func(current S, output S) S
}

func (u FuncUpdater[S]) Apply(current S, output S) S {
	return u.Merge(current, output)
}

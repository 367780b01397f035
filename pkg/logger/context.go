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

package logger

import "log/slog"

// ForRun returns a logger scoped to a single graph run, tagging every
// record with its thread id so multi-tenant checkpoint storage (C2) stays
// correlatable in aggregated log output.
func ForRun(threadID string) *slog.Logger {
	return GetLogger().With("thread_id", threadID)
}

// ForNode returns l scoped to one node's execution step, for the executor's
// per-node task/error events (spec.md §4.2 steps 4-8).
func ForNode(l *slog.Logger, nodeID string, step int) *slog.Logger {
	return l.With("node_id", nodeID, "step", step)
}

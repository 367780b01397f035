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

// Package got implements the graph-of-thoughts agent topology (C16):
// PlanGraph produces a task DAG, then ExecuteGraph runs a ready-set
// scheduler over it, dispatching each task node to a bounded reactive
// sub-run, with optional adaptive expansion of complex nodes.
//
// Grounded on the teacher's workflow/executors.go DAGExecutor (dependency-
// gated DAG execution over a config.WorkflowConfig) and workflow/executor.go's
// ExecutionContext result bookkeeping, generalized from a statically
// user-authored DAG into an LLM-planned one with a real ready-set scheduler
// in place of the teacher's sequential placeholder.
package got

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/loomstate/loomstate/pkg/graph"
	"github.com/loomstate/loomstate/pkg/llm"
	"github.com/loomstate/loomstate/pkg/react"
)

const (
	PlanGraphNodeID    = "plan_graph"
	ExecuteGraphNodeID = "execute_graph"

	maxTotalNodes    = 64
	resultSummaryCap = 200
	predecessorCap   = 500
	subTaskTurnCap   = 10
)

// NodeStatus is a task node's scheduling state.
type NodeStatus string

const (
	StatusPending NodeStatus = "pending"
	StatusRunning NodeStatus = "running"
	StatusDone    NodeStatus = "done"
	StatusFailed  NodeStatus = "failed"
)

// TaskNode is a single unit of work in the planned graph.
type TaskNode struct {
	ID          string
	Description string
	Status      NodeStatus
	Result      string
	Error       string
}

// TaskEdge is a dependency: From must be Done before To can run.
type TaskEdge struct{ From, To string }

// State is the graph-of-thoughts state.
type State struct {
	Task string // the overall task description, fixed at plan time

	Nodes map[string]*TaskNode
	Edges []TaskEdge

	// Adaptive enables complexity classification + expansion (spec.md §4.11).
	Adaptive bool
}

func (s State) Clone() State {
	out := s
	out.Nodes = make(map[string]*TaskNode, len(s.Nodes))
	for id, n := range s.Nodes {
		cp := *n
		out.Nodes[id] = &cp
	}
	out.Edges = append([]TaskEdge(nil), s.Edges...)
	return out
}

// PlanEvent is emitted by PlanGraph (spec.md §4.11 GotPlan).
type PlanEvent struct {
	NodeCount int
	EdgeCount int
	NodeIDs   []string
}

type NodeStartEvent struct{ ID string }
type NodeCompleteEvent struct{ ID, Summary string }
type NodeFailedEvent struct{ ID, Error string }
type ExpandEvent struct {
	ParentID   string
	NodesAdded int
	EdgesAdded int
}

const planPrompt = `Break the task into a directed acyclic graph of sub-tasks.
Respond as JSON: {"nodes": [{"id": "...", "description": "..."}], "edges": [{"from": "...", "to": "..."}]}.
Node ids must be unique short slugs. Edges mean "from" must finish before "to" starts.`

// PlanGraph asks client for a task DAG and validates it (spec.md §4.11
// PlanGraph).
func PlanGraph(client llm.Client) graph.Node[State] {
	return graph.NewNodeFunc(PlanGraphNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		resp, err := client.Invoke([]llm.Message{
			{Role: llm.RoleSystem, Content: planPrompt},
			{Role: llm.RoleUser, Content: state.Task},
		}, nil)
		if err != nil {
			return state, graph.Next{}, graph.NewExecutionError(PlanGraphNodeID, "plan call failed", err)
		}

		nodes, edges, err := parsePlan(resp.Content)
		if err != nil {
			return state, graph.Next{}, graph.NewExecutionError(PlanGraphNodeID, "plan parse failed", err)
		}
		if err := validateAcyclic(nodes, edges); err != nil {
			return state, graph.Next{}, graph.NewExecutionError(PlanGraphNodeID, "plan graph invalid", err)
		}

		out := state.Clone()
		out.Nodes = nodes
		out.Edges = edges

		ids := make([]string, 0, len(nodes))
		for id := range nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: PlanGraphNodeID, Data: PlanEvent{
			NodeCount: len(nodes), EdgeCount: len(edges), NodeIDs: ids,
		}})

		return out, graph.Continue(), nil
	})
}

func parsePlan(content string) (map[string]*TaskNode, []TaskEdge, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, nil, fmt.Errorf("no JSON object in plan response")
	}
	var raw struct {
		Nodes []struct{ ID, Description string } `json:"nodes"`
		Edges []struct{ From, To string }         `json:"edges"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, nil, fmt.Errorf("decode plan: %w", err)
	}

	nodes := make(map[string]*TaskNode, len(raw.Nodes))
	for _, n := range raw.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate node id %q", n.ID)
		}
		nodes[n.ID] = &TaskNode{ID: n.ID, Description: n.Description, Status: StatusPending}
	}
	edges := make([]TaskEdge, 0, len(raw.Edges))
	for _, e := range raw.Edges {
		if _, ok := nodes[e.From]; !ok {
			return nil, nil, fmt.Errorf("edge references unknown node %q", e.From)
		}
		if _, ok := nodes[e.To]; !ok {
			return nil, nil, fmt.Errorf("edge references unknown node %q", e.To)
		}
		edges = append(edges, TaskEdge{From: e.From, To: e.To})
	}
	return nodes, edges, nil
}

func validateAcyclic(nodes map[string]*TaskNode, edges []TaskEdge) error {
	adj := make(map[string][]string, len(nodes))
	for _, e := range edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return fmt.Errorf("cycle detected at %q", next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}
	for id := range nodes {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func readySet(state State) []string {
	var ready []string
	for id, n := range state.Nodes {
		if n.Status != StatusPending {
			continue
		}
		blocked := false
		for _, e := range state.Edges {
			if e.To == id && state.Nodes[e.From].Status != StatusDone {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

func predecessorResults(state State, id string) string {
	var parts []string
	for _, e := range state.Edges {
		if e.To == id {
			parts = append(parts, truncate(state.Nodes[e.From].Result, predecessorCap))
		}
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// SubTaskRunner executes one task-graph node as a bounded reactive
// sub-task and returns the final assistant reply (spec.md §4.11 step 5).
type SubTaskRunner func(rc *graph.RunContext, task string) (string, error)

// NewReactSubTaskRunner builds a SubTaskRunner from a react.Config, capping
// turns at subTaskTurnCap.
func NewReactSubTaskRunner(cfg react.Config) SubTaskRunner {
	cfg.Loop.MaxTurns = subTaskTurnCap
	return func(rc *graph.RunContext, task string) (string, error) {
		g, err := react.Build(cfg)
		if err != nil {
			return "", err
		}
		ex := graph.NewExecutor(g)
		initial := react.State{Messages: []llm.Message{{Role: llm.RoleUser, Content: task}}}
		final, err := ex.Invoke(rc.Ctx, initial, graph.Options{Config: rc.Config})
		if err != nil {
			return "", err
		}
		if len(final.Messages) == 0 {
			return "", nil
		}
		return final.Messages[len(final.Messages)-1].Content, nil
	}
}

// ClassifyFunc decides whether a node's description is complex enough to
// warrant expansion. DefaultClassify is the heuristic from spec.md §4.11;
// callers may substitute an LLM-backed classifier.
type ClassifyFunc func(description string) bool

var complexKeywords = []string{"analyze", "compare", "prove", "derive", "evaluate", "compute", "calculate", "determine", "investigate", "synthesize"}

// DefaultClassify flags descriptions over 100 characters or containing a
// complexity keyword (spec.md §4.11).
func DefaultClassify(description string) bool {
	if len(description) > 100 {
		return true
	}
	lower := strings.ToLower(description)
	for _, kw := range complexKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ExpandFunc asks the model to expand a complex node into a sub-graph
// (spec.md §4.11 Expansion). The model client is bound at construction
// time (see NewExpandFunc) rather than passed per call.
type ExpandFunc func(parentID, description string) (map[string]*TaskNode, []TaskEdge, error)

const expandPromptTmpl = `The sub-task %q ("%s") is complex. Break it into a small sub-graph of simpler steps.
Respond as JSON: {"nodes": [{"id": "...", "description": "..."}], "edges": [{"from": "...", "to": "..."}]}.`

// NewExpandFunc returns the default ExpandFunc: a single LLM call against
// client, with generated ids prefixed "<parent>_sub_<i>" and non-resolving
// edges dropped (spec.md §4.11).
func NewExpandFunc(client llm.Client) ExpandFunc {
	return func(parentID, description string) (map[string]*TaskNode, []TaskEdge, error) {
		return defaultExpand(client, parentID, description)
	}
}

func defaultExpand(client llm.Client, parentID, description string) (map[string]*TaskNode, []TaskEdge, error) {
	resp, err := client.Invoke([]llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(expandPromptTmpl, parentID, description)},
	}, nil)
	if err != nil {
		return nil, nil, err
	}

	rawNodes, rawEdges, err := parsePlan(resp.Content)
	if err != nil {
		return nil, nil, err
	}

	rawIDs := make([]string, 0, len(rawNodes))
	for rawID := range rawNodes {
		rawIDs = append(rawIDs, rawID)
	}
	sort.Strings(rawIDs)

	prefixed := make(map[string]*TaskNode, len(rawNodes))
	idMap := make(map[string]string, len(rawNodes))
	for i, rawID := range rawIDs {
		n := rawNodes[rawID]
		newID := fmt.Sprintf("%s_sub_%d", parentID, i)
		idMap[n.ID] = newID
		prefixed[newID] = &TaskNode{ID: newID, Description: n.Description, Status: StatusPending}
	}

	var edges []TaskEdge
	for _, e := range rawEdges {
		from, fromOK := resolveExpandedID(e.From, parentID, idMap)
		to, toOK := resolveExpandedID(e.To, parentID, idMap)
		if fromOK && toOK {
			edges = append(edges, TaskEdge{From: from, To: to})
		}
	}

	hasParentEdge := false
	for _, e := range edges {
		if e.From == parentID || e.To == parentID {
			hasParentEdge = true
			break
		}
	}
	if !hasParentEdge {
		return nil, nil, fmt.Errorf("expansion of %q produced no edge touching the parent", parentID)
	}

	return prefixed, edges, nil
}

func resolveExpandedID(id, parentID string, idMap map[string]string) (string, bool) {
	if id == parentID {
		return id, true
	}
	if mapped, ok := idMap[id]; ok {
		return mapped, true
	}
	return "", false
}

// ExecuteGraph builds the ready-set scheduler node (spec.md §4.11
// ExecuteGraph).
func ExecuteGraph(run SubTaskRunner, classify ClassifyFunc, expand ExpandFunc) graph.Node[State] {
	if classify == nil {
		classify = DefaultClassify
	}
	return graph.NewNodeFunc(ExecuteGraphNodeID, func(rc *graph.RunContext, state State) (State, graph.Next, error) {
		out := state.Clone()

		ready := readySet(out)
		if len(ready) == 0 {
			return out, graph.End(), nil
		}

		id := ready[0]
		node := out.Nodes[id]
		node.Status = StatusRunning
		rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ExecuteGraphNodeID, Data: NodeStartEvent{ID: id}})

		subTask := fmt.Sprintf("Overall task: %s\n\nContext from prior steps:\n%s\n\nYour step: %s",
			out.Task, predecessorResults(out, id), node.Description)

		result, err := run(rc, subTask)
		if err != nil {
			node.Status = StatusFailed
			node.Error = err.Error()
			rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ExecuteGraphNodeID, Data: NodeFailedEvent{ID: id, Error: err.Error()}})
			return out, graph.End(), nil
		}

		node.Status = StatusDone
		node.Result = result
		rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ExecuteGraphNodeID, Data: NodeCompleteEvent{ID: id, Summary: truncate(result, resultSummaryCap)}})

		if out.Adaptive && expand != nil && classify(node.Description) && len(out.Nodes) < maxTotalNodes {
			newNodes, newEdges, err := expand(id, node.Description)
			if err == nil && len(out.Nodes)+len(newNodes) <= maxTotalNodes {
				for nid, n := range newNodes {
					out.Nodes[nid] = n
				}
				out.Edges = append(out.Edges, newEdges...)
				rc.Emit(graph.Event{Mode: graph.StreamCustom, NodeID: ExecuteGraphNodeID, Data: ExpandEvent{
					ParentID: id, NodesAdded: len(newNodes), EdgesAdded: len(newEdges),
				}})
			}
		}

		if len(readySet(out)) > 0 {
			return out, graph.GoTo(ExecuteGraphNodeID), nil
		}
		return out, graph.End(), nil
	})
}

// Build compiles plan_graph -> execute_graph, with execute_graph returning
// GoTo(execute_graph) while the ready-set is non-empty and End once it is
// empty.
func Build(planner llm.Client, run SubTaskRunner, classify ClassifyFunc, expand ExpandFunc) (*graph.Graph[State], error) {
	b := graph.NewBuilder[State]()
	b.AddNode(PlanGraph(planner))
	b.AddNode(ExecuteGraph(run, classify, expand))
	b.SetEntry(PlanGraphNodeID)
	b.AddEdge(PlanGraphNodeID, ExecuteGraphNodeID)
	b.AddEdge(ExecuteGraphNodeID, graph.End_)
	return b.Compile()
}

// Package loomstate implements the core of an LLM agent-orchestration
// runtime: a generic state-graph execution engine that drives several agent
// topologies (a reactive think/act/observe loop, a deliberative
// multi-phase variant, a tree-of-thoughts explorer, and a graph-of-thoughts
// DAG executor) over a pluggable tool and model substrate, with streaming,
// checkpointing, interrupts, retries, and long-term memory hooks.
//
// # Packages
//
// The engine lives in pkg/graph: compilation (Builder/Compile) and
// execution (Executor) of a node graph with linear edges, conditional
// routing, retries, interrupts, checkpointing, and an ordered multi-mode
// event stream.
//
//	import "github.com/loomstate/loomstate/pkg/graph"
//
// Persistence contracts live in pkg/checkpoint (per-thread time-travel)
// and pkg/store (namespaced KV with optional semantic search). The
// reactive, tree-of-thoughts, graph-of-thoughts and deliberative
// topologies are built on top of pkg/graph in pkg/react, pkg/tot,
// pkg/got and pkg/deliberative respectively.
//
// pkg/compress prunes and summarizes conversation state between turns.
// pkg/tool and pkg/llm define the tool-source and model-client contracts
// a host application implements. pkg/config, pkg/logger and
// pkg/observability carry the ambient configuration, logging, tracing and
// metrics concerns; cmd/loomstate is a thin CLI shell over them.
//
// # Status
//
// loomstate is pre-1.0. APIs may change between minor versions.
package loomstate

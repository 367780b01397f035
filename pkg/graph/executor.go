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

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/loomstate/loomstate/pkg/checkpoint"
	"github.com/loomstate/loomstate/pkg/logger"
	"github.com/loomstate/loomstate/pkg/observability"
	"github.com/loomstate/loomstate/pkg/store"
)

// TaskEvent is the payload carried by StreamTasks events.
type TaskEvent struct {
	NodeID   string
	Attempt  int
	Started  bool
	Error    error
	Duration time.Duration
}

// Executor runs a compiled Graph to completion, or until an interrupt or
// unrecoverable error, emitting events as configured by the caller's
// StreamModeSet (C8, spec.md §4.2).
type Executor[S any] struct {
	graph *Graph[S]
}

// NewExecutor wraps a compiled Graph for execution.
func NewExecutor[S any](g *Graph[S]) *Executor[S] {
	return &Executor[S]{graph: g}
}

// Options configures a single Invoke/Stream call.
type Options struct {
	Config      checkpoint.RunnableConfig
	StreamModes StreamModeSet
	Sink        EventSink
	Store       store.Store
	Checkpoint  checkpoint.Saver

	// GraphName labels Metrics.RunDuration; defaults to "" when unset.
	GraphName string
	// Metrics is optional; nil disables run/node/retry instrumentation.
	Metrics *observability.Metrics
	// Tracer is optional; nil disables per-node spans.
	Tracer trace.Tracer
}

// Invoke runs the graph to completion (or interrupt/error) and returns the
// final state. It runs the same loop as Stream with StreamValues always
// enabled, keeps the last StreamValues state, and still forwards every
// event to opts.Sink when one is set.
func (ex *Executor[S]) Invoke(ctx context.Context, initial S, opts Options) (S, error) {
	var final S
	have := false
	collector := EventSinkFunc(func(ev Event) {
		if ev.Mode == StreamValues {
			if s, ok := ev.Data.(S); ok {
				final = s
				have = true
			}
		}
	})
	wrapped := opts
	wrapped.Sink = fanout(opts.Sink, collector)
	if wrapped.StreamModes == nil {
		wrapped.StreamModes = NewStreamModeSet(StreamValues)
	} else {
		wrapped.StreamModes[StreamValues] = struct{}{}
	}

	err := ex.run(ctx, initial, wrapped)
	if !have {
		final = initial
	}
	return final, err
}

// endSpan closes span if non-nil, recording err as the span status.
func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func fanout(sinks ...EventSink) EventSink {
	live := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return EventSinkFunc(func(ev Event) {
		for _, s := range live {
			s.Emit(ev)
		}
	})
}

// Stream runs the graph, emitting events on opts.Sink as each step
// completes, and returns the terminal error (nil on normal completion).
func (ex *Executor[S]) Stream(ctx context.Context, initial S, opts Options) error {
	return ex.run(ctx, initial, opts)
}

// run is the shared step loop for Invoke and Stream (spec.md §4.2 steps 1-9).
func (ex *Executor[S]) run(ctx context.Context, initial S, opts Options) error {
	g := ex.graph
	rc := NewRunContext(ctx, opts.Config, opts.StreamModes, opts.Sink, opts.Store, opts.Checkpoint)
	runLog := logger.ForRun(opts.Config.ThreadID)
	runStart := time.Now()

	state := initial
	current := g.entry
	step := 0

	if opts.Config.ResumeFromNodeID != "" {
		current = opts.Config.ResumeFromNodeID
	}

	for {
		if err := ctx.Err(); err != nil {
			opts.Metrics.ObserveRun(opts.GraphName, "canceled", time.Since(runStart))
			return err
		}
		if current == End_ {
			rc.Emit(Event{Mode: StreamValues, NodeID: current, Data: state})
			opts.Metrics.ObserveRun(opts.GraphName, "completed", time.Since(runStart))
			return nil
		}

		node, ok := g.nodes[current]
		if !ok {
			return NewExecutionError(current, "node not found during execution", nil)
		}

		rc.Step = step
		policy := g.retryPolicy(current)
		nodeLog := logger.ForNode(runLog, current, step)

		var span trace.Span
		if opts.Tracer != nil {
			var nodeCtx context.Context
			nodeCtx, span = observability.StartNodeSpan(ctx, opts.Tracer, current)
			rc.Ctx = nodeCtx
		}

		var (
			out     S
			next    Next
			runErr  error
			attempt int
		)
		start := time.Now()
		for {
			rc.Emit(Event{Mode: StreamTasks, NodeID: current, Data: TaskEvent{NodeID: current, Attempt: attempt, Started: true}})

			in := state
			if c, ok := any(state).(Cloneable[S]); ok {
				in = c.Clone()
			}
			out, next, runErr = node.Run(rc, in)

			if runErr == nil {
				break
			}
			if _, isInterrupt := AsInterrupt(runErr); isInterrupt {
				break
			}
			if !policy.ShouldRetry(attempt) {
				break
			}
			delay := policy.Delay(attempt)
			rc.Emit(Event{Mode: StreamTasks, NodeID: current, Data: TaskEvent{NodeID: current, Attempt: attempt, Error: runErr}})
			nodeLog.Warn("node attempt failed, retrying", "attempt", attempt, "delay", delay, "error", runErr)
			opts.Metrics.ObserveRetry(current)
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			attempt++
		}
		duration := time.Since(start)
		rc.Emit(Event{Mode: StreamTasks, NodeID: current, Data: TaskEvent{NodeID: current, Attempt: attempt, Error: runErr, Duration: duration}})

		if runErr != nil {
			if ie, ok := AsInterrupt(runErr); ok {
				opts.Metrics.ObserveNode(current, duration, nil)
				nodeLog.Info("node interrupted", "reason", ie.Error())
				ex.checkpointInterrupt(rc, current, state, step)
				endSpan(span, ie)
				return ie
			}
			opts.Metrics.ObserveNode(current, duration, runErr)
			nodeLog.Error("node run failed", "error", runErr)
			endSpan(span, runErr)
			return NewExecutionError(current, "node run failed", runErr)
		}
		opts.Metrics.ObserveNode(current, duration, nil)
		nodeLog.Debug("node completed", "duration", duration)
		endSpan(span, nil)

		merged := g.updater.Apply(state, out)
		state = merged

		rc.Emit(Event{Mode: StreamValues, NodeID: current, Data: state})
		rc.Emit(Event{Mode: StreamUpdates, NodeID: current, Data: out})

		dest, ok := g.next(current, next, state)
		if !ok {
			return NewExecutionError(current, "no route resolved", nil)
		}

		if rc.Checkpoint != nil && rc.WantsMode(StreamCheckpoints) {
			ex.writeCheckpoint(rc, state, step, checkpoint.SourceLoop)
		}

		current = dest
		step++
	}
}

func (ex *Executor[S]) checkpointInterrupt(rc *RunContext, nodeID string, state S, step int) {
	if rc.Checkpoint == nil {
		return
	}
	cfg := rc.Config
	cfg.ResumeFromNodeID = nodeID
	env, err := checkpoint.NewJSONEnvelope(state)
	if err != nil {
		return
	}
	id, err := checkpoint.NewID()
	if err != nil {
		return
	}
	_ = rc.Checkpoint.Put(cfg, checkpoint.Checkpoint{
		ID:            id,
		ChannelValues: env,
		Metadata:      checkpoint.Metadata{Source: checkpoint.SourceInput, Step: step},
	})
}

func (ex *Executor[S]) writeCheckpoint(rc *RunContext, state S, step int, src checkpoint.Source) {
	env, err := checkpoint.NewJSONEnvelope(state)
	if err != nil {
		return
	}
	id, err := checkpoint.NewID()
	if err != nil {
		return
	}
	cp := checkpoint.Checkpoint{
		ID:            id,
		ChannelValues: env,
		Metadata:      checkpoint.Metadata{Source: src, Step: step},
	}
	if err := rc.Checkpoint.Put(rc.Config, cp); err == nil {
		rc.Emit(Event{Mode: StreamCheckpoints, NodeID: "", Data: cp})
	}
}

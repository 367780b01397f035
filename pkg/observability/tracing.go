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

// Package observability wires OpenTelemetry tracing and Prometheus metrics
// around graph node execution and LLM/tool calls.
//
// Grounded on the teacher's pkg/observability/tracer.go InitGlobalTracer/
// GetTracer pair, narrowed to accept a caller-supplied trace.SpanExporter
// instead of hard-wiring an OTLP/gRPC exporter — the concrete exporter a
// host ships with is its own concern, not this module's (spec.md §1).
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig controls whether and how spans are sampled.
type TracingConfig struct {
	Enabled      bool
	SamplingRate float64
	Exporter     sdktrace.SpanExporter // nil is fine when Enabled is false
}

// NewTracerProvider builds a trace.TracerProvider. When cfg.Enabled is
// false or cfg.Exporter is nil, it returns a no-op provider so
// instrumented code pays no cost and needs no nil checks.
func NewTracerProvider(cfg TracingConfig) trace.TracerProvider {
	if !cfg.Enabled || cfg.Exporter == nil {
		return noop.NewTracerProvider()
	}
	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(cfg.Exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
	)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns a named tracer from the global provider, for packages
// that don't hold a TracerProvider reference directly.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartNodeSpan starts a span named "node."+nodeID, the unit spec.md §4.2
// instruments per step.
func StartNodeSpan(ctx context.Context, tracer trace.Tracer, nodeID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "node."+nodeID)
}

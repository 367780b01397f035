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

package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracerProvider_DisabledReturnsNoop(t *testing.T) {
	tp := NewTracerProvider(TracingConfig{Enabled: false})
	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "x")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestNewTracerProvider_NilExporterReturnsNoop(t *testing.T) {
	tp := NewTracerProvider(TracingConfig{Enabled: true, Exporter: nil})
	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "x")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestNewTracerProvider_EnabledWithExporterRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := NewTracerProvider(TracingConfig{Enabled: true, SamplingRate: 1.0, Exporter: exporter})
	sdkTP, ok := tp.(*sdktrace.TracerProvider)
	require.True(t, ok)
	defer sdkTP.Shutdown(context.Background())

	tracer := tp.Tracer("test")
	_, span := StartNodeSpan(context.Background(), tracer, "think")
	span.End()

	require.NoError(t, sdkTP.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "node.think", spans[0].Name)
}

func TestNewTracerProvider_ZeroSamplingRateDefaultsToAlwaysSample(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := NewTracerProvider(TracingConfig{Enabled: true, Exporter: exporter})
	sdkTP := tp.(*sdktrace.TracerProvider)
	defer sdkTP.Shutdown(context.Background())

	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "x")
	span.End()

	require.NoError(t, sdkTP.ForceFlush(context.Background()))
	assert.Len(t, exporter.GetSpans(), 1)
}

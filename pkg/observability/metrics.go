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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects run/node/retry counters and histograms on their own
// registry. The teacher's pkg/observability/metrics.go (AGPL-3.0) covers a
// much larger surface — agent/LLM/tool/session/HTTP/RAG metrics for a
// full server; no text from that file is reproduced here, only the
// CounterVec/HistogramVec-per-concern shape, narrowed to what spec.md's
// graph engine itself can emit (run counts, node latency, retries) since
// LLM/tool/session/HTTP metrics belong to the host application.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	NodeDuration *prometheus.HistogramVec
	NodeErrors   *prometheus.CounterVec
	RetriesTotal *prometheus.CounterVec
}

// NewMetrics builds a Metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loomstate_runs_total",
			Help: "Total graph runs, labeled by terminal outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loomstate_run_duration_seconds",
			Help:    "Graph run wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"graph"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loomstate_node_duration_seconds",
			Help:    "Per-node execution duration, including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loomstate_node_errors_total",
			Help: "Node executions that returned a non-interrupt error.",
		}, []string{"node"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loomstate_node_retries_total",
			Help: "Retry attempts issued by the executor's retry policy.",
		}, []string{"node"}),
	}
	reg.MustRegister(m.RunsTotal, m.RunDuration, m.NodeDuration, m.NodeErrors, m.RetriesTotal)
	return m
}

// ObserveNode records one node execution's duration and, if non-nil, its
// terminal error.
func (m *Metrics) ObserveNode(nodeID string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.NodeDuration.WithLabelValues(nodeID).Observe(d.Seconds())
	if err != nil {
		m.NodeErrors.WithLabelValues(nodeID).Inc()
	}
}

// ObserveRetry records one retry attempt for nodeID.
func (m *Metrics) ObserveRetry(nodeID string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(nodeID).Inc()
}

// ObserveRun records a completed run's outcome and duration.
func (m *Metrics) ObserveRun(graphName, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.WithLabelValues(graphName).Observe(d.Seconds())
}

// Handler exposes the registry on /metrics for a Prometheus scraper.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

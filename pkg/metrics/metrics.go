// Package metrics holds the Prometheus collectors shared by the agent runtime
// and the HTTP server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "policypilot"

var (
	Registry = prometheus.NewRegistry()

	RoutesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "routes_total",
		Help:      "Turns routed by the supervisor, by route label.",
	}, []string{"route"})

	ClassificationFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classification_fallbacks_total",
		Help:      "Supervisor outputs that did not match a route label.",
	})

	ToolCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Tool invocations by agent, tool and outcome.",
	}, []string{"agent", "tool", "status"})

	LoopExhaustedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loop_exhausted_total",
		Help:      "Reason-act runs that hit the model invocation ceiling.",
	}, []string{"agent"})

	TurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Completed conversation turns by outcome.",
	}, []string{"status"})

	IngestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_total",
		Help:      "Background ingestion jobs by category and outcome.",
	}, []string{"category", "status"})

	IngestedChunksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_chunks_total",
		Help:      "Chunks added to the policy index.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		RoutesTotal,
		ClassificationFallbacksTotal,
		ToolCallsTotal,
		LoopExhaustedTotal,
		TurnsTotal,
		IngestTotal,
		IngestedChunksTotal,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

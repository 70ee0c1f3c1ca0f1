// Package metrics exposes Prometheus instrumentation for agent runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ModelCalls counts completion attempts, including retried ones.
	ModelCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_model_calls_total",
		Help: "Completion API attempts, including retries.",
	})

	// ModelRetries counts attempts that ended in a retryable failure.
	ModelRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_model_retries_total",
		Help: "Completion attempts retried after rate-limit or overload.",
	})

	// ModelCallDuration observes wall time per completion attempt.
	ModelCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outreach_model_call_duration_seconds",
		Help:    "Wall time of completion API attempts.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// ToolExecutions counts tool invocations by tool name and outcome.
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_tool_executions_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	// ForcedContinuations counts completion-policy corrective messages.
	ForcedContinuations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_forced_continuations_total",
		Help: "Times an agent was pushed to continue after stopping early.",
	})

	// TranscriptResets counts context-window resets.
	TranscriptResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_transcript_resets_total",
		Help: "Times a long transcript was replaced with a fresh one.",
	})

	// ProspectsSaved counts contacts persisted, by confidence tier.
	ProspectsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_prospects_saved_total",
		Help: "Prospects persisted, by verification status.",
	}, []string{"status"})
)

// Serve exposes /metrics on addr in a background goroutine. Errors from the
// listener are delivered on the returned channel.
func Serve(addr string) <-chan error {
	errc := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		errc <- srv.ListenAndServe()
	}()
	return errc
}

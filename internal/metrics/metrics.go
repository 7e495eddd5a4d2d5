// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChunksAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinganalyst_chunks_analyzed_total",
		Help: "Chunks sent to the model, by outcome",
	}, []string{"outcome"})

	ChunkAnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pinganalyst_chunk_analysis_duration_seconds",
		Help:    "Time to analyze one chunk including retries",
		Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160},
	}, []string{"provider"})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinganalyst_retry_total",
		Help: "Model call retries, by attempt that failed",
	}, []string{"attempt"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pinganalyst_frames_extracted_total",
		Help: "Frames captured across all matches",
	})

	MatchesFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinganalyst_matches_finished_total",
		Help: "Matches that reached a final status",
	}, []string{"status"})

	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pinganalyst_active_matches",
		Help: "Matches currently being extracted or analyzed",
	})

	AnalyzeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinganalyst_analyze_requests_total",
		Help: "Requests to the analyze-match endpoint, by HTTP status",
	}, []string{"code"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_upstream_requests_total",
			Help: "Calls to hosted APIs by pipeline stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_upstream_duration_seconds",
			Help:    "Latency of calls to hosted APIs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	IngestedChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_ingested_chunks_total",
			Help: "Chunks embedded and written to the vector store",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "code"},
	)
)

// ObserveUpstream records one hosted-API call.
func ObserveUpstream(stage string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(stage, outcome).Inc()
	UpstreamDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

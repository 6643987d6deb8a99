package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_pooling"

var (
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "match_decisions_total", Help: "Match decisions by mode and outcome"},
		[]string{"mode", "outcome"},
	)
	MatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Time spent producing one match decision", Buckets: prometheus.DefBuckets},
		[]string{"mode"},
	)
	CandidatesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "candidates_evaluated_total", Help: "Candidates seen by the matcher, by stage result"},
		[]string{"result"},
	)

	OracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "route_oracle_requests_total", Help: "Route oracle requests by provider and result"},
		[]string{"provider", "result"},
	)
	OracleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "route_oracle_latency_seconds", Help: "Route oracle request latency", Buckets: prometheus.DefBuckets},
		[]string{"provider"},
	)
	RouteCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "route_cache_lookups_total", Help: "Route cache lookups by result"},
		[]string{"result"},
	)

	MatchesCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "matches_committed_total", Help: "Matches written to the repository"},
		[]string{"mode"},
	)
	ClaimConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "claim_conflicts_total", Help: "Matches discarded because the partner was already claimed"},
		[]string{"source"},
	)
	PoolingPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "pooling_passes_total", Help: "Pooling scheduler passes by result"},
		[]string{"result"},
	)
	PoolingPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "pooling_pass_duration_seconds", Help: "Pooling pass duration"})
	RequestsExpired     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "requests_expired_total", Help: "Open requests failed because their departure passed"})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "match_events_published_total", Help: "Match events published by backend and result"},
		[]string{"backend", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

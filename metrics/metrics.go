package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SrcRequestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "src_request_total",
	Help: "The total number of requests by endpoint to the speedrun.com API",
}, []string{"endpoint"})

var SrcResponseCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "src_response_total",
	Help: "The total number of responses by status code from the speedrun.com API",
}, []string{"status_code"})

var SrcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "src_request_duration_seconds",
	Help: "Duration of requests to the speedrun.com API",
}, []string{"endpoint"})

var CacheLookupCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "remote_cache_lookup_total",
	Help: "Remote cache lookups by outcome (hit, miss, stale)",
}, []string{"outcome"})

var PageSizeReductionCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "src_page_size_reduction_total",
	Help: "Number of times a paginated fetch halved its page size after a server error",
})

var LeaderboardsScoredCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "leaderboards_scored_total",
	Help: "Leaderboards scored, labelled by the guard that zeroed them or 'scored'",
}, []string{"result"})

var ScoringTaskFailureCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scoring_task_failure_total",
	Help: "Scoring tasks that failed, by error kind",
}, []string{"kind"})

var AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "player_aggregation_duration_s",
	Help: "Duration of a full player score aggregation",
	Buckets: []float64{
		0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600,
	},
})

var RunsPerAggregation = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "player_aggregation_runs",
	Help:    "Number of runs scored per aggregation",
	Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
})

var GameValuesRecordedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "game_values_recorded_total",
	Help: "Game values forwarded to the search index sinks, by sink and outcome",
}, []string{"sink", "outcome"})

var QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "sql_query_duration_seconds",
	Help: "Duration of sql queries in seconds",
}, []string{"query"})

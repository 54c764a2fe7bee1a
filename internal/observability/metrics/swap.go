package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "calls_total",
			Help:      "Upstream provider calls by outcome (ok or the unavailable reason).",
		},
		[]string{"provider", "outcome"},
	)

	upstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "call_duration_seconds",
			Help:      "Latency of upstream provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.025, 2, 8),
		},
		[]string{"provider"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache name and result.",
		},
		[]string{"cache", "result"},
	)

	pipelineExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "exhausted_total",
			Help:      "Lookups where every provider in a pipeline failed.",
		},
		[]string{"pipeline"},
	)

	swapTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "transitions_total",
			Help:      "Sequencer state transitions by target state.",
		},
		[]string{"state"},
	)
)

// ObserveUpstreamCall 记录一次上游调用及其结果。
func ObserveUpstreamCall(provider, outcome string, duration time.Duration) {
	upstreamCalls.WithLabelValues(provider, outcome).Inc()
	upstreamLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveCacheLookup 记录缓存命中情况。
func ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(cache, result).Inc()
}

// ObservePipelineExhausted 记录价格或报价管道全部失败。
func ObservePipelineExhausted(pipeline string) {
	pipelineExhausted.WithLabelValues(pipeline).Inc()
}

// ObserveSwapTransition 记录状态机迁移。
func ObserveSwapTransition(state string) {
	swapTransitions.WithLabelValues(state).Inc()
}

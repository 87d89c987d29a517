package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiProviderFailures,
		aiProviderAvailable,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider.",
		},
		[]string{"provider"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider.",
		},
		[]string{"provider"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "success"},
	)

	aiProviderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_provider_failures_total",
			Help: "Failed provider attempts by normalized error kind.",
		},
		[]string{"provider", "kind"},
	)

	aiProviderAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_provider_available",
			Help: "1 when the provider circuit is closed, 0 while it is open.",
		},
		[]string{"provider"},
	)
)

func ObserveAICall(provider string, tokensIn, tokensOut int, latencyMs int64, success bool) {
	p := norm(provider)
	if tokensIn > 0 {
		aiTokensIn.WithLabelValues(p).Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		aiTokensOut.WithLabelValues(p).Add(float64(tokensOut))
	}
	aiCallsLatencyMs.WithLabelValues(p, strconv.FormatBool(success)).Observe(float64(latencyMs))
}

func IncProviderFailure(provider, kind string) {
	aiProviderFailures.WithLabelValues(norm(provider), norm(kind)).Inc()
}

func SetProviderAvailable(provider string, available bool) {
	v := 0.0
	if available {
		v = 1
	}
	aiProviderAvailable.WithLabelValues(norm(provider)).Set(v)
}

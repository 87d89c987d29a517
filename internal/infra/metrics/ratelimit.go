package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(rateLimitDecisionsTotal) }

var rateLimitDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratelimit_decisions_total",
		Help: "Rate limiter decisions by scope and result.",
	},
	[]string{"scope", "result"}, // e.g., scope="submit", result="allowed"
)

func IncRateLimitDecision(scope string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	rateLimitDecisionsTotal.WithLabelValues(norm(scope), result).Inc()
}

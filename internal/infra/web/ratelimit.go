package web

import (
	"net/http"

	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/infra/api"
	"ai-prompt-enhancer/internal/infra/logging"
	"ai-prompt-enhancer/internal/infra/metrics"
	"ai-prompt-enhancer/internal/infra/ratelimit"
)

// limit gates a route with policy and always attaches the X-RateLimit-* headers.
func (s *Server) limit(scope string, policy ratelimit.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if policy == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := policy.Apply(w, r, clientID(r))
			ratelimit.WriteHeaders(w, d)
			metrics.IncRateLimitDecision(scope, d.Allowed)
			if !d.Allowed {
				logging.With(r.Context(), s.log).Info().Str("scope", scope).Int("retry_after", d.RetryAfterSeconds()).Msg("rate limited")
				api.WriteError(w, http.StatusTooManyRequests, domain.CodeRateLimitExceeded, nil, d.RetryAfterSeconds())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

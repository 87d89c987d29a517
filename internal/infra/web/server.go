package web

import (
	"context"
	"net/http"
	"time"

	"ai-prompt-enhancer/internal/domain/model"
	ai "ai-prompt-enhancer/internal/infra/adapters/ai"
	"ai-prompt-enhancer/internal/infra/api"
	"ai-prompt-enhancer/internal/infra/logging"
	"ai-prompt-enhancer/internal/infra/ratelimit"
	"ai-prompt-enhancer/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthReporter exposes provider circuit state.
type HealthReporter interface {
	Health() []ai.ProviderHealth
}

type Options struct {
	Resolver       ClientResolver
	SubmitPolicy   ratelimit.Policy
	StatusPolicy   ratelimit.Policy
	Health         HealthReporter // optional
	RequestTimeout time.Duration

	// retry hints returned with capacity rejections
	QueueFullRetry   time.Duration
	ClientLimitRetry time.Duration
}

type Server struct {
	queue usecase.QueueUseCase
	opts  Options
	log   *zerolog.Logger
}

func NewServer(queue usecase.QueueUseCase, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{queue: queue, opts: opts, log: &l}
}

// Routes builds the HTTP surface: the two queue endpoints plus health and metrics.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.TraceID(),
		s.identify,
		api.RequestLog(s.log),
		api.Recover(s.log),
		api.Timeout(s.opts.RequestTimeout),
	)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/queue", func(r chi.Router) {
		r.With(s.limit("submit", s.opts.SubmitPolicy)).Post("/submit", s.handleSubmit)
		r.With(s.limit("status", s.opts.StatusPolicy)).Get("/status/{jobId}", s.handleStatus)
	})
	return r
}

type ctxKey struct{}

// identify resolves the client once per request and stores it for handlers and logs.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.opts.Resolver.Resolve(r)
		ctx := context.WithValue(logging.WithClientID(r.Context(), id), ctxKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientID(r *http.Request) string {
	v, _ := r.Context().Value(ctxKey{}).(string)
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := struct {
		Status    string              `json:"status"`
		Queue     model.QueueStats    `json:"queue"`
		Providers []ai.ProviderHealth `json:"providers,omitempty"`
	}{Status: "ok", Queue: s.queue.Stats()}
	if s.opts.Health != nil {
		body.Providers = s.opts.Health.Health()
	}
	api.WriteJSON(w, http.StatusOK, body)
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

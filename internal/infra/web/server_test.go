//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-prompt-enhancer/internal/domain"
	"ai-prompt-enhancer/internal/domain/model"
	ai "ai-prompt-enhancer/internal/infra/adapters/ai"
	"ai-prompt-enhancer/internal/infra/ratelimit"
	"ai-prompt-enhancer/internal/usecase"

	"github.com/rs/zerolog"
)

type stubQueue struct {
	submitErr error
	statusErr error
	status    *usecase.StatusOutput

	gotSubmit usecase.SubmitInput
	gotClient string
	gotJob    string
}

func (s *stubQueue) Submit(_ context.Context, in usecase.SubmitInput) (*usecase.SubmitOutput, error) {
	s.gotSubmit = in
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &usecase.SubmitOutput{
		JobID:                "01JOB",
		Position:             3,
		EstimatedWaitSeconds: 30,
		Stats:                model.QueueStats{Pending: 3},
	}, nil
}

func (s *stubQueue) Status(_ context.Context, clientID, jobID string) (*usecase.StatusOutput, error) {
	s.gotClient, s.gotJob = clientID, jobID
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.status, nil
}

func (s *stubQueue) Stats() model.QueueStats { return model.QueueStats{Pending: 1, Processing: 1} }

type stubHealth struct{}

func (stubHealth) Health() []ai.ProviderHealth {
	return []ai.ProviderHealth{{Name: "gemini", Available: true}}
}

func newTestServer(q usecase.QueueUseCase, opts Options) http.Handler {
	nop := zerolog.Nop()
	return NewServer(q, opts, &nop).Routes()
}

func do(h http.Handler, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.9:5555"
	for _, m := range mutate {
		m(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("body is not json: %v (%s)", err, rr.Body.String())
	}
	return m
}

func TestSubmit_Accepted(t *testing.T) {
	q := &stubQueue{}
	h := newTestServer(q, Options{})

	rr := do(h, http.MethodPost, "/queue/submit", `{"kind":"prompt","payload":{"task":"x"}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("want 202 got %d (%s)", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["success"] != true || body["jobId"] != "01JOB" || body["position"] != float64(3) || body["estimatedWaitSeconds"] != float64(30) {
		t.Fatalf("unexpected body %v", body)
	}
	if stats, _ := body["queueStats"].(map[string]any); stats["pending"] != float64(3) {
		t.Fatalf("queueStats missing: %v", body)
	}
	if q.gotSubmit.Kind != "prompt" || q.gotSubmit.ClientID != "203.0.113.9" {
		t.Fatalf("use case input: %+v", q.gotSubmit)
	}
	if q.gotSubmit.RequestID == "" || q.gotSubmit.RequestID != rr.Header().Get("X-Request-ID") {
		t.Fatalf("request id must be propagated and echoed")
	}
}

func TestSubmit_MalformedBody(t *testing.T) {
	h := newTestServer(&stubQueue{}, Options{})
	rr := do(h, http.MethodPost, "/queue/submit", `{"kind":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("want 400 got %d", rr.Code)
	}
	errBody, _ := decode(t, rr)["error"].(map[string]any)
	if errBody["code"] != string(domain.CodeInvalidRequest) {
		t.Fatalf("unexpected error %v", errBody)
	}
}

func TestSubmit_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		code       domain.ErrorCode
		retryAfter float64
	}{
		{"validation", &domain.ValidationError{Fields: map[string]string{"task": "is required"}}, 400, domain.CodeValidation, 0},
		{"queue full", domain.ErrQueueFull, 429, domain.CodeQueueFull, 30},
		{"client limit", domain.ErrClientLimitExceeded, 429, domain.CodeClientLimitExceeded, 60},
		{"unexpected", context.Canceled, 500, domain.CodeUnknown, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(&stubQueue{submitErr: tc.err}, Options{
				QueueFullRetry:   30 * time.Second,
				ClientLimitRetry: time.Minute,
			})
			rr := do(h, http.MethodPost, "/queue/submit", `{"kind":"prompt","payload":{}}`)
			if rr.Code != tc.status {
				t.Fatalf("want %d got %d", tc.status, rr.Code)
			}
			body := decode(t, rr)
			if body["success"] != false {
				t.Fatalf("success must be false: %v", body)
			}
			errBody, _ := body["error"].(map[string]any)
			if errBody["code"] != string(tc.code) || errBody["message"] != domain.MessageFor(tc.code) {
				t.Fatalf("unexpected error body %v", errBody)
			}
			if tc.retryAfter > 0 && errBody["retryAfter"] != tc.retryAfter {
				t.Fatalf("retryAfter: want %v got %v", tc.retryAfter, errBody["retryAfter"])
			}
			if tc.code == domain.CodeValidation {
				fields, _ := errBody["fields"].(map[string]any)
				if fields["task"] != "is required" {
					t.Fatalf("fields missing: %v", errBody)
				}
			}
		})
	}
}

func TestStatus_Completed(t *testing.T) {
	q := &stubQueue{status: &usecase.StatusOutput{
		Job: model.Job{
			ID:     "01JOB",
			Status: model.JobStatusCompleted,
			Result: &model.JobResult{Content: "better prompt", ProviderUsed: "gemini"},
		},
		Stats: model.QueueStats{},
	}}
	h := newTestServer(q, Options{Resolver: ClientResolver{SessionHeader: "X-Session-Token"}})

	rr := do(h, http.MethodGet, "/queue/status/01JOB", "", func(r *http.Request) {
		r.Header.Set("X-Session-Token", "abc")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("want 200 got %d", rr.Code)
	}
	if q.gotJob != "01JOB" || q.gotClient != "session:abc" {
		t.Fatalf("use case got client=%q job=%q", q.gotClient, q.gotJob)
	}
	body := decode(t, rr)
	result, _ := body["result"].(map[string]any)
	if body["status"] != "completed" || result["content"] != "better prompt" || result["providerUsed"] != "gemini" {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["position"]; ok {
		t.Fatalf("position must be omitted for terminal jobs: %v", body)
	}
	if _, ok := body["error"]; ok {
		t.Fatalf("error must be omitted on success: %v", body)
	}
}

func TestStatus_NotFound(t *testing.T) {
	h := newTestServer(&stubQueue{statusErr: domain.ErrJobNotFound}, Options{})
	rr := do(h, http.MethodGet, "/queue/status/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("want 404 got %d", rr.Code)
	}
}

func TestRateLimit_RejectsWithHeaders(t *testing.T) {
	l, err := ratelimit.NewLimiter([]byte("test-secret-0123456789"), "status")
	if err != nil {
		t.Fatal(err)
	}
	nop := zerolog.Nop()
	policy := &ratelimit.CookiePolicy{Limiter: l, CookieName: "rl_status", Window: time.Minute, Max: 1, Log: &nop}
	q := &stubQueue{status: &usecase.StatusOutput{Job: model.Job{ID: "j", Status: model.JobStatusPending}}}
	h := newTestServer(q, Options{StatusPolicy: policy})

	first := do(h, http.MethodGet, "/queue/status/j", "")
	if first.Code != http.StatusOK || first.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("first request: %d %v", first.Code, first.Header())
	}
	cookies := first.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected rate limit cookie, got %v", cookies)
	}

	second := do(h, http.MethodGet, "/queue/status/j", "", func(r *http.Request) { r.AddCookie(cookies[0]) })
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429 got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" || second.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing headers: %v", second.Header())
	}
	errBody, _ := decode(t, second)["error"].(map[string]any)
	if errBody["code"] != string(domain.CodeRateLimitExceeded) {
		t.Fatalf("unexpected error %v", errBody)
	}

	// submit scope is independent
	if rr := do(h, http.MethodPost, "/queue/submit", `{"kind":"prompt","payload":{}}`, func(r *http.Request) { r.AddCookie(cookies[0]) }); rr.Code != http.StatusAccepted {
		t.Fatalf("submit should not be limited by the status scope, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(&stubQueue{}, Options{Health: stubHealth{}})
	rr := do(h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("want 200 got %d", rr.Code)
	}
	body := decode(t, rr)
	providers, _ := body["providers"].([]any)
	if body["status"] != "ok" || len(providers) != 1 {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestClientResolver(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:1234"
	req.Header.Set("X-Forwarded-For", "192.0.2.7, 10.0.0.1")

	if got := (ClientResolver{}).Resolve(req); got != "198.51.100.1" {
		t.Fatalf("untrusted forwarding must use the peer, got %q", got)
	}
	if got := (ClientResolver{TrustForwardedFor: true}).Resolve(req); got != "192.0.2.7" {
		t.Fatalf("trusted forwarding must use the first hop, got %q", got)
	}
	req.Header.Set("X-Session-Token", " tok ")
	if got := (ClientResolver{SessionHeader: "X-Session-Token", TrustForwardedFor: true}).Resolve(req); got != "session:tok" {
		t.Fatalf("session header wins, got %q", got)
	}
}

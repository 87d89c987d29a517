//go:build !integration

package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"
)

func TestKindFromStatus(t *testing.T) {
	cases := map[int]ErrorKind{
		401: KindInvalidCredentials,
		403: KindInvalidCredentials,
		404: KindNotFound,
		429: KindQuotaExceeded,
		408: KindTimeout,
		504: KindTimeout,
		503: KindNetwork,
		400: KindInvalidRequest,
		422: KindInvalidRequest,
		500: KindUnknown,
	}
	for code, want := range cases {
		if got := kindFromStatus(code); got != want {
			t.Errorf("status %d: want %s got %s", code, want, got)
		}
	}
}

func TestNormalize_Transport(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", &url.Error{Op: "Post", URL: "https://example.invalid", Err: context.Canceled}, KindCanceled},
		{"url error", &url.Error{Op: "Post", URL: "https://example.invalid", Err: dial}, KindNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "example.invalid"}, KindNetwork},
		{"opaque", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pe := normalize("p", tc.err)
			if pe.Kind != tc.want {
				t.Fatalf("want %s got %s", tc.want, pe.Kind)
			}
			if !errors.Is(pe, tc.err) {
				t.Fatalf("original error must stay reachable")
			}
		})
	}
}

func TestClassifyGemini(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, KindQuotaExceeded},
		{genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, KindInvalidCredentials},
		{genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, KindInvalidRequest},
		{genai.APIError{Status: "DEADLINE_EXCEEDED"}, KindTimeout},
		{genai.APIError{Code: 500, Status: "UNAVAILABLE"}, KindNetwork},
		{fmt.Errorf("wrapped: %w", genai.APIError{Code: 404, Status: "NOT_FOUND"}), KindNotFound},
	}
	for _, tc := range cases {
		if got := classifyGemini(tc.err); got.Kind != tc.want || got.Provider != "gemini" {
			t.Errorf("%v: want %s got %+v", tc.err, tc.want, got)
		}
	}
}

func TestClassifyOpenAI(t *testing.T) {
	// openai.Error formats its Request, so it is not wrapped with fmt here
	pe := classifyOpenAI(&openai.Error{StatusCode: 401})
	if pe.Kind != KindInvalidCredentials || pe.StatusCode != 401 {
		t.Fatalf("unexpected %+v", pe)
	}
	if classifyOpenAI(&openai.Error{StatusCode: 429}).Retryable() {
		t.Fatalf("quota errors must not be retried")
	}
}

func TestProviderError_MessageHasNoUpstreamText(t *testing.T) {
	pe := &ProviderError{Provider: "openai", Kind: KindQuotaExceeded, StatusCode: 429, Err: errors.New("secret body")}
	if got := pe.Error(); got != "openai: quota_exceeded (status 429)" {
		t.Fatalf("unexpected message %q", got)
	}
}

package web

import (
	"net"
	"net/http"
	"strings"
)

// ClientResolver derives the identity used for quotas and job ownership:
// an explicit session header, then the first X-Forwarded-For hop when the
// proxy is trusted, then the peer address.
type ClientResolver struct {
	SessionHeader     string
	TrustForwardedFor bool
}

func (c ClientResolver) Resolve(r *http.Request) string {
	if c.SessionHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(c.SessionHeader)); v != "" {
			return "session:" + v
		}
	}

	if c.TrustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Policy applies one rate-limit scope to an inbound request and persists any
// client-held state on the response.
type Policy interface {
	Apply(w http.ResponseWriter, r *http.Request, clientID string) Decision
}

// CookiePolicy keeps the window history in a signed cookie.
type CookiePolicy struct {
	Limiter    *Limiter
	CookieName string
	Secure     bool
	Window     time.Duration
	Max        int
	Log        *zerolog.Logger
}

func (p *CookiePolicy) Apply(w http.ResponseWriter, r *http.Request, _ string) Decision {
	var token string
	if c, err := r.Cookie(p.CookieName); err == nil {
		token = c.Value
	}
	d, next, err := p.Limiter.Check(token, p.Window, p.Max)
	if err != nil {
		// the decision stands; the client simply keeps its previous cookie
		p.Log.Warn().Err(err).Str("cookie", p.CookieName).Msg("rate limit token not re-signed")
		return d
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.CookieName,
		Value:    next,
		Path:     "/",
		MaxAge:   int(p.Window.Seconds()) + 1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return d
}

// KeyedBackend is a server-side sliding window keyed by client identity.
type KeyedBackend interface {
	Check(ctx context.Context, key string, window time.Duration, max int) (Decision, error)
}

// KeyedPolicy uses a server-side backend. Backend failures fail open.
type KeyedPolicy struct {
	Backend KeyedBackend
	Scope   string
	Window  time.Duration
	Max     int
	Log     *zerolog.Logger
	Now     func() time.Time
}

func (p *KeyedPolicy) Apply(_ http.ResponseWriter, r *http.Request, clientID string) Decision {
	d, err := p.Backend.Check(r.Context(), "rate_limit:"+p.Scope+":"+clientID, p.Window, p.Max)
	if err == nil {
		return d
	}
	p.Log.Warn().Err(err).Str("scope", p.Scope).Msg("rate limit backend unavailable, allowing request")
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return Decision{Allowed: true, Limit: p.Max, Remaining: p.Max, ResetAt: now().Add(p.Window)}
}

// WriteHeaders attaches the X-RateLimit-* headers, and Retry-After on rejection.
func WriteHeaders(w http.ResponseWriter, d Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
	}
}

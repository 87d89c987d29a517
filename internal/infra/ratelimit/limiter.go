// Package ratelimit implements a sliding-window limiter whose history lives in a
// signed client-held token, so no per-client server state is required.
package ratelimit

import (
	"errors"
	"sort"
	"time"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is only set when the request was rejected.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

// Evaluate applies the sliding window to history (any order) at now. It returns
// the decision and the pruned history to persist, which includes now when the
// request was admitted.
func Evaluate(history []time.Time, now time.Time, window time.Duration, max int) (Decision, []time.Time) {
	cutoff := now.Add(-window)
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })

	d := Decision{Limit: max}
	if max > 0 && len(kept) < max {
		kept = append(kept, now)
		d.Allowed = true
		d.Remaining = max - len(kept)
		d.ResetAt = kept[0].Add(window)
		return d, kept
	}

	if max > 0 && len(kept) > max {
		// only the newest max entries can still influence future decisions
		kept = kept[len(kept)-max:]
	}
	d.ResetAt = now.Add(window)
	if len(kept) > 0 {
		d.ResetAt = kept[0].Add(window)
	}
	d.RetryAfter = d.ResetAt.Sub(now)
	if d.RetryAfter < time.Second {
		d.RetryAfter = time.Second
	}
	return d, kept
}

// Limiter checks requests against a history carried in a signed token.
type Limiter struct {
	codec *TokenCodec
	now   func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter builds a limiter whose tokens are signed with secret and bound to scope.
func NewLimiter(secret []byte, scope string, opts ...Option) (*Limiter, error) {
	if len(secret) == 0 {
		return nil, errors.New("ratelimit: empty secret")
	}
	l := &Limiter{codec: NewTokenCodec(secret, scope), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Check decides whether one more request is allowed and returns the updated
// token the caller must persist. A missing, forged or unparsable token counts as
// an empty history.
func (l *Limiter) Check(token string, window time.Duration, max int) (Decision, string, error) {
	history := l.codec.Decode(token)
	d, kept := Evaluate(history, l.now(), window, max)
	next, err := l.codec.Encode(kept)
	if err != nil {
		return d, "", err
	}
	return d, next, nil
}

package ratelimit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCodec signs and verifies the timestamp history with HS256.
//
// The token is tamper-evident only: the history is readable by the client.
// Stripping or replacing the cookie loses the holder's own history, so any
// verification failure decodes to an empty history rather than an error.
type TokenCodec struct {
	secret []byte
	scope  string
}

type windowClaims struct {
	Timestamps []int64 `json:"ts"` // unix milliseconds, ascending
	jwt.RegisteredClaims
}

func NewTokenCodec(secret []byte, scope string) *TokenCodec {
	return &TokenCodec{secret: secret, scope: scope}
}

func (c *TokenCodec) Encode(history []time.Time) (string, error) {
	ts := make([]int64, 0, len(history))
	for _, t := range history {
		ts = append(ts, t.UnixMilli())
	}
	claims := windowClaims{
		Timestamps:       ts,
		RegisteredClaims: jwt.RegisteredClaims{Subject: c.scope},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *TokenCodec) Decode(token string) []time.Time {
	if token == "" {
		return nil
	}
	var claims windowClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject(c.scope))
	if err != nil || !parsed.Valid {
		return nil
	}
	out := make([]time.Time, 0, len(claims.Timestamps))
	for _, ms := range claims.Timestamps {
		out = append(out, time.UnixMilli(ms))
	}
	return out
}

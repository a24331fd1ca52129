package middleware

import (
	"log/slog"
	"net/http"
)

// TokenHeader is the header GitLab reads a private token from
const TokenHeader = "PRIVATE-TOKEN"

// SudoParam is the query parameter selecting the user GitLab acts as
const SudoParam = "sudo"

// AuthTransport authenticates every outgoing GitLab request with an admin
// private token and, when Sudo is set, performs it as that user
type AuthTransport struct {
	Token string
	Sudo  string
	Next  http.RoundTripper
}

// NewAuthTransport wraps next with token and sudo injection
func NewAuthTransport(token, sudo string, next http.RoundTripper) *AuthTransport {
	return &AuthTransport{Token: token, Sudo: sudo, Next: next}
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	r := req.Clone(req.Context())

	if t.Token == "" {
		slog.Warn("Sending GitLab request without a private token",
			"method", r.Method,
			"path", r.URL.Path,
		)
	} else {
		r.Header.Set(TokenHeader, t.Token)
	}

	if t.Sudo != "" {
		q := r.URL.Query()
		q.Set(SudoParam, t.Sudo)
		r.URL.RawQuery = q.Encode()
	}

	return next(t.Next).RoundTrip(r)
}

func next(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

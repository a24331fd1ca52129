package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingTransport logs every outgoing HTTP request with its status and duration
type LoggingTransport struct {
	Next http.RoundTripper
}

// NewLoggingTransport wraps next with request logging
func NewLoggingTransport(next http.RoundTripper) *LoggingTransport {
	return &LoggingTransport{Next: next}
}

// RoundTrip implements http.RoundTripper
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := next(t.Next).RoundTrip(req)

	duration := time.Since(start)
	if err != nil {
		slog.Debug("HTTP request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	slog.Debug("HTTP request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)

	return resp, nil
}

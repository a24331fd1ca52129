// Package notify posts a run summary to a webhook once an import finishes.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxAttempts bounds delivery tries per notification
const maxAttempts = 3

// Payload is the JSON body sent to the webhook
type Payload struct {
	RunID      string    `json:"run_id"`
	Project    string    `json:"project"`
	DryRun     bool      `json:"dry_run"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Updated    int       `json:"updated"`
	Inserted   int       `json:"inserted"`
	Closed     int       `json:"closed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Warnings   int       `json:"warnings"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Notifier delivers run summaries
type Notifier interface {
	Notify(ctx context.Context, payload Payload) error
}

// Webhook POSTs payloads as JSON to a fixed endpoint
type Webhook struct {
	endpoint   string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// NewWebhook creates a webhook notifier for endpoint
func NewWebhook(endpoint string) *Webhook {
	return &Webhook{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Second
			return backoff.WithMaxRetries(bo, maxAttempts-1)
		},
	}
}

// Notify sends payload, retrying network errors and non-success responses
func (w *Webhook) Notify(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload: %w", err)
	}

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("error creating request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)
		if err != nil {
			slog.Warn("Error sending webhook", "attempt", attempt, "max_attempts", maxAttempts, "error", err)
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Warn("Webhook returned non-success status code",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"status_code", resp.StatusCode,
			)
			return fmt.Errorf("received non-success status code: %d", resp.StatusCode)
		}

		slog.Debug("Webhook sent successfully", "endpoint", w.endpoint, "status", resp.Status)
		return nil
	}, backoff.WithContext(w.newBackOff(), ctx))
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.endpoint, err)
	}

	return nil
}

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	URL     string
	Source  string        // reported as "source" in the payload
	Timeout time.Duration // per attempt, default 10s
	Retries int           // extra attempts on transport errors and 5xx
	Backoff time.Duration // wait between attempts, default 500ms
}

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier with one retry.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return NewWebhookNotifierWithConfig(WebhookConfig{URL: url, Source: "pullback-engine", Retries: 1})
}

// NewWebhookNotifierWithConfig creates a webhook notifier from cfg.
func NewWebhookNotifierWithConfig(cfg WebhookConfig) *WebhookNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &WebhookNotifier{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type webhookPayload struct {
	Source  string `json:"source,omitempty"`
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
	CycleID string `json:"cycle_id,omitempty"`
	TS      string `json:"ts"`
}

// Send delivers the alert, retrying server-side failures.
func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Source:  w.cfg.Source,
		Level:   string(alert.Level),
		Title:   alert.Title,
		Message: alert.Message,
		CycleID: alert.CycleID,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook: %w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(w.cfg.Backoff):
			}
		}
		retry, err := w.post(ctx, body)
		if err == nil {
			log.Printf("[webhook] sent alert: %s", alert.Title)
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

// post makes one delivery attempt and reports whether a failure is worth
// retrying.
func (w *WebhookNotifier) post(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("webhook: send: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook: server status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, fmt.Errorf("webhook: rejected with status %d", resp.StatusCode)
	}
	return false, nil
}

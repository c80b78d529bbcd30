package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/scoracle-settlement/internal/settlement"
)

// WebhookSender posts notices as JSON to a webhook URL.
// Nil-safe: when not configured, all methods are no-ops.
type WebhookSender struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookSender creates a sender for url. Returns nil if url is empty
// (notices disabled).
func NewWebhookSender(url string, logger *slog.Logger) *WebhookSender {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Send posts a single notice.
func (s *WebhookSender) Send(ctx context.Context, n Notice) error {
	if s == nil {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notice: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Hook returns a scheduler completion hook that posts the run's notices.
// Failures are logged and never affect the run.
func (s *WebhookSender) Hook() settlement.Hook {
	return func(ctx context.Context, run settlement.Run) {
		if s == nil {
			return
		}
		for _, n := range Build(run) {
			if err := s.Send(ctx, n); err != nil {
				s.logger.Warn("Notice send failed", "run_id", run.ID, "level", n.Level, "error", err)
			}
		}
	}
}

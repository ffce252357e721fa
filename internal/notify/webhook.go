package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rewired-gh/postureguard/internal/models"
)

// Webhook posts alerts as JSON to an HTTP endpoint.
type Webhook struct {
	url        string
	httpClient *resty.Client
}

// NewWebhook creates a webhook notifier posting to url. Transport errors and
// 5xx responses are retried, making at most maxRetries attempts.
func NewWebhook(url string, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Webhook {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(maxRetries - 1).
		SetRetryWaitTime(retryDelay).
		SetRetryMaxWaitTime(retryDelay * time.Duration(maxRetries)).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= 500)
		}).
		SetHeader("Content-Type", "application/json")

	return &Webhook{url: url, httpClient: client}
}

func (w *Webhook) Notify(ctx context.Context, alert models.AlertEvent) error {
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to post alert: status %d", resp.StatusCode())
	}
	return nil
}

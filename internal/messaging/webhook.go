package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"authbot/internal/address"
	"authbot/internal/metrics"
	"authbot/pkg/logging"

	"github.com/hashicorp/go-retryablehttp"
)

const transportWebhook = "webhook"

// WebhookMessenger delivers replies by POSTing an Envelope to a connector
// endpoint. 5xx responses and connection errors are retried.
type WebhookMessenger struct {
	url    string
	token  string
	client *retryablehttp.Client
}

// NewWebhookMessenger creates a messenger posting to url. A non-empty token
// is sent as a bearer credential.
func NewWebhookMessenger(url, token string, retryMax int, timeout time.Duration) *WebhookMessenger {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = logging.NewLeveledLogger("Webhook")
	// Return the last response instead of a generic "giving up" error.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &WebhookMessenger{url: url, token: token, client: rc}
}

// Deliver implements Messenger.
func (w *WebhookMessenger) Deliver(ctx context.Context, addr address.Address, text string) error {
	err := w.post(ctx, Envelope{Address: addr, Text: text})
	metrics.Deliveries.WithLabelValues(transportWebhook, metrics.Result(err)).Inc()
	if err != nil {
		logging.Warn("Webhook", "Delivery to conversation %s failed: %v",
			logging.TruncateID(addr.ConversationID), err)
	}
	return err
}

func (w *WebhookMessenger) post(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("webhook: marshal envelope: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: connector returned status %d", resp.StatusCode)
	}
	return nil
}

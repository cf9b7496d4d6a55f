package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// WebhookSink delivers events to an external notification endpoint as JSON
// POSTs, retrying transient failures.
type WebhookSink struct {
	url    string
	client *retryablehttp.Client
}

// NewWebhookSink constructs a WebhookSink for the given endpoint. A nil
// client uses retryablehttp defaults.
func NewWebhookSink(url string, client *retryablehttp.Client) *WebhookSink {
	if client == nil {
		client = retryablehttp.NewClient()
		client.Logger = nil
	}
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Record(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering audit event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("audit endpoint returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

var _ Sink = (*WebhookSink)(nil)

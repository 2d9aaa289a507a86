package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/davidahmann/licensetriage/internal/ledger"
)

// WebhookPoster posts review messages as JSON to a queue endpoint. Any
// non-2xx response is a delivery failure.
type WebhookPoster struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

func NewWebhookPoster(url, token string) *WebhookPoster {
	return &WebhookPoster{
		URL:        url,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *WebhookPoster) PostReview(ctx context.Context, msg ledger.ReviewMessage) error {
	if p.URL == "" {
		return fmt.Errorf("missing webhook url")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("review webhook: status %d", resp.StatusCode)
	}
	return nil
}

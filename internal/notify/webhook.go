package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
)

// WebhookSender posts signed JSON payloads.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender builds a sender using client, or http.DefaultClient when nil.
func NewWebhookSender(client *http.Client) *WebhookSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSender{client: client}
}

// Send posts payload to url. When secret is set the body is signed with HMAC-SHA256.
func (s *WebhookSender) Send(ctx context.Context, url, secret, event string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event)
	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, payload))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook failed: %s", resp.Status)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Package webhook provides generic webhook notification delivery.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/notifications"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Signature-256"

// Provider implements generic webhook notifications.
type Provider struct {
	config config.WebhookConfig
	client *http.Client
}

// NewProvider creates a new webhook provider.
func NewProvider(cfg config.WebhookConfig) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		config: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "webhook"
}

// Enabled returns whether the webhook is configured and enabled.
func (p *Provider) Enabled() bool {
	return p.config.Enabled && p.config.URL != ""
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	AccountID string `json:"accountId,omitempty"`
	Email     string `json:"email,omitempty"`
	Provider  string `json:"provider,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Send posts alert to the webhook URL.
func (p *Provider) Send(ctx context.Context, alert *notifications.Alert) error {
	payload := Payload{
		Event:     alert.Kind,
		Timestamp: alert.Time.UTC().Format(time.RFC3339),
		Title:     alert.Title,
		Message:   alert.Message,
		AccountID: alert.AccountID,
		Email:     alert.Email,
		Provider:  alert.Provider,
		URL:       alert.URL,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "calmerge/1.0")

	if p.config.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(p.config.Secret, jsonData))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

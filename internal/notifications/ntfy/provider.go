// Package ntfy provides ntfy.sh notification delivery.
package ntfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/notifications"
)

// DefaultServer is used when no server is configured.
const DefaultServer = "https://ntfy.sh"

// Provider implements ntfy notifications.
type Provider struct {
	config config.NtfyConfig
	client *http.Client
}

// NewProvider creates a new ntfy provider.
func NewProvider(cfg config.NtfyConfig) *Provider {
	return &Provider{
		config: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ntfy"
}

// Enabled returns whether ntfy is configured and enabled.
func (p *Provider) Enabled() bool {
	return p.config.Enabled && p.config.Topic != ""
}

// ntfyMessage represents the ntfy API message format.
type ntfyMessage struct {
	Topic    string       `json:"topic"`
	Title    string       `json:"title,omitempty"`
	Message  string       `json:"message"`
	Priority int          `json:"priority,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	Click    string       `json:"click,omitempty"`
	Actions  []ntfyAction `json:"actions,omitempty"`
}

type ntfyAction struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url,omitempty"`
}

// Send publishes alert to the configured topic.
func (p *Provider) Send(ctx context.Context, alert *notifications.Alert) error {
	msg := ntfyMessage{
		Topic:    p.config.Topic,
		Title:    alert.Title,
		Message:  alert.Message,
		Priority: 3,
		Tags:     []string{"calendar"},
		Click:    alert.URL,
	}
	if alert.Kind == notifications.AlertAccountExpired {
		msg.Priority = 4
		msg.Tags = []string{"warning", "calendar"}
		if alert.URL != "" {
			msg.Actions = []ntfyAction{{Action: "view", Label: "Reconnect", URL: alert.URL}}
		}
	}
	return p.send(ctx, &msg)
}

func (p *Provider) send(ctx context.Context, msg *ntfyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	serverURL := p.config.Server
	if serverURL == "" {
		serverURL = DefaultServer
	}

	req, err := http.NewRequestWithContext(ctx, "POST", serverURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ntfy returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

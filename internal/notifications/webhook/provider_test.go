package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dtorcivia/calmerge/internal/config"
	"github.com/dtorcivia/calmerge/internal/notifications"
)

func TestSendSignsPayload(t *testing.T) {
	var (
		body      []byte
		signature string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProvider(config.WebhookConfig{Enabled: true, URL: srv.URL, Secret: "s3cret"})
	err := p.Send(context.Background(), &notifications.Alert{
		Kind:      notifications.AlertAccountExpired,
		Title:     "Reconnect",
		AccountID: "acc-1",
		Email:     "me@example.com",
		Time:      time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if signature != "sha256="+Sign("s3cret", body) {
		t.Fatalf("signature does not match body")
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if payload.Event != notifications.AlertAccountExpired || payload.AccountID != "acc-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Timestamp != "2024-01-01T09:00:00Z" {
		t.Fatalf("unexpected timestamp %q", payload.Timestamp)
	}
}

func TestSendWithoutSecretIsUnsigned(t *testing.T) {
	var signature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get(SignatureHeader)
	}))
	defer srv.Close()

	p := NewProvider(config.WebhookConfig{Enabled: true, URL: srv.URL})
	if err := p.Send(context.Background(), &notifications.Alert{Kind: notifications.AlertTest}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if signature != "" {
		t.Fatalf("expected no signature header, got %q", signature)
	}
}

func TestSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProvider(config.WebhookConfig{Enabled: true, URL: srv.URL})
	if err := p.Send(context.Background(), &notifications.Alert{Kind: notifications.AlertTest}); err == nil {
		t.Fatalf("expected error for 500")
	}
}

package notifications

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/util"
)

// Manager handles multi-provider notification delivery.
type Manager struct {
	baseURL   string
	providers []Provider
	mu        sync.RWMutex
	now       func() time.Time
}

// NewManager creates a new notification manager. baseURL is used for links
// back to the server.
func NewManager(baseURL string) *Manager {
	return &Manager{
		baseURL:   strings.TrimRight(baseURL, "/"),
		providers: make([]Provider, 0),
		now:       time.Now,
	}
}

// RegisterProvider adds a notification provider.
func (m *Manager) RegisterProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, p)
	util.Info("Registered notification provider", "provider", p.Name(), "enabled", p.Enabled())
}

// GetEnabledProviders returns only enabled providers.
func (m *Manager) GetEnabledProviders() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var enabled []Provider
	for _, p := range m.providers {
		if p.Enabled() {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// Notify sends alert to every enabled provider. It fails only when every
// provider failed.
func (m *Manager) Notify(ctx context.Context, alert *Alert) error {
	providers := m.GetEnabledProviders()
	if len(providers) == 0 {
		return nil
	}
	if alert.Time.IsZero() {
		alert.Time = m.now()
	}

	var lastErr error
	successCount := 0
	for _, provider := range providers {
		if err := provider.Send(ctx, alert); err != nil {
			util.Error("Failed to send notification",
				"provider", provider.Name(),
				"kind", alert.Kind,
				"account_id", alert.AccountID,
				"error", err,
			)
			lastErr = err
			continue
		}
		successCount++
		util.Info("Sent notification", "provider", provider.Name(), "kind", alert.Kind)
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("all notification providers failed: %w", lastErr)
	}
	return nil
}

// AccountExpired alerts that acc must be reconnected.
func (m *Manager) AccountExpired(ctx context.Context, acc database.Account) {
	alert := &Alert{
		Kind:      AlertAccountExpired,
		Title:     "Calendar account needs reconnecting",
		Message:   fmt.Sprintf("%s (%s) is no longer authorized. Its calendars are hidden from the merged view until it is reconnected.", acc.Email, acc.Provider),
		AccountID: acc.ID,
		Email:     acc.Email,
		Provider:  acc.Provider,
	}
	if m.baseURL != "" && acc.Backend == database.BackendGoogle {
		alert.URL = m.baseURL + "/oauth/google/start"
	}
	if err := m.Notify(ctx, alert); err != nil {
		util.Error("Account expiry alert was not delivered",
			"account_id", acc.ID,
			"email", acc.Email,
			"error", err,
		)
	}
}

// TestProvider sends a test alert to a specific provider.
func (m *Manager) TestProvider(ctx context.Context, providerName string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.providers {
		if p.Name() == providerName {
			if !p.Enabled() {
				return fmt.Errorf("provider %s is not enabled", providerName)
			}
			return p.Send(ctx, &Alert{
				Kind:    AlertTest,
				Title:   "calmerge test",
				Message: "If you can see this, notifications are configured correctly.",
				Time:    m.now(),
			})
		}
	}

	return fmt.Errorf("provider %s not found", providerName)
}

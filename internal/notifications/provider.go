// Package notifications delivers alerts about accounts that need attention.
package notifications

import (
	"context"
)

// Provider defines the interface for notification providers.
type Provider interface {
	// Name returns the provider name (e.g., "ntfy", "webhook").
	Name() string

	// Enabled returns whether the provider is configured and enabled.
	Enabled() bool

	// Send delivers an alert.
	Send(ctx context.Context, alert *Alert) error
}

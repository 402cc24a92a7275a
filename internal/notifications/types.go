package notifications

import "time"

// Alert kinds.
const (
	AlertAccountExpired = "account_expired"
	AlertTest           = "test"
)

// Alert is one notification.
type Alert struct {
	Kind      string
	Title     string
	Message   string
	AccountID string
	Email     string
	Provider  string
	// URL is where the user can act on the alert, if anywhere.
	URL  string
	Time time.Time
}

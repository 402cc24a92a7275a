package config

import "time"

// Server defaults
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8080
	DefaultBaseURL      = "http://localhost:8080"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 60 * time.Second

	DefaultRateLimit      = 120
	DefaultRateLimitBurst = 30
)

// Database defaults
const (
	DefaultDataDir       = "/data"
	DefaultDatabaseName  = "calmerge.db"
	DefaultBusyTimeoutMs = 5000
)

// Unified calendar API defaults
const (
	DefaultUnifiedBaseURL = "https://api.onecalunified.com/api/v1"
	DefaultUnifiedTimeout = 20 * time.Second
	DefaultUnifiedPage    = 250
)

// ICS subscription defaults
const (
	DefaultICSTimeout   = 15 * time.Second
	DefaultICSUserAgent = "calmerge/1.0"
)

// Logging defaults
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Display defaults
const (
	DefaultTimezone = "UTC"
)

// Expansion defaults
const (
	DefaultMaxOccurrencesPerEvent = 5000
	DefaultMaxWindow              = 400 * 24 * time.Hour
)

// Sync defaults
const (
	DefaultSyncSchedule   = "@every 30m"
	DefaultVacuumInterval = 24 * time.Hour

	DefaultAuditRetentionDays = 90
)

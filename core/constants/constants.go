package constants

import "time"

// Database pool settings
const (
	DatabaseSSLMode         = "disable"
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 5
	DatabaseConnMaxLifetime = 30 // minutes
)

// Outbound call timeouts
const (
	DefaultTimeout      = 10 * time.Second
	CalendarHTTPTimeout = 15 * time.Second
)

// Redis key prefixes
const (
	RedisKeyOfferToken     = "offer_token:"
	RedisKeyTokenBlacklist = "token_blacklist:"
)

// Engine defaults, overridable via config
const (
	DefaultOfferWindowMinutes   = 30
	DefaultCheckIntervalMinutes = 10
	DefaultRefreshMarginMinutes = 5
	DefaultSchedulerTickSeconds = 15
	DefaultSchedulerWorkers     = 8
	DefaultBatchSize            = 50
	DefaultTransientRetryMax    = 2
	DefaultBackoffBaseSeconds   = 45
)

// OAuth
const (
	OAuthStateTTL  = 10 * time.Minute
	ProviderGoogle = "google"
)

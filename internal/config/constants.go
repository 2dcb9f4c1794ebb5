package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Mutation tasks give up after this many retries; the failure surfaces in
// the audit trail.
const MaxMutationRetries = 15

// Listing walks retry a rate-limited page this many times before aborting
// with whatever prior pages already committed.
const MaxFetchRetries = 10

// Default page budget for a listing walk. A listing longer than the budget
// is truncated and its finish handlers never run.
const DefaultPageBudget = 100

// The remote API accounts its rate limits in fixed windows of this size.
const RateLimitWindow = 15 * time.Minute

// Expired block/mute removals are enqueued with a uniform jitter of up to
// this much to avoid synchronized bursts.
const SweepJitterMax = 15 * time.Minute

// Fan-out safety caps: refuse to block or mute the followers of accounts
// larger than this.
const (
	MaxFollowersToBlock = 100_000
	MaxFollowersToMute  = 5_000
)

// Scheduled block/mute durations get a random extension of up to this
// fraction so a fan-out's expirations don't land at once.
const DurationFudge = 0.05

// Queue worker poll interval when the queue is empty
const QueuePollInterval = time.Second

// Background job intervals
const CredentialScrubInterval = time.Hour

// Idle threshold for credential scrubbing
const CredentialScrubAfter = 24 * time.Hour

// Default per-user request rate limit for the trigger API
const DefaultRateLimitPerMin = 60

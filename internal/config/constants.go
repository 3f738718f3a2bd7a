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

// Background job settings
const (
	SweepJobInterval = time.Minute
	SyncQueueSize    = 256
)

// OAuth token lifecycle
const (
	// TokenSafetyMargin: a cached token within this margin of its expiry is
	// treated as expired and refreshed before use.
	TokenSafetyMargin  = 5 * time.Minute
	TokenDefaultExpiry = time.Hour
)

// CRM sync retry policy
const (
	SyncMaxAttempts     = 4
	SyncInitialInterval = 500 * time.Millisecond
	SyncMaxInterval     = 10 * time.Second
)

// Default rate limiting for the inbound message endpoint (per visitor)
const DefaultRateLimitPerMin = 60

// Lead scoring policy. Weights are tunable, not a contract; the score is
// always recomputed in full from the accumulated signal set.
const (
	ScoreIntentBuying       = 40
	ScoreIntentSupport      = 10
	ScoreUrgencyHigh        = 20
	ScoreUrgencyMedium      = 10
	ScoreBudgetHigh         = 20
	ScoreBudgetLow          = 5
	ScorePerPainPoint       = 5
	ScorePainPointCap       = 15
	ScorePerCompetitor      = 5
	ScoreCompetitorCap      = 10
	ScoreFrustrationPenalty = 10
	ScorePerExtraVisit      = 5
	ScoreVisitBonusCap      = 15
)

// Category thresholds
const (
	HotThreshold  = 70
	WarmThreshold = 40
)

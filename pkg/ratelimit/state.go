// Package ratelimit tracks a shared error budget per subgraph endpoint and
// gates requests when the budget runs low.
//
// Hosted subgraph gateways answer bursts of failing queries with 429s and
// temporary bans. Every 5xx, network failure or 429 spends from a budget that
// refills at the end of a fixed window; the budget lives in Redis so all
// client instances share it.
package ratelimit

import (
	"time"
)

const keyPrefix = "subgraph:error_budget:"

// Hash fields of a stored budget.
const (
	fieldRemaining = "remaining"
	fieldResetAt   = "reset_at"
	fieldUpdatedAt = "updated_at"
)

const (
	// DefaultErrorBudget is the number of failed requests tolerated per window.
	DefaultErrorBudget = 100

	// DefaultBudgetWindow is how long a budget lasts before it refills.
	DefaultBudgetWindow = 60 * time.Second
)

// Remaining-budget thresholds.
const (
	ErrorThresholdCritical = 5
	ErrorThresholdWarning  = 20
	ErrorThresholdHealthy  = 50
)

// RedisKey returns the hash key holding the budget of scope.
func RedisKey(scope string) string {
	return keyPrefix + scope
}

// Level grades a remaining budget.
type Level int

const (
	LevelHealthy Level = iota
	// LevelDegraded is below healthy but still passes requests unthrottled.
	LevelDegraded
	// LevelThrottled delays every request.
	LevelThrottled
	// LevelBlocked rejects every request until the window resets.
	LevelBlocked
)

func (l Level) String() string {
	switch l {
	case LevelHealthy:
		return "healthy"
	case LevelDegraded:
		return "degraded"
	case LevelThrottled:
		return "throttled"
	default:
		return "blocked"
	}
}

// Budget is the error budget of one endpoint scope.
type Budget struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBudget returns a full budget whose window starts at now.
func NewBudget(size int, window time.Duration, now time.Time) *Budget {
	return &Budget{Remaining: size, ResetAt: now.Add(window), UpdatedAt: now}
}

// Level grades the remaining budget.
func (b *Budget) Level() Level {
	switch {
	case b.Remaining < ErrorThresholdCritical:
		return LevelBlocked
	case b.Remaining < ErrorThresholdWarning:
		return LevelThrottled
	case b.Remaining < ErrorThresholdHealthy:
		return LevelDegraded
	default:
		return LevelHealthy
	}
}

// Healthy reports whether at least ErrorThresholdHealthy units remain.
func (b *Budget) Healthy() bool {
	return b.Level() == LevelHealthy
}

// Expired reports whether the window has ended at now.
func (b *Budget) Expired(now time.Time) bool {
	return !now.Before(b.ResetAt)
}

// Spend consumes n units, flooring at zero.
func (b *Budget) Spend(n int) {
	b.Remaining = max(b.Remaining-n, 0)
}

// ResetIn is the time left in the window at now, never negative.
func (b *Budget) ResetIn(now time.Time) time.Duration {
	return max(b.ResetAt.Sub(now), 0)
}

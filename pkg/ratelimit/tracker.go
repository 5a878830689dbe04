package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	subgraphErrorsRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subgraph_errors_remaining",
		Help: "Errors remaining in the current budget window by endpoint scope",
	}, []string{"scope"})

	subgraphRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subgraph_rate_limit_blocks_total",
		Help: "Requests rejected because the error budget was spent",
	})

	subgraphRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subgraph_rate_limit_throttles_total",
		Help: "Requests delayed because the error budget ran low",
	})
)

// Tracker keeps per-scope error budgets in Redis and gates requests on them.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	size          int
	window        time.Duration
	throttleDelay time.Duration
	now           func() time.Time
}

// NewTracker creates a tracker with the default budget size and window.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		logger:        logger,
		size:          DefaultErrorBudget,
		window:        DefaultBudgetWindow,
		throttleDelay: time.Second,
		now:           time.Now,
	}
}

// Scope returns the budget scope of an endpoint URL, which is its host.
// All subgraphs behind one gateway share a budget.
func Scope(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return strings.Trim(endpoint, "/")
	}
	return strings.ToLower(u.Host)
}

// GetState loads the budget of scope. A missing hash or an ended window
// yields a full budget.
func (t *Tracker) GetState(ctx context.Context, scope string) (*Budget, error) {
	now := t.now()

	fields, err := t.redis.HGetAll(ctx, RedisKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("load error budget: %w", err)
	}
	if len(fields) == 0 {
		return NewBudget(t.size, t.window, now), nil
	}

	b, err := decodeBudget(fields)
	if err != nil {
		return nil, fmt.Errorf("decode error budget %s: %w", scope, err)
	}
	if b.Expired(now) {
		t.logger.Debug().Str("scope", scope).Msg("Error budget window ended, refilling")
		return NewBudget(t.size, t.window, now), nil
	}
	return b, nil
}

func decodeBudget(fields map[string]string) (*Budget, error) {
	remaining, err := strconv.Atoi(fields[fieldRemaining])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldRemaining, err)
	}
	resetAt, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldResetAt, err)
	}
	b := &Budget{Remaining: remaining, ResetAt: time.Unix(resetAt, 0)}
	if v := fields[fieldUpdatedAt]; v != "" {
		if updated, err := strconv.ParseInt(v, 10, 64); err == nil {
			b.UpdatedAt = time.UnixMilli(updated)
		}
	}
	return b, nil
}

// Save writes b as the budget of scope. The hash outlives the window by one
// more window so a reader still sees the reset time.
func (t *Tracker) Save(ctx context.Context, scope string, b *Budget) error {
	key := RedisKey(scope)
	_, err := t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldRemaining, b.Remaining,
			fieldResetAt, b.ResetAt.Unix(),
			fieldUpdatedAt, b.UpdatedAt.UnixMilli(),
		)
		pipe.Expire(ctx, key, b.ResetIn(t.now())+t.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store error budget: %w", err)
	}
	subgraphErrorsRemaining.WithLabelValues(scope).Set(float64(b.Remaining))
	return nil
}

// RecordResponse spends budget for a failed request. statusCode 0 stands for
// a network failure. A 429 drains the budget until Retry-After has passed.
func (t *Tracker) RecordResponse(ctx context.Context, scope string, statusCode int, headers http.Header) error {
	if !spendsBudget(statusCode) {
		return nil
	}

	b, err := t.GetState(ctx, scope)
	if err != nil {
		return err
	}

	now := t.now()
	if statusCode == http.StatusTooManyRequests {
		b.Spend(b.Remaining)
		wait, ok := parseRetryAfter(headers.Get("Retry-After"), now)
		if !ok {
			wait = t.window
		}
		b.ResetAt = now.Add(wait)
	} else {
		b.Spend(1)
	}
	b.UpdatedAt = now

	if err := t.Save(ctx, scope, b); err != nil {
		return err
	}

	event := t.logger.Debug()
	switch b.Level() {
	case LevelBlocked:
		event = t.logger.Error()
	case LevelThrottled:
		event = t.logger.Warn()
	}
	event.
		Str("scope", scope).
		Int("status", statusCode).
		Int("errors_remaining", b.Remaining).
		Stringer("level", b.Level()).
		Time("reset_at", b.ResetAt).
		Msg("Error budget spent")

	return nil
}

func spendsBudget(statusCode int) bool {
	return statusCode == 0 || statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// ShouldAllowRequest reports whether a request to scope may go out. It
// returns false while the budget is blocked and sleeps for the throttle
// delay while it is low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, scope string) (bool, error) {
	b, err := t.GetState(ctx, scope)
	if err != nil {
		return false, fmt.Errorf("get error budget: %w", err)
	}

	switch b.Level() {
	case LevelBlocked:
		t.logger.Error().
			Str("scope", scope).
			Int("errors_remaining", b.Remaining).
			Dur("wait_duration", b.ResetIn(t.now())).
			Msg("Error budget spent - blocking request")
		subgraphRateLimitBlocksTotal.Inc()
		return false, nil

	case LevelThrottled:
		t.logger.Warn().
			Str("scope", scope).
			Int("errors_remaining", b.Remaining).
			Msg("Error budget low - throttling request")
		subgraphRateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0), true
	}
	return 0, false
}

package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	subgraphRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_retries_total",
		Help: "Subgraph request retries by error class",
	}, []string{"error_class"})

	subgraphRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subgraph_retry_backoff_seconds",
		Help:    "Sleep before a subgraph retry by error class",
		Buckets: []float64{0.05, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	subgraphRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subgraph_retry_exhausted_total",
		Help: "Subgraph requests that failed on every attempt, by error class",
	}, []string{"error_class"})
)

// RetryConfig describes how often and how patiently a failed request is
// repeated.
type RetryConfig struct {
	// MaxAttempts counts the first request too.
	MaxAttempts int

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig applies to error classes without their own entry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// classBackoff lists initial and maximum backoff per retryable class.
// Gateway 5xx responses clear quickly, a 429 needs the longest pause.
var classBackoff = map[ErrorClass][2]time.Duration{
	ErrorClassServer:    {time.Second, 10 * time.Second},
	ErrorClassRateLimit: {5 * time.Second, time.Minute},
	ErrorClassNetwork:   {2 * time.Second, 30 * time.Second},
}

// RetryConfigForErrorClass returns the retry configuration for errorClass.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	rc := DefaultRetryConfig()
	if b, ok := classBackoff[errorClass]; ok {
		rc.InitialBackoff, rc.MaxBackoff = b[0], b[1]
	}
	return rc
}

// retryPolicy resolves the retry configuration for an error class.
type retryPolicy func(ErrorClass) RetryConfig

// schedule yields the jittered sleep before each retry.
type schedule struct {
	next time.Duration
	cfg  RetryConfig
}

func newSchedule(cfg RetryConfig) *schedule {
	return &schedule{next: cfg.InitialBackoff, cfg: cfg}
}

// wait returns the sleep for the coming retry (±20% jitter) and grows the
// base for the one after.
func (s *schedule) wait() time.Duration {
	d := time.Duration(float64(s.next) * (0.8 + rand.Float64()*0.4))
	s.next = min(time.Duration(float64(s.next)*s.cfg.BackoffMultiplier), s.cfg.MaxBackoff)
	return d
}

func retryLogger() zerolog.Logger {
	return logging.NewLogger(logging.ComponentClient).With().Str("stage", "retry").Logger()
}

// retryWithBackoff runs fn under the per-class defaults.
func retryWithBackoff(ctx context.Context, fn func() error, classify func(error) ErrorClass) error {
	return retryWithPolicy(ctx, RetryConfigForErrorClass, fn, classify)
}

// retryWithPolicy runs fn until it succeeds, fails with a non-retryable
// class, or runs out of attempts. The class of the first failure picks
// the configuration for the whole sequence.
func retryWithPolicy(ctx context.Context, policy retryPolicy, fn func() error, classify func(error) ErrorClass) error {
	err := fn()
	if err == nil {
		return nil
	}

	class := classify(err)
	if !shouldRetry(class) {
		return err
	}

	cfg := policy(class)
	sched := newSchedule(cfg)
	logger := retryLogger()

	for attempt := 2; attempt <= cfg.MaxAttempts; attempt++ {
		sleep := sched.wait()
		subgraphRetriesTotal.WithLabelValues(string(class)).Inc()
		subgraphRetryBackoffSeconds.WithLabelValues(string(class)).Observe(sleep.Seconds())

		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", sleep).
			Msg("Retrying request")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		if err = fn(); err == nil {
			logger.Info().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Request succeeded after retry")
			return nil
		}

		class = classify(err)
		if !shouldRetry(class) {
			return err
		}
	}

	subgraphRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, err)
}

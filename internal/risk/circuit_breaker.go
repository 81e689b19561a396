package risk

import (
	"context"
	"sync"
	"time"

	"market_maker/internal/core"
	"market_maker/pkg/telemetry"
)

// CircuitBreakerConfig parametrizes the broker-submission circuit breaker.
type CircuitBreakerConfig struct {
	MaxConsecutiveFailures int
	CooldownPeriod         time.Duration
}

// CircuitBreaker counts consecutive broker submission failures, persisting
// its count through StateRepository so it survives process restarts. The
// Tier 1 safety check hard-fails once that persisted count is high enough.
type CircuitBreaker struct {
	mu     sync.Mutex
	repo   core.StateRepository
	logger core.ILogger
	cfg    CircuitBreakerConfig
}

// NewCircuitBreaker constructs a CircuitBreaker.
func NewCircuitBreaker(repo core.StateRepository, logger core.ILogger, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{repo: repo, logger: logger.WithField("component", "circuit_breaker"), cfg: cfg}
}

// RecordFailure increments the persisted consecutive-failure count.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	n, err := cb.repo.GetCircuitBreakerCount(ctx)
	if err != nil {
		return err
	}
	n++
	if err := cb.repo.SaveCircuitBreakerCount(ctx, n); err != nil {
		return err
	}
	telemetry.GetGlobalMetrics().SetCircuitBreakerCount(n)

	if cb.cfg.MaxConsecutiveFailures > 0 && n >= cb.cfg.MaxConsecutiveFailures {
		cb.logger.Error("circuit breaker tripped on consecutive broker failures", "count", n)
		telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(true)
	}
	return nil
}

// RecordSuccess resets the consecutive-failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err := cb.repo.ResetCircuitBreaker(ctx, time.Now()); err != nil {
		return err
	}
	telemetry.GetGlobalMetrics().SetCircuitBreakerCount(0)
	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(false)
	return nil
}

// IsTripped reports whether the persisted count has reached
// MaxConsecutiveFailures. There is no time-based reset: CooldownPeriod is not
// consulted, and the count only clears through RecordSuccess.
func (cb *CircuitBreaker) IsTripped(ctx context.Context) (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	n, err := cb.repo.GetCircuitBreakerCount(ctx)
	if err != nil {
		return false, err
	}
	if cb.cfg.MaxConsecutiveFailures <= 0 || n < cb.cfg.MaxConsecutiveFailures {
		return false, nil
	}
	return true, nil
}

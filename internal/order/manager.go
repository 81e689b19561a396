// Package order implements the Order Manager: deterministic idempotent
// order submission, write-ahead intent persistence, and fill application.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"market_maker/internal/core"
	"market_maker/pkg/apperrors"
	"market_maker/pkg/retry"
)

// ErrAlreadyPending is returned when a Submit call targets an intent that is
// already in flight with the broker.
var ErrAlreadyPending = errors.New("order: an intent for this client order id is already pending")

// BreakerRecorder tracks consecutive broker failures for Tier 1's circuit
// breaker check. Satisfied by *risk.CircuitBreaker; declared here instead of
// imported so the order package doesn't need to depend on internal/risk.
type BreakerRecorder interface {
	RecordFailure(ctx context.Context) error
	RecordSuccess(ctx context.Context) error
}

// Manager owns the submit/cancel/fill lifecycle of broker orders.
type Manager struct {
	broker      core.Broker
	repo        core.StateRepository
	logger      core.ILogger
	rateLimiter *rate.Limiter
	breaker     BreakerRecorder

	cancelRetryPolicy retry.RetryPolicy
}

// NewManager constructs an order Manager. rateLimit/burst bound outbound
// broker calls; cancel calls retry with the default backoff policy since,
// unlike a submit, retrying a cancel is always safe. Every submit outcome
// (flatten and exit orders included) is folded into breaker so repeated
// broker failures raise the count Tier 1's circuit breaker check reads.
func NewManager(broker core.Broker, repo core.StateRepository, logger core.ILogger, breaker BreakerRecorder, rateLimit float64, burst int) *Manager {
	return &Manager{
		broker:            broker,
		repo:              repo,
		logger:            logger.WithField("component", "order_manager"),
		rateLimiter:       rate.NewLimiter(rate.Limit(rateLimit), burst),
		breaker:           breaker,
		cancelRetryPolicy: retry.DefaultPolicy,
	}
}

// Submit executes the write-ahead-then-submit flow for a freshly decided
// order intent. If an intent with this ClientOrderID already exists and has
// reached a terminal state, Submit is a no-op that returns the stored state;
// if it exists and is non-terminal, ErrAlreadyPending is returned so the
// caller never double-submits the same decision.
func (m *Manager) Submit(ctx context.Context, intent core.OrderIntent) (core.OrderInfo, error) {
	existing, found, err := m.repo.GetOrderIntent(ctx, intent.ClientOrderID)
	if err != nil {
		return core.OrderInfo{}, fmt.Errorf("order: check existing intent: %w", err)
	}
	if found {
		if existing.State.IsTerminal() {
			return orderInfoFromIntent(existing), nil
		}
		return core.OrderInfo{}, ErrAlreadyPending
	}

	now := time.Now()
	intent.State = core.OrderPendingNew
	intent.CreatedAt = now
	intent.UpdatedAt = now
	if err := m.repo.SaveOrderIntent(ctx, intent); err != nil {
		return core.OrderInfo{}, fmt.Errorf("order: write-ahead intent persist: %w", err)
	}

	// No retry wraps this submit call: a broker-side accept/reject is final
	// for this client_order_id, and retrying risks a duplicate order at the
	// broker if the first attempt actually succeeded but the response was
	// lost. Reconciliation is what reconverges state after a transient
	// failure here, not a local retry loop.
	if err := m.rateLimiter.Wait(ctx); err != nil {
		return core.OrderInfo{}, fmt.Errorf("order: rate limit wait: %w", err)
	}
	info, submitErr := m.broker.SubmitOrder(ctx, intent.Symbol, intent.Side, intent.Quantity, intent.LimitPrice, intent.ClientOrderID)
	if submitErr != nil {
		m.logger.Warn("order submit failed", "client_order_id", intent.ClientOrderID, "error", submitErr.Error())
		if uerr := m.repo.UpdateOrderIntent(ctx, intent.ClientOrderID, "", core.OrderRejected, time.Now()); uerr != nil {
			m.logger.Error("failed to persist rejected intent", "client_order_id", intent.ClientOrderID, "error", uerr.Error())
		}
		if berr := m.breaker.RecordFailure(ctx); berr != nil {
			m.logger.Error("failed to record breaker failure", "error", berr.Error())
		}
		return core.OrderInfo{}, submitErr
	}

	if err := m.breaker.RecordSuccess(ctx); err != nil {
		m.logger.Error("failed to record breaker success", "error", err.Error())
	}
	if err := m.repo.UpdateOrderIntent(ctx, intent.ClientOrderID, info.BrokerOrderID, core.OrderAccepted, time.Now()); err != nil {
		m.logger.Error("failed to persist accepted intent", "client_order_id", intent.ClientOrderID, "error", err.Error())
	}
	return info, nil
}

// Cancel requests cancellation of a still-open order and records the
// pending-cancel transition before contacting the broker.
func (m *Manager) Cancel(ctx context.Context, clientOrderID string) error {
	intent, found, err := m.repo.GetOrderIntent(ctx, clientOrderID)
	if err != nil {
		return fmt.Errorf("order: lookup intent for cancel: %w", err)
	}
	if !found {
		return fmt.Errorf("order: no intent found for client order id %q", clientOrderID)
	}
	if intent.State.IsTerminal() {
		return nil
	}

	if err := m.repo.UpdateOrderIntent(ctx, clientOrderID, intent.BrokerOrderID, core.OrderPendingCancel, time.Now()); err != nil {
		return fmt.Errorf("order: persist pending-cancel: %w", err)
	}

	if err := m.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("order: rate limit wait: %w", err)
	}
	cancelErr := retry.Do(ctx, m.cancelRetryPolicy, isTransientBrokerError, func() error {
		return m.broker.CancelOrder(ctx, intent.BrokerOrderID)
	})
	if cancelErr != nil {
		return fmt.Errorf("order: broker cancel: %w", cancelErr)
	}

	return m.repo.UpdateOrderIntent(ctx, clientOrderID, intent.BrokerOrderID, core.OrderCanceled, time.Now())
}

// isTransientBrokerError reports whether a broker-reported error is worth
// retrying. Errors that mean the request itself was invalid, not that the
// broker was momentarily unavailable, are not retried.
func isTransientBrokerError(err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrOrderNotFound),
		errors.Is(err, apperrors.ErrInvalidSymbol),
		errors.Is(err, apperrors.ErrInvalidOrderParameter),
		errors.Is(err, apperrors.ErrAuthenticationFailed),
		errors.Is(err, apperrors.ErrDuplicateOrder):
		return false
	default:
		return true
	}
}

func orderInfoFromIntent(oi core.OrderIntent) core.OrderInfo {
	return core.OrderInfo{
		BrokerOrderID: oi.BrokerOrderID,
		ClientOrderID: oi.ClientOrderID,
		Symbol:        oi.Symbol,
		Side:          oi.Side,
		Quantity:      oi.Quantity,
		LimitPrice:    oi.LimitPrice,
		State:         oi.State,
		CreatedAt:     oi.CreatedAt,
		UpdatedAt:     oi.UpdatedAt,
	}
}

// Package exit implements the Exit Engine: ATR stop/target/trailing-stop
// evaluation with a pending-exit lock and exponential backoff to keep a
// stuck exit from being resubmitted on every bar.
package exit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market_maker/internal/core"
	"market_maker/pkg/retry"
)

// Config parametrizes ATR-based exit distances.
type Config struct {
	ATRStopMultiplier    decimal.Decimal
	ATRTargetMultiplier  decimal.Decimal
	ATRTrailingMultiplier decimal.Decimal
	BackoffBaseSeconds   int
	BackoffMaxSeconds    int
}

func (c Config) withDefaults() Config {
	if c.ATRStopMultiplier.IsZero() {
		c.ATRStopMultiplier = decimal.NewFromFloat(2.0)
	}
	if c.ATRTargetMultiplier.IsZero() {
		c.ATRTargetMultiplier = decimal.NewFromFloat(3.0)
	}
	if c.ATRTrailingMultiplier.IsZero() {
		c.ATRTrailingMultiplier = decimal.NewFromFloat(2.5)
	}
	if c.BackoffBaseSeconds == 0 {
		c.BackoffBaseSeconds = 1
	}
	if c.BackoffMaxSeconds == 0 {
		c.BackoffMaxSeconds = 300
	}
	return c
}

// Engine evaluates open positions against ATR-derived stop/target/trailing
// levels and publishes ExitSignals through the Event Bus.
type Engine struct {
	repo   core.StateRepository
	bus    core.EventBus
	logger core.ILogger
	cfg    Config

	mu          sync.Mutex
	lastAttempt map[string]time.Time
}

// NewEngine constructs an Exit Engine.
func NewEngine(repo core.StateRepository, bus core.EventBus, logger core.ILogger, cfg Config) *Engine {
	return &Engine{
		repo:        repo,
		bus:         bus,
		logger:      logger.WithField("component", "exit_engine"),
		cfg:         cfg.withDefaults(),
		lastAttempt: make(map[string]time.Time),
	}
}

// evaluateTriggers checks stop-loss, profit-target, and trailing-stop
// conditions in that priority order (ATR stop > ATR target > trailing stop)
// and returns the reason for the first one that fires, or false if none did.
func (e *Engine) evaluateTriggers(pos core.PositionTracking, currentPrice, atrVal decimal.Decimal) (core.ExitReason, bool) {
	if pos.Quantity.IsZero() || atrVal.IsZero() {
		return "", false
	}

	long := pos.Quantity.IsPositive()

	stopDistance := atrVal.Mul(e.cfg.ATRStopMultiplier)
	targetDistance := atrVal.Mul(e.cfg.ATRTargetMultiplier)
	trailDistance := atrVal.Mul(e.cfg.ATRTrailingMultiplier)

	if long {
		stopPrice := pos.EntryPrice.Sub(stopDistance)
		if currentPrice.LessThanOrEqual(stopPrice) {
			return core.ExitATRStopLoss, true
		}

		targetPrice := pos.EntryPrice.Add(targetDistance)
		if currentPrice.GreaterThanOrEqual(targetPrice) {
			return core.ExitATRProfitTarget, true
		}

		if !pos.TrailingStopPrice.IsZero() && currentPrice.LessThanOrEqual(pos.TrailingStopPrice) {
			return core.ExitTrailingStop, true
		}
		return "", false
	}

	stopPrice := pos.EntryPrice.Add(stopDistance)
	if currentPrice.GreaterThanOrEqual(stopPrice) {
		return core.ExitATRStopLoss, true
	}

	targetPrice := pos.EntryPrice.Sub(targetDistance)
	if currentPrice.LessThanOrEqual(targetPrice) {
		return core.ExitATRProfitTarget, true
	}

	if !pos.TrailingStopPrice.IsZero() && currentPrice.GreaterThanOrEqual(pos.TrailingStopPrice) {
		return core.ExitTrailingStop, true
	}
	return "", false
}

// UpdateTrailingStop ratchets the trailing-stop price in the position's
// favor and persists it. It never loosens the stop.
func (e *Engine) UpdateTrailingStop(ctx context.Context, pos core.PositionTracking, currentPrice, atrVal decimal.Decimal) (core.PositionTracking, error) {
	if pos.Quantity.IsZero() || atrVal.IsZero() {
		return pos, nil
	}

	trailDistance := atrVal.Mul(e.cfg.ATRTrailingMultiplier)
	long := pos.Quantity.IsPositive()

	var candidate decimal.Decimal
	if long {
		candidate = currentPrice.Sub(trailDistance)
		if pos.TrailingStopPrice.IsZero() || candidate.GreaterThan(pos.TrailingStopPrice) {
			pos.TrailingStopPrice = candidate
		}
	} else {
		candidate = currentPrice.Add(trailDistance)
		if pos.TrailingStopPrice.IsZero() || candidate.LessThan(pos.TrailingStopPrice) {
			pos.TrailingStopPrice = candidate
		}
	}

	pos.ATRValue = atrVal
	pos.LastUpdateAt = time.Now()
	if err := e.repo.SavePosition(ctx, pos); err != nil {
		return pos, fmt.Errorf("exit: persist trailing stop: %w", err)
	}
	return pos, nil
}

// Process evaluates a single position on the latest bar: it ratchets the
// trailing stop, checks for a trigger, and if one fires, publishes an
// ExitSignal honoring the pending-exit lock and exponential backoff so a
// stuck exit is retried, not resubmitted every bar.
func (e *Engine) Process(ctx context.Context, pos core.PositionTracking, currentPrice, atrVal decimal.Decimal) error {
	pos, err := e.UpdateTrailingStop(ctx, pos, currentPrice, atrVal)
	if err != nil {
		return err
	}

	reason, triggered := e.evaluateTriggers(pos, currentPrice, atrVal)
	if !triggered {
		return nil
	}

	if pos.PendingExit {
		allowed, err := e.backoffElapsed(ctx, pos.Symbol)
		if err != nil {
			return err
		}
		if !allowed {
			return nil
		}
	}

	// The attempt record must land before the signal goes out, so the publish
	// path retries this persistence write on transient failure rather than
	// giving up and silently dropping a triggered exit.
	now := time.Now()
	recordErr := retry.Do(ctx, retry.DefaultPolicy, func(error) bool { return true }, func() error {
		return e.repo.RecordExitAttempt(ctx, pos.Symbol, now)
	})
	if recordErr != nil {
		return fmt.Errorf("exit: record exit attempt: %w", recordErr)
	}
	e.mu.Lock()
	e.lastAttempt[pos.Symbol] = now
	e.mu.Unlock()

	e.logger.Info("publishing exit signal", "symbol", pos.Symbol, "reason", string(reason), "price", currentPrice.String())
	e.bus.PublishExit(ctx, core.Event{
		Tag: core.EventExitSignal,
		ExitSig: &core.ExitSignal{
			Symbol: pos.Symbol,
			Reason: reason,
			Price:  currentPrice,
		},
	})

	// pending_exit is only persisted after the signal has gone out, so a
	// crash or block between the two never leaves a phantom lock with no
	// signal behind it.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !pos.PendingExit {
		pos.PendingExit = true
		if err := e.repo.SavePosition(ctx, pos); err != nil {
			return fmt.Errorf("exit: persist pending-exit lock: %w", err)
		}
	}
	return nil
}

// backoffElapsed reports whether enough time has passed since the last exit
// attempt for this symbol to retry, per the repository-tracked backoff
// ladder (min(2^(attempts-1), 300) seconds, capped by the repository).
func (e *Engine) backoffElapsed(ctx context.Context, symbol string) (bool, error) {
	seconds, err := e.repo.GetExitBackoffSeconds(ctx, symbol)
	if err != nil {
		return false, fmt.Errorf("exit: get backoff: %w", err)
	}
	if seconds <= 0 {
		return true, nil
	}

	e.mu.Lock()
	last, ok := e.lastAttempt[symbol]
	e.mu.Unlock()
	if !ok {
		return true, nil
	}
	return time.Since(last) >= time.Duration(seconds)*time.Second, nil
}

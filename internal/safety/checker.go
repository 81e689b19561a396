// Package safety implements Tier 1 of the Risk & Gating Pipeline: hard
// fail-closed checks that halt trading entirely when tripped.
package safety

import (
	"context"

	"market_maker/internal/core"
	"market_maker/internal/risk"
)

// Checker evaluates Tier 1 safety conditions. A rejection here is a hard
// stop: the caller must treat it as trading_halted, not a single skipped
// signal.
type Checker struct {
	logger core.ILogger
	repo   core.StateRepository
}

// NewChecker constructs a Tier 1 safety Checker.
func NewChecker(logger core.ILogger, repo core.StateRepository) *Checker {
	return &Checker{logger: logger.WithField("component", "safety_checker"), repo: repo}
}

// tier1CircuitBreakerThreshold is the fixed consecutive-failure count that
// hard-fails Tier 1, independent of any configured circuit breaker
// auto-trip threshold used elsewhere.
const tier1CircuitBreakerThreshold = 5

// Check runs every Tier 1 condition in order and returns the first failure,
// or risk.Accept() if none trip: kill switch, drawdown Emergency, circuit
// breaker count at or above the fixed threshold, and market closed for a
// non-crypto symbol.
func (c *Checker) Check(ctx context.Context, killSwitch bool, drawdownLevel core.DrawdownLevel, clock core.Clock, isEquity bool) risk.Verdict {
	if v := c.CheckKillSwitch(ctx, killSwitch); !v.Accepted() {
		return v
	}

	if drawdownLevel == core.DrawdownEmergency {
		return risk.RejectSafety("drawdown level Emergency blocks all orders")
	}

	count, err := c.repo.GetCircuitBreakerCount(ctx)
	if err != nil {
		return risk.RejectSafety("failed to read circuit breaker count: " + err.Error())
	}
	if count >= tier1CircuitBreakerThreshold {
		return risk.RejectSafety("circuit breaker count at or above hard-fail threshold")
	}

	if isEquity && !clock.IsOpen {
		return risk.RejectSafety("market is closed")
	}

	return risk.Accept()
}

// CheckKillSwitch runs only the kill-switch condition. Exit signals must
// always be able to close a position, so the exit path checks the kill
// switch alone rather than the full Tier 1 set.
func (c *Checker) CheckKillSwitch(ctx context.Context, killSwitch bool) risk.Verdict {
	if killSwitch {
		return risk.RejectSafety("kill switch engaged")
	}
	return risk.Accept()
}

// CheckAccount validates the broker-reported account is in a tradeable
// state: positive equity and broker-side tradability.
func (c *Checker) CheckAccount(account core.Account) risk.Verdict {
	if !account.IsTradable {
		return risk.RejectSafety("account is not tradable")
	}
	if account.PortfolioValue.IsNegative() || account.PortfolioValue.IsZero() {
		return risk.RejectSafety("account portfolio value is non-positive")
	}
	return risk.Accept()
}

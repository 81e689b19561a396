// Package riskpipeline composes the three gating tiers (internal/safety
// Tier 1, internal/risk.Manager Tier 2, internal/risk.Filter Tier 3) plus the
// correlation/concentration service into a single entry point that runs them
// in order and stops at the first non-accept verdict.
package riskpipeline

import (
	"context"

	"market_maker/internal/core"
	"market_maker/internal/risk"
	"market_maker/internal/safety"
)

// Input bundles everything a full gating pass needs across all tiers.
type Input struct {
	KillSwitch    bool
	Account       core.Account
	DrawdownLevel core.DrawdownLevel

	Signal   core.Signal
	Quote    core.Quote
	QuoteErr error
	Clock    core.Clock
	IsEquity bool

	OpenPositions []core.PositionTracking

	Sizing risk.SizingInputs
}

// RiskManager is the single entry point for the Risk & Gating Pipeline. It
// runs Tier 1 (safety), Tier 2 (risk + correlation), and Tier 3 (filter) in
// order, short-circuiting on the first verdict that is not an accept.
type RiskManager struct {
	safety      *safety.Checker
	tier2       *risk.Manager
	correlation *risk.CorrelationService
	filter      *risk.Filter
}

// NewRiskManager composes the already-constructed tier components into one
// RiskManager.
func NewRiskManager(safetyChecker *safety.Checker, tier2 *risk.Manager, correlation *risk.CorrelationService, filter *risk.Filter) *RiskManager {
	return &RiskManager{safety: safetyChecker, tier2: tier2, correlation: correlation, filter: filter}
}

// Evaluate runs every tier in order for a single candidate entry signal and
// returns the first non-accept verdict, or risk.Accept() if the signal
// clears every tier.
func (r *RiskManager) Evaluate(ctx context.Context, in Input) (risk.Verdict, error) {
	if v := r.safety.Check(ctx, in.KillSwitch, in.DrawdownLevel, in.Clock, in.IsEquity); !v.Accepted() {
		return v, nil
	}
	if v := r.safety.CheckAccount(in.Account); !v.Accepted() {
		return v, nil
	}

	v, err := r.tier2.Check(ctx, in.Signal.Symbol, in.DrawdownLevel, in.Sizing)
	if err != nil {
		return risk.Verdict{}, err
	}
	if !v.Accepted() {
		return v, nil
	}

	if v := r.correlation.Check(in.Signal.Symbol, in.OpenPositions); !v.Accepted() {
		return v, nil
	}

	if v := r.filter.Check(ctx, in.Signal, in.Quote, in.QuoteErr, in.Clock, in.IsEquity); !v.Accepted() {
		return v, nil
	}

	return risk.Accept(), nil
}

// EvaluateExit runs only Tier 1 safety checks. An exit signal must always be
// able to close a position, so it bypasses Tier 2 portfolio limits, the
// correlation service, and Tier 3 filters entirely.
func (r *RiskManager) EvaluateExit(ctx context.Context, killSwitch bool) risk.Verdict {
	return r.safety.CheckKillSwitch(ctx, killSwitch)
}

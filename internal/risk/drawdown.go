package risk

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market_maker/internal/core"
	"market_maker/pkg/telemetry"
)

// DrawdownConfig parametrizes the drawdown state machine's escalation and
// recovery ladder (hysteresis: recovery thresholds sit below the trip
// thresholds so the engine doesn't flap at the boundary).
type DrawdownConfig struct {
	Enabled                   bool
	WarningThresholdPct       decimal.Decimal
	HaltThresholdPct          decimal.Decimal
	EmergencyThresholdPct     decimal.Decimal
	WarningRecoveryPct        decimal.Decimal
	HaltRecoveryPct           decimal.Decimal
	EmergencyRecoveryPct      decimal.Decimal
	WarningPositionMultiplier decimal.Decimal
	EnableAutoRecovery        bool
}

// DrawdownMonitor tracks peak equity and walks the Normal/Warning/Halt/
// Emergency ladder, using the same mutex-protected state pattern as
// CircuitBreaker.
type DrawdownMonitor struct {
	mu     sync.RWMutex
	repo   core.StateRepository
	logger core.ILogger
	cfg    DrawdownConfig
	state  core.DrawdownState
}

// NewDrawdownMonitor constructs a DrawdownMonitor and loads any persisted state.
func NewDrawdownMonitor(ctx context.Context, repo core.StateRepository, logger core.ILogger, cfg DrawdownConfig) (*DrawdownMonitor, error) {
	st, err := repo.GetDrawdownState(ctx)
	if err != nil {
		return nil, err
	}
	if st.Level == "" {
		st.Level = core.DrawdownNormal
	}
	return &DrawdownMonitor{
		repo:   repo,
		logger: logger.WithField("component", "drawdown_monitor"),
		cfg:    cfg,
		state:  st,
	}, nil
}

// Update recomputes peak equity and drawdown percentage from a fresh equity
// reading and walks the ladder accordingly. It persists the resulting state.
func (d *DrawdownMonitor) Update(ctx context.Context, equity decimal.Decimal, now time.Time) (core.DrawdownState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.cfg.Enabled {
		return d.state, nil
	}

	if d.state.PeakEquity.IsZero() || equity.GreaterThan(d.state.PeakEquity) {
		d.state.PeakEquity = equity
		d.state.LastPeakResetTime = now
	}

	var ddPct decimal.Decimal
	if !d.state.PeakEquity.IsZero() {
		ddPct = d.state.PeakEquity.Sub(equity).Div(d.state.PeakEquity)
	}
	d.state.CurrentDrawdownPct = ddPct
	d.state.LastUpdated = now

	d.state.Level = d.nextLevel(ddPct, d.state.Level)

	telemetry.GetGlobalMetrics().SetDrawdownLevel(string(d.state.Level))
	telemetry.GetGlobalMetrics().SetDrawdownPct(mustFloat(ddPct))

	if err := d.repo.SaveDrawdownState(ctx, d.state); err != nil {
		return d.state, err
	}
	return d.state, nil
}

// nextLevel applies escalation on breach of a trip threshold and, when auto
// recovery is enabled, de-escalation once drawdown falls below the
// corresponding recovery threshold (hysteresis prevents flapping).
func (d *DrawdownMonitor) nextLevel(ddPct decimal.Decimal, current core.DrawdownLevel) core.DrawdownLevel {
	switch {
	case ddPct.GreaterThanOrEqual(d.cfg.EmergencyThresholdPct):
		return core.DrawdownEmergency
	case ddPct.GreaterThanOrEqual(d.cfg.HaltThresholdPct):
		return escalateOrHold(current, core.DrawdownHalt, ddPct, d.cfg.EmergencyRecoveryPct, d.cfg.EnableAutoRecovery)
	case ddPct.GreaterThanOrEqual(d.cfg.WarningThresholdPct):
		return escalateOrHold(current, core.DrawdownWarning, ddPct, d.cfg.HaltRecoveryPct, d.cfg.EnableAutoRecovery)
	default:
		if current == core.DrawdownWarning && d.cfg.EnableAutoRecovery && ddPct.LessThan(d.cfg.WarningRecoveryPct) {
			return core.DrawdownNormal
		}
		if current == core.DrawdownNormal || (current == core.DrawdownWarning && !d.cfg.EnableAutoRecovery) {
			return current
		}
		if !d.cfg.EnableAutoRecovery {
			return current
		}
		if ddPct.LessThan(d.cfg.WarningRecoveryPct) {
			return core.DrawdownNormal
		}
		return core.DrawdownWarning
	}
}

// escalateOrHold de-escalates from a higher level back to target only when
// auto recovery is on and drawdown has fallen under the recovery threshold
// for the level above target; otherwise it holds at (or escalates to) target.
func escalateOrHold(current, target core.DrawdownLevel, ddPct, recoveryAboveTarget decimal.Decimal, autoRecovery bool) core.DrawdownLevel {
	rank := map[core.DrawdownLevel]int{core.DrawdownNormal: 0, core.DrawdownWarning: 1, core.DrawdownHalt: 2, core.DrawdownEmergency: 3}
	if rank[current] <= rank[target] {
		return target
	}
	if autoRecovery && ddPct.LessThan(recoveryAboveTarget) {
		return target
	}
	return current
}

// Level returns the current drawdown level without a repository round trip.
func (d *DrawdownMonitor) Level() core.DrawdownLevel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.Level
}

// PositionSizeMultiplier returns the multiplier the Position Sizer should
// apply given the current drawdown level (1 outside Warning).
func (d *DrawdownMonitor) PositionSizeMultiplier() decimal.Decimal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state.Level == core.DrawdownWarning {
		return d.cfg.WarningPositionMultiplier
	}
	return decimal.NewFromInt(1)
}

// RequestManualRecovery clears Emergency/Halt to Normal on operator
// intervention, bypassing the threshold ladder.
func (d *DrawdownMonitor) RequestManualRecovery(ctx context.Context, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Level = core.DrawdownNormal
	d.state.ManualRecoveryRequested = true
	d.state.LastUpdated = now
	return d.repo.SaveDrawdownState(ctx, d.state)
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

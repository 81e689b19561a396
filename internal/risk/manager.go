package risk

import (
	"context"

	"github.com/shopspring/decimal"

	"market_maker/internal/core"
)

// ManagerConfig parametrizes Tier 2 hard-fail risk checks.
type ManagerConfig struct {
	MaxDailyLoss           decimal.Decimal
	MaxTradesPerDay        int
	MaxConcurrentPositions int
}

// SizingInputs carries the Position Sizer inputs needed for Tier 2's
// "would compute qty < 1" check. A zero-value SizingInputs (Price or
// StopDistance unset) skips the check — callers that have no sizing
// context yet (e.g. exits) simply omit it.
type SizingInputs struct {
	Equity             decimal.Decimal
	Price              decimal.Decimal
	StopDistance       decimal.Decimal
	DrawdownMultiplier decimal.Decimal
}

// Manager implements Tier 2 of the Risk & Gating Pipeline: portfolio-wide
// hard fails that discard a single signal without halting the engine.
type Manager struct {
	repo  core.StateRepository
	sizer *Sizer
	cfg   ManagerConfig
}

// NewManager constructs a Tier 2 risk Manager. sizer may be nil if callers
// never populate SizingInputs (the qty<1 check is then always skipped).
func NewManager(repo core.StateRepository, sizer *Sizer, cfg ManagerConfig) *Manager {
	return &Manager{repo: repo, sizer: sizer, cfg: cfg}
}

// Check evaluates the Tier 2 conditions for an entry signal on symbol. Exit
// signals never pass through Tier 2 (a position must always be closeable).
// Drawdown Emergency and the circuit breaker count are Tier 1 conditions
// and are not checked here.
func (m *Manager) Check(ctx context.Context, symbol string, drawdownLevel core.DrawdownLevel, sizing SizingInputs) (Verdict, error) {
	if drawdownLevel == core.DrawdownHalt {
		return RejectRisk("drawdown level Halt blocks new entries"), nil
	}

	pnlRaw, _, err := m.repo.GetState(ctx, core.BotStateDailyRealizedPnL)
	if err != nil {
		return Verdict{}, err
	}
	dailyPnL := parseDecimalOrZero(pnlRaw)
	if !m.cfg.MaxDailyLoss.IsZero() && dailyPnL.Neg().GreaterThan(m.cfg.MaxDailyLoss) {
		return RejectRisk("max_daily_loss reached"), nil
	}

	countRaw, _, err := m.repo.GetState(ctx, core.BotStateDailyTradeCount)
	if err != nil {
		return Verdict{}, err
	}
	count := parseIntOrZero(countRaw)
	if m.cfg.MaxTradesPerDay > 0 && count >= m.cfg.MaxTradesPerDay {
		return RejectRisk("max_trades_per_day reached"), nil
	}

	positions, err := m.repo.ListPositions(ctx)
	if err != nil {
		return Verdict{}, err
	}
	if m.cfg.MaxConcurrentPositions > 0 && len(positions) >= m.cfg.MaxConcurrentPositions && !alreadyHolds(positions, symbol) {
		return RejectRisk("max_concurrent_positions reached"), nil
	}

	if m.sizer != nil && !sizing.Price.IsZero() && !sizing.StopDistance.IsZero() {
		qty := m.sizer.RawQuantity(sizing.Equity, sizing.Price, sizing.StopDistance, sizing.DrawdownMultiplier)
		if qty.LessThan(decimal.NewFromInt(1)) {
			return RejectRisk("sizer would compute a quantity below 1"), nil
		}
	}

	return Accept(), nil
}

func alreadyHolds(positions []core.PositionTracking, symbol string) bool {
	for _, p := range positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

func parseDecimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseIntOrZero(s string) int {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return int(d.IntPart())
}

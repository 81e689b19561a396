package risk

import (
	"github.com/shopspring/decimal"

	"market_maker/pkg/tradingutils"
)

// SizerConfig parametrizes the dual-formula position sizer.
type SizerConfig struct {
	MaxPositionPct     decimal.Decimal // cap as a fraction of equity
	MaxRiskPerTradePct decimal.Decimal // cap as a fraction of equity, scaled by stop distance
	QtyDecimals        int32           // rounding precision for the final size (0 for whole-share equities)
}

// Sizer computes order quantity from the tighter of an equity cap and a
// risk cap, floored at 1 share/unit.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer constructs a Sizer.
func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size computes the position size for entering at `price` with a stop
// `stopDistance` away, against `equity`, scaled by an externally supplied
// drawdown multiplier (1 outside Warning level).
//
// equityCapQty = (equity * MaxPositionPct) / price
// riskCapQty   = (equity * MaxRiskPerTradePct) / stopDistance
// size         = floor(min(equityCapQty, riskCapQty) * drawdownMultiplier), floored at 1
//
// A zero price or stopDistance has no valid size and returns zero.
func (s *Sizer) Size(equity, price, stopDistance, drawdownMultiplier decimal.Decimal) decimal.Decimal {
	if price.IsZero() || stopDistance.IsZero() {
		return decimal.Zero
	}
	qty := s.RawQuantity(equity, price, stopDistance, drawdownMultiplier)
	if qty.LessThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return qty
}

// RawQuantity computes the same floor(min(equityCapQty, riskCapQty) *
// drawdownMultiplier) formula as Size but without the floor-at-1 fallback,
// so a caller (Tier 2's "sizer would compute qty < 1" check) can observe a
// result below 1 before it gets clamped up for actual execution.
func (s *Sizer) RawQuantity(equity, price, stopDistance, drawdownMultiplier decimal.Decimal) decimal.Decimal {
	if price.IsZero() || stopDistance.IsZero() {
		return decimal.Zero
	}

	equityCapQty := equity.Mul(s.cfg.MaxPositionPct).Div(price)
	riskCapQty := equity.Mul(s.cfg.MaxRiskPerTradePct).Div(stopDistance)

	qty := equityCapQty
	if riskCapQty.LessThan(qty) {
		qty = riskCapQty
	}
	qty = qty.Mul(drawdownMultiplier).Floor()
	return tradingutils.RoundQuantity(qty, int(s.cfg.QtyDecimals))
}

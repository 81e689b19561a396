package strategy

import (
	"github.com/shopspring/decimal"

	"market_maker/internal/core"
)

var (
	confidenceTrendingAligned    = decimal.NewFromFloat(0.8)
	confidenceTrendingMisaligned = decimal.NewFromFloat(0.5)
	confidenceRanging            = decimal.NewFromFloat(0.2)
	confidenceSlowestPairBonus   = decimal.NewFromFloat(0.1)
	confidenceFloor              = decimal.NewFromFloat(0.1)
	confidenceCeiling            = decimal.NewFromInt(1)
)

// confidenceScore scores an emitted signal per the discrete base/bonus
// formula: 0.8 when the regime aligns with side, 0.5 when trending but this
// signal's side is the opposite of the regime, 0.2 when ranging; +0.1 if the
// slowest configured pair also aligns with side; the result is multiplied
// by regime strength and clamped to [0.1, 1].
func confidenceScore(regime core.Regime, side core.Side, regimeStrength decimal.Decimal, slowestPairAligned bool) decimal.Decimal {
	var base decimal.Decimal
	switch regime {
	case core.RegimeTrendingUp:
		if side == core.SideBuy {
			base = confidenceTrendingAligned
		} else {
			base = confidenceTrendingMisaligned
		}
	case core.RegimeTrendingDown:
		if side == core.SideSell {
			base = confidenceTrendingAligned
		} else {
			base = confidenceTrendingMisaligned
		}
	default:
		base = confidenceRanging
	}

	if slowestPairAligned {
		base = base.Add(confidenceSlowestPairBonus)
	}

	score := base.Mul(regimeStrength)
	if score.LessThan(confidenceFloor) {
		return confidenceFloor
	}
	if score.GreaterThan(confidenceCeiling) {
		return confidenceCeiling
	}
	return score
}

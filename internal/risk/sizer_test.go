package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSizer_UsesTighterOfTwoCaps(t *testing.T) {
	s := NewSizer(SizerConfig{
		MaxPositionPct:     decimal.NewFromFloat(0.2),
		MaxRiskPerTradePct: decimal.NewFromFloat(0.01),
	})

	equity := decimal.NewFromInt(100000)
	price := decimal.NewFromInt(100)
	stopDistance := decimal.NewFromInt(2)

	// equityCap = 20000/100 = 200; riskCap = 1000/2 = 500 -> tighter is equityCap
	qty := s.Size(equity, price, stopDistance, decimal.NewFromInt(1))
	assert.True(t, qty.Equal(decimal.NewFromInt(200)), "got %s", qty)
}

func TestSizer_RiskCapTighter(t *testing.T) {
	s := NewSizer(SizerConfig{
		MaxPositionPct:     decimal.NewFromFloat(0.5),
		MaxRiskPerTradePct: decimal.NewFromFloat(0.01),
	})
	equity := decimal.NewFromInt(100000)
	price := decimal.NewFromInt(100)
	stopDistance := decimal.NewFromInt(10)

	// equityCap = 50000/100 = 500; riskCap = 1000/10 = 100 -> tighter is riskCap
	qty := s.Size(equity, price, stopDistance, decimal.NewFromInt(1))
	assert.True(t, qty.Equal(decimal.NewFromInt(100)), "got %s", qty)
}

func TestSizer_FlooredAtOne(t *testing.T) {
	s := NewSizer(SizerConfig{
		MaxPositionPct:     decimal.NewFromFloat(0.001),
		MaxRiskPerTradePct: decimal.NewFromFloat(0.001),
	})
	qty := s.Size(decimal.NewFromInt(1000), decimal.NewFromInt(1000), decimal.NewFromInt(100), decimal.NewFromInt(1))
	assert.True(t, qty.Equal(decimal.NewFromInt(1)))
}

func TestSizer_DrawdownMultiplierScalesDown(t *testing.T) {
	s := NewSizer(SizerConfig{MaxPositionPct: decimal.NewFromFloat(0.2), MaxRiskPerTradePct: decimal.NewFromFloat(0.2)})
	full := s.Size(decimal.NewFromInt(100000), decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromInt(1))
	half := s.Size(decimal.NewFromInt(100000), decimal.NewFromInt(100), decimal.NewFromInt(1), decimal.NewFromFloat(0.5))
	assert.True(t, half.LessThan(full))
}

func TestSizer_ZeroPriceOrStopReturnsZero(t *testing.T) {
	s := NewSizer(SizerConfig{MaxPositionPct: decimal.NewFromFloat(0.2), MaxRiskPerTradePct: decimal.NewFromFloat(0.01)})
	assert.True(t, s.Size(decimal.NewFromInt(100000), decimal.Zero, decimal.NewFromInt(1), decimal.NewFromInt(1)).IsZero())
	assert.True(t, s.Size(decimal.NewFromInt(100000), decimal.NewFromInt(100), decimal.Zero, decimal.NewFromInt(1)).IsZero())
}

package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"market_maker/internal/core"
)

func TestCorrelationService_BlocksHighlyCorrelatedPair(t *testing.T) {
	svc := NewCorrelationService(CorrelationConfig{
		Enabled:            true,
		MaxCorrelation:     decimal.NewFromFloat(0.8),
		StaticCorrelations: map[string]decimal.Decimal{"BTCUSD/ETHUSD": decimal.NewFromFloat(0.9)},
	})

	open := []core.PositionTracking{{Symbol: "ETHUSD"}}
	v := svc.Check("BTCUSD", open)
	assert.Equal(t, VerdictRejectRisk, v.Kind)
}

func TestCorrelationService_AllowsLowCorrelation(t *testing.T) {
	svc := NewCorrelationService(CorrelationConfig{
		Enabled:            true,
		MaxCorrelation:     decimal.NewFromFloat(0.8),
		StaticCorrelations: map[string]decimal.Decimal{"BTCUSD/AAPL": decimal.NewFromFloat(0.1)},
	})
	open := []core.PositionTracking{{Symbol: "AAPL"}}
	v := svc.Check("BTCUSD", open)
	assert.True(t, v.Accepted())
}

func TestCorrelationService_PairwiseBoundaryIsNotBlocked(t *testing.T) {
	svc := NewCorrelationService(CorrelationConfig{
		Enabled:            true,
		MaxCorrelation:     decimal.NewFromFloat(0.8),
		StaticCorrelations: map[string]decimal.Decimal{"BTCUSD/ETHUSD": decimal.NewFromFloat(0.8)},
	})
	open := []core.PositionTracking{{Symbol: "ETHUSD"}}
	v := svc.Check("BTCUSD", open)
	assert.True(t, v.Accepted())
}

func TestCorrelationService_BlocksSectorConcentration(t *testing.T) {
	svc := NewCorrelationService(CorrelationConfig{
		Enabled:                true,
		MaxSectorPct:           decimal.NewFromFloat(0.5),
		MaxConcurrentPositions: 3,
		SymbolSector:           map[string]core.Sector{"AAPL": "Tech", "MSFT": "Tech"},
	})
	open := []core.PositionTracking{{Symbol: "MSFT"}}
	v := svc.Check("AAPL", open)
	assert.Equal(t, VerdictRejectRisk, v.Kind)
}

func TestCorrelationService_AllowsReversalDespiteConcentration(t *testing.T) {
	svc := NewCorrelationService(CorrelationConfig{
		Enabled:                true,
		MaxSectorPct:           decimal.NewFromFloat(0.1),
		MaxConcurrentPositions: 2,
		SymbolSector:           map[string]core.Sector{"AAPL": "Tech", "MSFT": "Tech"},
	})
	open := []core.PositionTracking{{Symbol: "AAPL"}, {Symbol: "MSFT"}}
	v := svc.Check("AAPL", open)
	assert.True(t, v.Accepted())
}

func TestCorrelationService_DisabledAlwaysAccepts(t *testing.T) {
	svc := NewCorrelationService(CorrelationConfig{Enabled: false})
	v := svc.Check("AAPL", nil)
	assert.True(t, v.Accepted())
}

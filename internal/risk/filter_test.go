package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
	"market_maker/internal/state"
)

func newFilterFixture(t *testing.T, cfg FilterConfig) (*Filter, *state.Repository) {
	t.Helper()
	repo, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return NewFilter(repo, cfg), repo
}

func baseSignal() core.Signal {
	return core.Signal{
		Symbol: "BTCUSD", Timeframe: "1h", SignalTS: time.Now(), Side: core.SideBuy,
		Meta: core.SignalMetadata{Confidence: decimal.NewFromFloat(0.8), BarsInRegime: 10},
	}
}

func TestFilter_AcceptsCryptoWithinSpread(t *testing.T) {
	f, _ := newFilterFixture(t, FilterConfig{MaxSpreadPct: decimal.NewFromFloat(0.01), MinSignalConfidence: decimal.NewFromFloat(0.5)})
	quote := core.Quote{Bid: decimal.NewFromFloat(99.95), Ask: decimal.NewFromFloat(100.05)}
	v := f.Check(context.Background(), baseSignal(), quote, nil, core.Clock{}, false)
	assert.True(t, v.Accepted())
}

func TestFilter_SkipsOnWideSpread(t *testing.T) {
	f, _ := newFilterFixture(t, FilterConfig{MaxSpreadPct: decimal.NewFromFloat(0.001), MinSignalConfidence: decimal.NewFromFloat(0.5)})
	quote := core.Quote{Bid: decimal.NewFromFloat(99), Ask: decimal.NewFromFloat(101)}
	v := f.Check(context.Background(), baseSignal(), quote, nil, core.Clock{}, false)
	assert.Equal(t, VerdictSkipFilter, v.Kind)
}

func TestFilter_SkipsOnLowConfidence(t *testing.T) {
	f, _ := newFilterFixture(t, FilterConfig{MaxSpreadPct: decimal.NewFromFloat(0.01), MinSignalConfidence: decimal.NewFromFloat(0.9)})
	v := f.Check(context.Background(), baseSignal(), core.Quote{}, nil, core.Clock{}, false)
	assert.Equal(t, VerdictSkipFilter, v.Kind)
}

func TestFilter_SkipsDuplicateSameBarSignal(t *testing.T) {
	f, _ := newFilterFixture(t, FilterConfig{MinSignalConfidence: decimal.NewFromFloat(0.1)})
	sig := baseSignal()
	v1 := f.Check(context.Background(), sig, core.Quote{}, nil, core.Clock{}, false)
	require.True(t, v1.Accepted())

	v2 := f.Check(context.Background(), sig, core.Quote{}, nil, core.Clock{}, false)
	assert.Equal(t, VerdictSkipFilter, v2.Kind)
}

// Market-closed is a Tier 1 hard fail (safety.Checker); the Tier 3 filter
// leaves it alone and only applies time-of-day windows while open.
func TestFilter_LeavesMarketClosedEquityToTier1(t *testing.T) {
	f, _ := newFilterFixture(t, FilterConfig{MinSignalConfidence: decimal.NewFromFloat(0.1)})
	sig := baseSignal()
	sig.Symbol = "AAPL"
	v := f.Check(context.Background(), sig, core.Quote{}, nil, core.Clock{IsOpen: false}, true)
	assert.Equal(t, VerdictAccept, v.Kind)
}

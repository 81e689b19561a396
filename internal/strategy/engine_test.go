package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
)

// uptrendBars builds a rising-price series long enough to feed the regime
// SMA triplet and a single pair, with the final bar forcing a fast/slow
// crossover.
func uptrendBars(n int) []core.Bar {
	closes := make([]float64, n)
	for i := 0; i < n-1; i++ {
		closes[i] = 100
	}
	// sharp final rally forces fast SMA above slow SMA
	closes[n-1] = 130
	bars := make([]core.Bar, n)
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = core.Bar{
			Symbol: "AAPL", Timeframe: "1h", Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open: price, High: price.Add(decimal.NewFromFloat(1)), Low: price.Sub(decimal.NewFromFloat(1)), Close: price,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return bars
}

func regimeTestConfig(pair core.SMAPeriod, atrPeriod, regimeSlow int) Config {
	return Config{
		Pairs:              []core.SMAPeriod{pair},
		ATRPeriod:          atrPeriod,
		RegimeFastPeriod:   1,
		RegimeMediumPeriod: 2,
		RegimeSlowPeriod:   regimeSlow,
	}
}

func TestEngine_EmitsBuySignalOnUpCrossover(t *testing.T) {
	e := NewEngine(regimeTestConfig(core.SMAPeriod{Fast: 2, Slow: 5}, 3, 5))
	bars := uptrendBars(10)

	signals := e.Evaluate("AAPL", "1h", bars)
	require.Len(t, signals, 1)
	assert.Equal(t, core.SideBuy, signals[0].Side)
	assert.Equal(t, "AAPL", signals[0].Symbol)
	assert.True(t, signals[0].Meta.Confidence.GreaterThanOrEqual(decimal.Zero))
}

func TestEngine_NoSignalWithoutCrossover(t *testing.T) {
	e := NewEngine(regimeTestConfig(core.SMAPeriod{Fast: 2, Slow: 5}, 3, 5))
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100
	}
	bars := make([]core.Bar, len(closes))
	ts := time.Now().Add(-time.Duration(len(closes)) * time.Hour)
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = core.Bar{Symbol: "AAPL", Timeframe: "1h", Timestamp: ts.Add(time.Duration(i) * time.Hour), Open: price, High: price, Low: price, Close: price, Volume: decimal.NewFromInt(1)}
	}

	signals := e.Evaluate("AAPL", "1h", bars)
	assert.Empty(t, signals)
}

func TestEngine_TracksBarsInRegime(t *testing.T) {
	e := NewEngine(regimeTestConfig(core.SMAPeriod{Fast: 2, Slow: 3}, 2, 3))
	bars := uptrendBars(6)

	regime, strength, _, _, _, ok := e.classifyRegime("AAPL", "1h", bars)
	require.True(t, ok)
	assert.Equal(t, core.RegimeTrendingUp, regime)
	assert.True(t, strength.GreaterThan(decimal.Zero))

	regime2, _, _, _, _, _ := e.classifyRegime("AAPL", "1h", bars)
	assert.Equal(t, regime, regime2)
	e.mu.Lock()
	bCount := e.regimes[regimeKey("AAPL", "1h")].bars
	e.mu.Unlock()
	assert.Equal(t, 2, bCount)
}

func TestEngine_ResetClearsRegimeState(t *testing.T) {
	e := NewEngine(Config{})
	bars := uptrendBars(60)
	e.classifyRegime("AAPL", "1h", bars)
	e.Reset()
	e.mu.Lock()
	_, found := e.regimes[regimeKey("AAPL", "1h")]
	e.mu.Unlock()
	assert.False(t, found)
}

func TestEngine_DefaultsApplyWhenConfigEmpty(t *testing.T) {
	e := NewEngine(Config{})
	assert.Len(t, e.cfg.Pairs, 3)
	assert.Equal(t, defaultATRPeriod, e.cfg.ATRPeriod)
	assert.Equal(t, defaultRegimeFastPeriod, e.cfg.RegimeFastPeriod)
	assert.Equal(t, defaultRegimeMediumPeriod, e.cfg.RegimeMediumPeriod)
	assert.Equal(t, defaultRegimeSlowPeriod, e.cfg.RegimeSlowPeriod)
}

func TestClassifyRegime_TrendingDownWhenSlowAboveMediumAboveFast(t *testing.T) {
	e := NewEngine(regimeTestConfig(core.SMAPeriod{Fast: 2, Slow: 4}, 2, 4))
	n := 10
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	bars := make([]core.Bar, n)
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = core.Bar{Symbol: "MSFT", Timeframe: "1h", Timestamp: ts.Add(time.Duration(i) * time.Hour), Open: price, High: price, Low: price, Close: price, Volume: decimal.NewFromInt(1)}
	}

	regime, _, _, _, _, ok := e.classifyRegime("MSFT", "1h", bars)
	require.True(t, ok)
	assert.Equal(t, core.RegimeTrendingDown, regime)
}

func TestConfidenceScore_AlignedTrendScoresHigherThanMisaligned(t *testing.T) {
	strength := decimal.NewFromFloat(1)
	aligned := confidenceScore(core.RegimeTrendingUp, core.SideBuy, strength, false)
	misaligned := confidenceScore(core.RegimeTrendingUp, core.SideSell, strength, false)
	assert.True(t, aligned.GreaterThan(misaligned))
	assert.Equal(t, decimal.NewFromFloat(0.8).String(), aligned.String())
	assert.Equal(t, decimal.NewFromFloat(0.5).String(), misaligned.String())
}

func TestConfidenceScore_RangingIsLowBase(t *testing.T) {
	strength := decimal.NewFromFloat(1)
	score := confidenceScore(core.RegimeRanging, core.SideBuy, strength, false)
	assert.Equal(t, decimal.NewFromFloat(0.2).String(), score.String())
}

func TestConfidenceScore_SlowestPairBonusAndClamp(t *testing.T) {
	strength := decimal.NewFromFloat(1)
	withBonus := confidenceScore(core.RegimeTrendingUp, core.SideBuy, strength, true)
	assert.Equal(t, decimal.NewFromFloat(0.9).String(), withBonus.String())

	clampedLow := confidenceScore(core.RegimeRanging, core.SideBuy, decimal.NewFromFloat(0.01), false)
	assert.Equal(t, confidenceFloor.String(), clampedLow.String())
}

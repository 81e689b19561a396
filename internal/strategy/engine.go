// Package strategy implements the Strategy Core: multi-pair SMA crossover
// signal generation with ATR, regime classification, and confidence scoring.
package strategy

import (
	"sync"

	"github.com/shopspring/decimal"

	"market_maker/internal/core"
)

const (
	defaultATRPeriod          = 14
	defaultRegimeFastPeriod   = 10
	defaultRegimeMediumPeriod = 20
	defaultRegimeSlowPeriod   = 50
	regimeStrengthDivisor     = 0.02 // strength = min(1, |fast-slow|/(slow*0.02))
)

// Config parametrizes the Strategy Core.
type Config struct {
	Pairs              []core.SMAPeriod
	ATRPeriod          int
	RegimeFastPeriod   int
	RegimeMediumPeriod int
	RegimeSlowPeriod   int
}

func (c Config) withDefaults() Config {
	if c.ATRPeriod == 0 {
		c.ATRPeriod = defaultATRPeriod
	}
	if c.RegimeFastPeriod == 0 {
		c.RegimeFastPeriod = defaultRegimeFastPeriod
	}
	if c.RegimeMediumPeriod == 0 {
		c.RegimeMediumPeriod = defaultRegimeMediumPeriod
	}
	if c.RegimeSlowPeriod == 0 {
		c.RegimeSlowPeriod = defaultRegimeSlowPeriod
	}
	if len(c.Pairs) == 0 {
		c.Pairs = []core.SMAPeriod{{Fast: 5, Slow: 15}, {Fast: 10, Slow: 30}, {Fast: 20, Slow: 50}}
	}
	return c
}

type regimeTrack struct {
	regime core.Regime
	bars   int
}

// Engine evaluates incoming bars across the configured SMA crossover pairs
// and emits a Signal for every fresh crossover, scored against the
// prevailing regime.
type Engine struct {
	cfg Config
	mu  sync.Mutex
	// keyed by symbol|timeframe
	regimes map[string]regimeTrack
}

// NewEngine constructs a Strategy Core engine for the given pair/period config.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults(), regimes: make(map[string]regimeTrack)}
}

func regimeKey(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}

// Evaluate inspects bars (oldest first, closed bars only) for the named
// symbol/timeframe and returns zero or more signals, one per crossover pair
// that formed a fresh crossover on the latest bar.
func (e *Engine) Evaluate(symbol, timeframe string, bars []core.Bar) []core.Signal {
	if len(bars) < 2 {
		return nil
	}

	regime, regimeStrength, fastRegimeSMA, mediumRegimeSMA, slowRegimeSMA, regimeOK := e.classifyRegime(symbol, timeframe, bars)
	atrVal, atrOK := atr(bars, e.cfg.ATRPeriod)
	price := bars[len(bars)-1].Close

	key := regimeKey(symbol, timeframe)
	e.mu.Lock()
	barsInRegime := e.regimes[key].bars
	e.mu.Unlock()

	slowestAligned := e.slowestPairAligner(bars)

	var signals []core.Signal
	for _, pair := range e.cfg.Pairs {
		sig, ok := e.evaluatePair(symbol, timeframe, bars, pair, regime, regimeOK, regimeStrength,
			fastRegimeSMA, mediumRegimeSMA, slowRegimeSMA, slowestAligned, atrVal, atrOK, price, barsInRegime)
		if ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

// slowestPairAligner reports, for a candidate side, whether the configured
// pair with the largest slow period is itself bullish (fast>slow) or
// bearish (fast<slow) on the latest bar — the "slowest pair aligns with the
// side" confidence bonus.
func (e *Engine) slowestPairAligner(bars []core.Bar) func(core.Side) bool {
	slowest := e.cfg.Pairs[0]
	for _, p := range e.cfg.Pairs {
		if p.Slow > slowest.Slow {
			slowest = p
		}
	}
	fastNow, okFast := sma(bars, slowest.Fast)
	slowNow, okSlow := sma(bars, slowest.Slow)
	ok := okFast && okSlow

	return func(side core.Side) bool {
		if !ok {
			return false
		}
		if side == core.SideBuy {
			return fastNow.GreaterThan(slowNow)
		}
		return fastNow.LessThan(slowNow)
	}
}

func (e *Engine) evaluatePair(
	symbol, timeframe string,
	bars []core.Bar,
	pair core.SMAPeriod,
	regime core.Regime,
	regimeOK bool,
	regimeStrength decimal.Decimal,
	fastRegimeSMA, mediumRegimeSMA, slowRegimeSMA decimal.Decimal,
	slowestAligned func(core.Side) bool,
	atrVal decimal.Decimal,
	atrOK bool,
	price decimal.Decimal,
	barsInRegime int,
) (core.Signal, bool) {
	fastNow, okFastNow := sma(bars, pair.Fast)
	slowNow, okSlowNow := sma(bars, pair.Slow)
	if !okFastNow || !okSlowNow {
		return core.Signal{}, false
	}

	prevBars := bars[:len(bars)-1]
	fastPrev, okFastPrev := sma(prevBars, pair.Fast)
	slowPrev, okSlowPrev := sma(prevBars, pair.Slow)
	if !okFastPrev || !okSlowPrev {
		return core.Signal{}, false
	}

	crossedUp := fastPrev.LessThanOrEqual(slowPrev) && fastNow.GreaterThan(slowNow)
	crossedDown := fastPrev.GreaterThanOrEqual(slowPrev) && fastNow.LessThan(slowNow)
	if !crossedUp && !crossedDown {
		return core.Signal{}, false
	}

	side := core.SideBuy
	if crossedDown {
		side = core.SideSell
	}

	aligned := regimeOK && slowestAligned(side)
	confidence := confidenceScore(regime, side, regimeStrength, aligned)

	var atrPtr *decimal.Decimal
	if atrOK {
		v := atrVal
		atrPtr = &v
	}

	meta := core.SignalMetadata{
		SMAPeriod:      pair,
		FastSMA:        fastRegimeSMA,
		MediumSMA:      mediumRegimeSMA,
		SlowSMA:        slowRegimeSMA,
		ATR:            atrPtr,
		Confidence:     confidence,
		Regime:         regime,
		RegimeStrength: regimeStrength,
		CurrentPrice:   price,
		BarsInRegime:   barsInRegime,
	}

	sig := core.Signal{
		Strategy:  "sma_crossover",
		Symbol:    symbol,
		Timeframe: timeframe,
		SignalTS:  bars[len(bars)-1].Timestamp,
		Side:      side,
		Meta:      meta,
	}
	return sig, true
}

// classifyRegime computes the fast/medium/slow regime SMA triplet and
// classifies TRENDING_UP iff strictly fast>medium>slow, TRENDING_DOWN iff
// strictly slow>medium>fast, else RANGING. Strength is
// min(1, |fast-slow|/(slow*0.02)).
func (e *Engine) classifyRegime(symbol, timeframe string, bars []core.Bar) (regime core.Regime, strength, fastSMA, mediumSMA, slowSMA decimal.Decimal, ok bool) {
	fastSMA, okFast := sma(bars, e.cfg.RegimeFastPeriod)
	mediumSMA, okMedium := sma(bars, e.cfg.RegimeMediumPeriod)
	slowSMA, okSlow := sma(bars, e.cfg.RegimeSlowPeriod)
	if !okFast || !okMedium || !okSlow || slowSMA.IsZero() {
		return core.RegimeRanging, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	switch {
	case fastSMA.GreaterThan(mediumSMA) && mediumSMA.GreaterThan(slowSMA):
		regime = core.RegimeTrendingUp
	case slowSMA.GreaterThan(mediumSMA) && mediumSMA.GreaterThan(fastSMA):
		regime = core.RegimeTrendingDown
	default:
		regime = core.RegimeRanging
	}

	spread := fastSMA.Sub(slowSMA).Abs()
	strength = spread.Div(slowSMA.Mul(decimal.NewFromFloat(regimeStrengthDivisor)))
	if strength.GreaterThan(decimal.NewFromInt(1)) {
		strength = decimal.NewFromInt(1)
	}

	e.trackRegime(symbol, timeframe, regime)
	return regime, strength, fastSMA, mediumSMA, slowSMA, true
}

func (e *Engine) trackRegime(symbol, timeframe string, regime core.Regime) {
	key := regimeKey(symbol, timeframe)
	e.mu.Lock()
	prev := e.regimes[key]
	if prev.regime == regime {
		prev.bars++
	} else {
		prev.regime = regime
		prev.bars = 1
	}
	e.regimes[key] = prev
	e.mu.Unlock()
}

// Reset clears regime tracking state, used on daily reset / restart.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regimes = make(map[string]regimeTrack)
}

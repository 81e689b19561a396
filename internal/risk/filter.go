package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"market_maker/internal/core"
)

// FilterConfig parametrizes Tier 3 soft-skip filters.
type FilterConfig struct {
	MaxSpreadPct          decimal.Decimal
	MinMinutesAfterOpen   int
	MinMinutesBeforeClose int
	MinSignalConfidence   decimal.Decimal
	GateCooldown          time.Duration
}

// Filter implements Tier 3: soft-skip checks that discard a single bar's
// signal without any persistent consequence.
type Filter struct {
	repo core.StateRepository
	cfg  FilterConfig
}

// NewFilter constructs a Tier 3 Filter.
func NewFilter(repo core.StateRepository, cfg FilterConfig) *Filter {
	return &Filter{repo: repo, cfg: cfg}
}

// Check evaluates every Tier 3 condition for a signal on an equity symbol.
// quote may be the zero value for crypto symbols, which trade continuously
// and are exempt from the session/time-of-day checks.
func (f *Filter) Check(ctx context.Context, sig core.Signal, quote core.Quote, quoteErr error, clock core.Clock, isEquity bool) Verdict {
	gateKey := sig.Symbol + "|" + sig.Timeframe
	accepted, err := f.repo.GateTryAccept(ctx, gateKey, sig.SignalTS, time.Now(), f.cfg.GateCooldown)
	if err != nil {
		return SkipFilter("signal gate check failed: " + err.Error())
	}
	if !accepted {
		return SkipFilter("duplicate signal for this bar or within cooldown")
	}

	if sig.Meta.Confidence.LessThan(f.cfg.MinSignalConfidence) {
		return SkipFilter("confidence below min_signal_confidence")
	}

	if sig.Meta.BarsInRegime < minBarsInRegime {
		return SkipFilter("bars_in_regime below minimum")
	}

	// Market-closed is a Tier 1 hard fail (safety.Checker); here we only
	// apply the equities-only time-of-day windows while the market is open.
	if isEquity && clock.IsOpen {
		sinceOpen := time.Since(clock.NextOpen)
		if sinceOpen >= 0 && sinceOpen < time.Duration(f.cfg.MinMinutesAfterOpen)*time.Minute {
			return SkipFilter("within min_minutes_after_open window")
		}
		untilClose := time.Until(clock.NextClose)
		if untilClose >= 0 && untilClose < time.Duration(f.cfg.MinMinutesBeforeClose)*time.Minute {
			return SkipFilter("within min_minutes_before_close window")
		}
	}

	if quoteErr != nil {
		return SkipFilter("spread check failed to fetch quote: " + quoteErr.Error())
	}
	if !quote.Bid.IsZero() && !quote.Ask.IsZero() {
		spreadPct := quote.Ask.Sub(quote.Bid).Div(quote.Bid)
		if spreadPct.GreaterThan(f.cfg.MaxSpreadPct) {
			return SkipFilter("spread exceeds max_spread_pct")
		}
	}

	return Accept()
}

// minBarsInRegime is the Tier 3 floor below which a signal is skipped as
// still forming within a freshly classified regime.
const minBarsInRegime = 10

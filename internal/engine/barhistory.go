package engine

import (
	"context"
	"sync"

	"market_maker/internal/core"
)

// barHistoryCapacity is the default bound: the slowest configured SMA (50)
// on the latest and previous bar (51 bars) plus a 10-bar buffer fit in 61
// bars, the ATR(14) window (15 bars) lies inside the same span, and nothing
// downstream needs more history than that per symbol.
const barHistoryCapacity = 61

// BarHistory maintains a bounded, persisted per-symbol/timeframe window of
// the most recently closed bars. It is the assembly point between the
// market-data port and strategy.Engine.Evaluate, which needs an oldest-first
// slice of closed bars on every fresh candle.
type BarHistory struct {
	repo core.StateRepository
	cap  int

	mu   sync.Mutex
	bars map[string][]core.Bar
}

// NewBarHistory constructs a BarHistory. capacity<=0 uses the engine default
// of 61 bars.
func NewBarHistory(repo core.StateRepository, capacity int) *BarHistory {
	if capacity <= 0 {
		capacity = barHistoryCapacity
	}
	return &BarHistory{repo: repo, cap: capacity, bars: make(map[string][]core.Bar)}
}

func barKey(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}

// Append persists a freshly closed bar and folds it into the symbol/
// timeframe's in-memory window, trimming the oldest entries past capacity.
// It returns a copy of the resulting window (oldest first), ready to hand to
// strategy.Engine.Evaluate. A bar whose timestamp doesn't advance the window
// (a duplicate or a stale replay) is persisted but left out of the window.
func (h *BarHistory) Append(ctx context.Context, bar core.Bar) ([]core.Bar, error) {
	if err := h.repo.SaveBar(ctx, bar); err != nil {
		return nil, err
	}

	key := barKey(bar.Symbol, bar.Timeframe)
	h.mu.Lock()
	defer h.mu.Unlock()

	existing := h.bars[key]
	if n := len(existing); n > 0 && !bar.Timestamp.After(existing[n-1].Timestamp) {
		return append([]core.Bar{}, existing...), nil
	}

	existing = append(existing, bar)
	if len(existing) > h.cap {
		existing = existing[len(existing)-h.cap:]
	}
	h.bars[key] = existing
	return append([]core.Bar{}, existing...), nil
}

// Bars returns a copy of the currently held window for symbol/timeframe.
func (h *BarHistory) Bars(symbol, timeframe string) []core.Bar {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.Bar{}, h.bars[barKey(symbol, timeframe)]...)
}

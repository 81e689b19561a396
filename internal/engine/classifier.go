package engine

import (
	"context"
	"fmt"

	"market_maker/internal/core"
)

// SymbolClassifier answers whether a symbol trades on the equities calendar
// (subject to market-hours gating) or the crypto calendar (24/7), from the
// fixed trading universe configured at startup.
type SymbolClassifier struct {
	equity map[string]bool
}

// NewSymbolClassifier builds a classifier from the configured crypto/equity
// symbol lists.
func NewSymbolClassifier(cryptoSymbols, equitySymbols []string) *SymbolClassifier {
	equity := make(map[string]bool, len(equitySymbols))
	for _, s := range equitySymbols {
		equity[s] = true
	}
	_ = cryptoSymbols // the crypto list is implicit: anything not listed as equity
	return &SymbolClassifier{equity: equity}
}

// IsEquity reports whether symbol is on the configured equities list. A
// symbol absent from both lists is treated as crypto, so it is never held to
// equities-only market-hours gating.
func (c *SymbolClassifier) IsEquity(symbol string) bool {
	return c.equity[symbol]
}

// FreshClock fetches an uncached broker clock reading. core.Clock is never
// cached, so every gating pass that needs market-open state must call
// through to the broker instead of reusing a prior reading.
func FreshClock(ctx context.Context, broker core.Broker) (core.Clock, error) {
	clock, err := broker.GetClock(ctx)
	if err != nil {
		return core.Clock{}, fmt.Errorf("engine: fetch clock: %w", err)
	}
	return clock, nil
}

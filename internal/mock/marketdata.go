package mock

import (
	"context"
	"sync"

	"market_maker/internal/core"
)

// MarketData is an in-memory core.MarketDataPort fake.
type MarketData struct {
	mu    sync.Mutex
	bars  map[string][]core.Bar
	quote map[string]core.Quote

	GetBarsErr     error
	GetSnapshotErr error
}

// NewMarketData constructs an empty MarketData fake.
func NewMarketData() *MarketData {
	return &MarketData{
		bars:  make(map[string][]core.Bar),
		quote: make(map[string]core.Quote),
	}
}

// SetBars seeds the bar history returned for symbol/timeframe.
func (m *MarketData) SetBars(symbol, timeframe string, bars []core.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol+"|"+timeframe] = bars
}

// SetQuote seeds the snapshot quote returned for symbol.
func (m *MarketData) SetQuote(symbol string, q core.Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quote[symbol] = q
}

func (m *MarketData) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]core.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetBarsErr != nil {
		return nil, m.GetBarsErr
	}
	bars := m.bars[symbol+"|"+timeframe]
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]core.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (m *MarketData) GetSnapshot(ctx context.Context, symbol string) (core.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetSnapshotErr != nil {
		return core.Quote{}, m.GetSnapshotErr
	}
	return m.quote[symbol], nil
}

var _ core.MarketDataPort = (*MarketData)(nil)

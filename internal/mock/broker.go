// Package mock provides in-memory fakes of the Broker and MarketDataPort
// ports for tests: canned responses plus optional injected errors.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"market_maker/internal/core"
)

// Broker is an in-memory core.Broker fake.
type Broker struct {
	mu sync.Mutex

	clock     core.Clock
	account   core.Account
	positions map[string]core.BrokerPosition
	openOrds  map[string]core.OrderInfo
	orderSeq  int

	SubmitErr error
	CancelErr error

	// SubmitHook, if set, is invoked before the default submit behavior and
	// may mutate the returned OrderInfo (e.g. to simulate partial fills).
	SubmitHook func(symbol string, side core.Side, qty, limitPrice decimal.Decimal, clientOrderID string) core.OrderInfo
}

// NewBroker constructs a Broker fake with a tradeable account and open market.
func NewBroker() *Broker {
	return &Broker{
		clock:     core.Clock{IsOpen: true, FetchedAt: time.Now()},
		account:   core.Account{PortfolioValue: decimal.NewFromInt(100000), CashAvailable: decimal.NewFromInt(100000), IsTradable: true},
		positions: make(map[string]core.BrokerPosition),
		openOrds:  make(map[string]core.OrderInfo),
	}
}

func (b *Broker) GetClock(ctx context.Context) (core.Clock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clock, nil
}

func (b *Broker) SetClock(c core.Clock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = c
}

func (b *Broker) GetAccount(ctx context.Context) (core.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account, nil
}

func (b *Broker) SetAccount(a core.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account = a
}

func (b *Broker) GetPositions(ctx context.Context) ([]core.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.BrokerPosition, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

func (b *Broker) SetPosition(p core.BrokerPosition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[p.Symbol] = p
}

func (b *Broker) SubmitOrder(ctx context.Context, symbol string, side core.Side, qty, limitPrice decimal.Decimal, clientOrderID string) (core.OrderInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.SubmitErr != nil {
		return core.OrderInfo{}, b.SubmitErr
	}

	b.orderSeq++
	info := core.OrderInfo{
		BrokerOrderID: fmt.Sprintf("broker-%d", b.orderSeq),
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Quantity:      qty,
		LimitPrice:    limitPrice,
		State:         core.OrderAccepted,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if b.SubmitHook != nil {
		info = b.SubmitHook(symbol, side, qty, limitPrice, clientOrderID)
		info.BrokerOrderID = fmt.Sprintf("broker-%d", b.orderSeq)
		info.ClientOrderID = clientOrderID
	}
	b.openOrds[info.BrokerOrderID] = info
	return info, nil
}

func (b *Broker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CancelErr != nil {
		return b.CancelErr
	}
	delete(b.openOrds, brokerOrderID)
	return nil
}

func (b *Broker) GetOpenOrders(ctx context.Context) ([]core.OrderInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.OrderInfo, 0, len(b.openOrds))
	for _, o := range b.openOrds {
		out = append(out, o)
	}
	return out, nil
}

var _ core.Broker = (*Broker)(nil)

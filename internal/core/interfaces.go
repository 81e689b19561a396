package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ILogger is the logging contract every component depends on.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// Broker is the external brokerage port. Concrete wire transport is out
// of scope; this engine only consumes an implementation of it.
type Broker interface {
	GetClock(ctx context.Context) (Clock, error)
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
	SubmitOrder(ctx context.Context, symbol string, side Side, qty, limitPrice decimal.Decimal, clientOrderID string) (OrderInfo, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	GetOpenOrders(ctx context.Context) ([]OrderInfo, error)
}

// MarketDataPort is the external market-data port.
type MarketDataPort interface {
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
	GetSnapshot(ctx context.Context, symbol string) (Quote, error)
}

// StateRepository is the persistence port.
type StateRepository interface {
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error

	GateTryAccept(ctx context.Context, gate string, barTS, now time.Time, cooldown time.Duration) (bool, error)

	SaveOrderIntent(ctx context.Context, oi OrderIntent) error
	UpdateOrderIntent(ctx context.Context, clientOrderID, brokerOrderID string, state OrderState, updatedAt time.Time) error
	GetOrderIntent(ctx context.Context, clientOrderID string) (OrderIntent, bool, error)
	ListOpenOrderIntents(ctx context.Context) ([]OrderIntent, error)

	InsertFillIdempotent(ctx context.Context, f Fill) (bool, error)

	GetExitBackoffSeconds(ctx context.Context, symbol string) (int, error)
	RecordExitAttempt(ctx context.Context, symbol string, at time.Time) error
	ClearExitAttempt(ctx context.Context, symbol string) error

	GetCircuitBreakerCount(ctx context.Context) (int, error)
	SaveCircuitBreakerCount(ctx context.Context, n int) error
	ResetCircuitBreaker(ctx context.Context, at time.Time) error

	GetDrawdownState(ctx context.Context) (DrawdownState, error)
	SaveDrawdownState(ctx context.Context, s DrawdownState) error

	InsertEquitySnapshot(ctx context.Context, p EquityPoint) error

	SavePosition(ctx context.Context, p PositionTracking) error
	GetPosition(ctx context.Context, symbol string) (PositionTracking, bool, error)
	ListPositions(ctx context.Context) ([]PositionTracking, error)
	DeletePosition(ctx context.Context, symbol string) error

	SaveBar(ctx context.Context, b Bar) error

	InsertReconciliationReport(ctx context.Context, r ReconciliationReport) error
}

// EventBus is the dual-channel dispatch contract.
type EventBus interface {
	PublishNormal(ctx context.Context, e Event) bool
	PublishExit(ctx context.Context, e Event)
	Subscribe(tag EventTag, handler func(context.Context, Event))
	Run(ctx context.Context)
	DroppedCount() uint64
}

// EventTag discriminates event kinds on the bus.
type EventTag string

const (
	EventBar          EventTag = "BarEvent"
	EventSignal       EventTag = "SignalEvent"
	EventOrderIntent  EventTag = "OrderIntentEvent"
	EventOrderUpdate  EventTag = "OrderUpdateEvent"
	EventExitSignal   EventTag = "ExitSignalEvent"
)

// Event is a tagged envelope dispatched through the Event Bus.
type Event struct {
	Tag     EventTag
	Bar     *Bar
	Signal  *Signal
	Intent  *OrderIntent
	Update  *OrderUpdate
	ExitSig *ExitSignal
}

// OrderUpdate is a broker-reported change to an order's state.
type OrderUpdate struct {
	ClientOrderID string
	BrokerOrderID string
	Symbol        string
	State         OrderState
	FilledQty     decimal.Decimal
	FilledPrice   decimal.Decimal
	DedupeKey     string
	UpdatedAt     time.Time
}

// ExitSignal is published by the Exit Engine to request a position close.
type ExitSignal struct {
	Symbol string
	Reason ExitReason
	Price  decimal.Decimal
}

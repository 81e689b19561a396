// Package core defines the shared domain types and ports used across the
// trading engine: order/fill/position entities, the enums that drive the
// state machines in the risk and order-management layers, and the logger
// contract every component depends on.
package core

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderState is the lifecycle state of an OrderIntent.
type OrderState string

const (
	OrderPendingNew      OrderState = "PendingNew"
	OrderAccepted        OrderState = "Accepted"
	OrderPendingCancel   OrderState = "PendingCancel"
	OrderCanceled        OrderState = "Canceled"
	OrderExpired         OrderState = "Expired"
	OrderFilled          OrderState = "Filled"
	OrderPartiallyFilled OrderState = "PartiallyFilled"
	OrderPendingReplace  OrderState = "PendingReplace"
	OrderReplaced        OrderState = "Replaced"
	OrderRejected        OrderState = "Rejected"
	OrderSuspended       OrderState = "Suspended"
)

// nonTerminal is the set of states from which an order can still transition.
var nonTerminal = map[OrderState]bool{
	OrderPendingNew:     true,
	OrderAccepted:       true,
	OrderPendingCancel:  true,
	OrderPendingReplace: true,
}

// IsTerminal reports whether the state admits no further transitions.
func (s OrderState) IsTerminal() bool {
	return !nonTerminal[s]
}

// OrderIntent is the durable record of an order the engine has decided to
// submit, written before broker contact and keyed by a deterministic id.
type OrderIntent struct {
	ClientOrderID string
	BrokerOrderID string
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal
	State         OrderState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Fill is a single fill event for a broker order, deduplicated on
// (BrokerOrderID, DedupeKey).
type Fill struct {
	BrokerOrderID string
	ClientOrderID string
	FilledQty     decimal.Decimal
	FilledPrice   decimal.Decimal
	DedupeKey     string
	FilledAt      time.Time
}

// PositionTracking is the engine's local view of an open position.
type PositionTracking struct {
	Symbol            string
	Quantity          decimal.Decimal
	EntryPrice        decimal.Decimal
	ATRValue          decimal.Decimal
	TrailingStopPrice decimal.Decimal
	LastUpdateAt      time.Time
	PendingExit       bool
}

// Reserved BotState keys.
const (
	BotStateDailyRealizedPnL = "daily_realized_pnl"
	BotStateDailyTradeCount  = "daily_trade_count"
	BotStateDailyResetDate  = "daily_reset_date"
	BotStateTradingHalted   = "trading_halted"
	BotStateBrokerHealth    = "broker_health"
)

// BrokerHealth values for BotStateBrokerHealth.
const (
	BrokerHealthOK       = "ok"
	BrokerHealthDegraded = "degraded"
)

// DrawdownLevel is the four-stage escalation ladder of the Drawdown Monitor.
type DrawdownLevel string

const (
	DrawdownNormal    DrawdownLevel = "Normal"
	DrawdownWarning   DrawdownLevel = "Warning"
	DrawdownHalt      DrawdownLevel = "Halt"
	DrawdownEmergency DrawdownLevel = "Emergency"
)

// DrawdownState is the singleton persisted drawdown row.
type DrawdownState struct {
	Level                   DrawdownLevel
	PeakEquity              decimal.Decimal
	CurrentDrawdownPct      decimal.Decimal
	LastUpdated             time.Time
	LastPeakResetTime       time.Time
	ManualRecoveryRequested bool
}

// CircuitBreakerState is the singleton persisted circuit-breaker row.
type CircuitBreakerState struct {
	Count       int
	LastResetAt time.Time
}

// SignalGate is a repository-backed atomic check-and-accept row used for
// same-bar and cooldown dedupe.
type SignalGate struct {
	GateName          string
	LastAcceptedBarTS *time.Time
	LastAcceptedTS    *time.Time
	UpdatedAt         time.Time
}

// EquityPoint is one append-only row of the equity curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
}

// Bar is one OHLCV candle for a symbol/timeframe.
type Bar struct {
	Symbol    string
	Timeframe string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Quote is a bid/ask snapshot.
type Quote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	FetchedAt time.Time
}

// ExitAttempt tracks the exponential backoff ladder for a symbol's pending
// exit publication.
type ExitAttempt struct {
	Symbol        string
	AttemptCount  int
	LastAttemptAt time.Time
	NextRetryAt   time.Time
}

// ReconciliationReport is an append-only diff snapshot.
type ReconciliationReport struct {
	ID        string
	CreatedAt time.Time
	Body      string // JSON blob
}

// Regime is the coarse trend classification produced by the Strategy Core.
type Regime string

const (
	RegimeTrendingUp   Regime = "TRENDING_UP"
	RegimeTrendingDown Regime = "TRENDING_DOWN"
	RegimeRanging      Regime = "RANGING"
)

// SMAPeriod identifies one of the three tracked crossover pairs.
type SMAPeriod struct {
	Fast int
	Slow int
}

func (p SMAPeriod) String() string {
	return strconv.Itoa(p.Fast) + "_" + strconv.Itoa(p.Slow)
}

// SignalMetadata is the closed set of fields emitted with every signal.
type SignalMetadata struct {
	SMAPeriod      SMAPeriod
	FastSMA        decimal.Decimal
	MediumSMA      decimal.Decimal
	SlowSMA        decimal.Decimal
	ATR            *decimal.Decimal
	Confidence     decimal.Decimal
	Regime         Regime
	RegimeStrength decimal.Decimal
	CurrentPrice   decimal.Decimal
	BarsInRegime   int
}

// Signal is an emitted trading signal for a symbol/timeframe/side.
type Signal struct {
	Strategy  string
	Symbol    string
	Timeframe string
	SignalTS  time.Time
	Side      Side
	Quantity  decimal.Decimal // 0 is the sentinel meaning "compute via sizer"
	Meta      SignalMetadata
}

// AssetClass classifies a symbol for concentration checks.
type AssetClass string

const (
	AssetEquity     AssetClass = "Equity"
	AssetBond       AssetClass = "Bond"
	AssetCrypto     AssetClass = "Crypto"
	AssetCommodity  AssetClass = "Commodity"
	AssetRealEstate AssetClass = "RealEstate"
)

// Sector is a GICS-like sector classification, plus Unknown.
type Sector string

const SectorUnknown Sector = "Unknown"

// ExitReason identifies which exit rule fired.
type ExitReason string

const (
	ExitATRStopLoss     ExitReason = "ATR_STOP_LOSS"
	ExitATRProfitTarget ExitReason = "ATR_PROFIT_TARGET"
	ExitTrailingStop    ExitReason = "TRAILING_STOP"
)

// Action is the resolved order-manager action for a signal side.
type Action string

const (
	ActionEnterLong Action = "ENTER_LONG"
	ActionExitLong  Action = "EXIT_LONG"
)

// Account is a short-TTL-cacheable snapshot of broker account state.
type Account struct {
	PortfolioValue decimal.Decimal
	CashAvailable  decimal.Decimal
	CashReserved   decimal.Decimal
	DayTradeCount  int
	IsTradable     bool
}

// BrokerPosition is a broker-reported open position.
type BrokerPosition struct {
	Symbol        string
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Clock is a point-in-time broker clock reading. Never cached.
type Clock struct {
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
	FetchedAt time.Time
}

// OrderInfo is what submit_order/cancel_order/get_open_orders return.
type OrderInfo struct {
	BrokerOrderID string
	ClientOrderID string
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	FilledQty     decimal.Decimal
	LimitPrice    decimal.Decimal
	State         OrderState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

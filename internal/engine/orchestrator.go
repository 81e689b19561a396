package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"market_maker/internal/core"
	"market_maker/internal/order"
	"market_maker/internal/risk"
	"market_maker/internal/riskpipeline"
	"market_maker/internal/strategy"
)

// Config parametrizes the Orchestrator.
type Config struct {
	Symbols        []string
	Timeframe      string
	PollInterval   time.Duration
	DryRun         bool
	KillSwitch     bool
	DefaultStopPct decimal.Decimal // fallback stop distance (as a fraction of price) when a signal carries no ATR
}

func (c Config) withDefaults() Config {
	if c.Timeframe == "" {
		c.Timeframe = "1Min"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	return c
}

// Orchestrator is the engine's central wiring: it polls fresh bars, feeds
// them through the bounded bar history and the strategy engine, drives
// every resulting signal through the Risk & Gating Pipeline and the Order
// Manager's write-ahead submit flow, and routes exit signals from the Exit
// Engine through their own lighter kill-switch-only gate. It subscribes to
// the Event Bus rather than being called directly, so bar and signal
// handling runs on the bus's single dispatch loop.
type Orchestrator struct {
	bus        core.EventBus
	repo       core.StateRepository
	broker     core.Broker
	marketData core.MarketDataPort

	history    *BarHistory
	classifier *SymbolClassifier
	strategy   *strategy.Engine
	risk       *riskpipeline.RiskManager
	sizer      *risk.Sizer
	drawdown   *risk.DrawdownMonitor
	orders     *order.Manager
	logger     core.ILogger

	cfg Config
}

// NewOrchestrator constructs an Orchestrator and subscribes its handlers to
// bus. Subscribe must complete before the bus's dispatch loop starts, so
// callers should construct the Orchestrator before calling Bus.Run.
func NewOrchestrator(
	bus core.EventBus,
	repo core.StateRepository,
	broker core.Broker,
	marketData core.MarketDataPort,
	history *BarHistory,
	classifier *SymbolClassifier,
	strategyEngine *strategy.Engine,
	riskMgr *riskpipeline.RiskManager,
	sizer *risk.Sizer,
	drawdown *risk.DrawdownMonitor,
	orders *order.Manager,
	logger core.ILogger,
	cfg Config,
) *Orchestrator {
	o := &Orchestrator{
		bus:        bus,
		repo:       repo,
		broker:     broker,
		marketData: marketData,
		history:    history,
		classifier: classifier,
		strategy:   strategyEngine,
		risk:       riskMgr,
		sizer:      sizer,
		drawdown:   drawdown,
		orders:     orders,
		logger:     logger.WithField("component", "orchestrator"),
		cfg:        cfg.withDefaults(),
	}
	o.wire()
	return o
}

func (o *Orchestrator) wire() {
	o.bus.Subscribe(core.EventBar, o.onBar)
	o.bus.Subscribe(core.EventSignal, o.onSignal)
	o.bus.Subscribe(core.EventExitSignal, o.onExitSignal)
}

// Run polls every configured symbol for freshly closed bars on an interval
// and publishes them as BarEvents; it blocks until ctx is canceled. This is
// the engine's only bar source once wired into bootstrap.App.Run.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.pollBars(ctx)
		}
	}
}

func (o *Orchestrator) pollBars(ctx context.Context) {
	for _, symbol := range o.cfg.Symbols {
		bars, err := o.marketData.GetBars(ctx, symbol, o.cfg.Timeframe, 1)
		if err != nil {
			o.logger.Warn("poll bars failed", "symbol", symbol, "error", err.Error())
			continue
		}
		if len(bars) == 0 {
			continue
		}
		latest := bars[len(bars)-1]
		o.bus.PublishNormal(ctx, core.Event{Tag: core.EventBar, Bar: &latest})
	}
}

func (o *Orchestrator) onBar(ctx context.Context, e core.Event) {
	if e.Bar == nil {
		return
	}
	bars, err := o.history.Append(ctx, *e.Bar)
	if err != nil {
		o.logger.Error("bar history append failed", "symbol", e.Bar.Symbol, "error", err.Error())
		return
	}

	signals := o.strategy.Evaluate(e.Bar.Symbol, e.Bar.Timeframe, bars)
	for i := range signals {
		sig := signals[i]
		o.bus.PublishNormal(ctx, core.Event{Tag: core.EventSignal, Signal: &sig})
	}
}

func (o *Orchestrator) onSignal(ctx context.Context, e core.Event) {
	if e.Signal == nil {
		return
	}
	if err := o.ProcessSignal(ctx, *e.Signal); err != nil {
		o.logger.Error("signal processing failed", "symbol", e.Signal.Symbol, "error", err.Error())
	}
}

func (o *Orchestrator) onExitSignal(ctx context.Context, e core.Event) {
	if e.ExitSig == nil {
		return
	}
	if err := o.SubmitExit(ctx, *e.ExitSig); err != nil {
		o.logger.Error("exit submit failed", "symbol", e.ExitSig.Symbol, "error", err.Error())
	}
}

// ProcessSignal resolves a strategy signal into an order-manager action,
// sizes it, runs it through the Risk & Gating Pipeline, and submits it:
// resolve side/action against the currently held position; compute quantity
// via the Sizer when the signal carries the 0 sentinel; scale by the
// drawdown position multiplier; evaluate the full gating pipeline (entries)
// or the lighter kill-switch-only gate (exits); derive the deterministic
// client order id; and submit through the Order Manager's write-ahead flow.
func (o *Orchestrator) ProcessSignal(ctx context.Context, sig core.Signal) error {
	pos, hasPosition, err := o.repo.GetPosition(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("orchestrator: lookup position: %w", err)
	}

	var action core.Action
	switch {
	case sig.Side == core.SideBuy && !hasPosition:
		action = core.ActionEnterLong
	case sig.Side == core.SideSell && hasPosition && pos.Quantity.IsPositive():
		action = core.ActionExitLong
	default:
		// No pyramiding into an existing long, and no short side to resolve
		// into: this signal doesn't correspond to an actionable order.
		return nil
	}

	clock, err := FreshClock(ctx, o.broker)
	if err != nil {
		return err
	}

	if action == core.ActionExitLong {
		v := o.risk.EvaluateExit(ctx, o.cfg.KillSwitch)
		if !v.Accepted() {
			o.logger.Info("exit signal blocked", "symbol", sig.Symbol, "reason", v.Reason)
			return nil
		}
		return o.submitResolved(ctx, sig, action, pos.Quantity.Abs())
	}

	account, err := o.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: fetch account: %w", err)
	}
	drawdownState, err := o.repo.GetDrawdownState(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: fetch drawdown state: %w", err)
	}
	openPositions, err := o.repo.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: list positions: %w", err)
	}
	quote, quoteErr := o.marketData.GetSnapshot(ctx, sig.Symbol)

	price := sig.Meta.CurrentPrice
	stopDistance := o.stopDistance(sig, price)
	drawdownMult := o.drawdown.PositionSizeMultiplier()

	v, err := o.risk.Evaluate(ctx, riskpipeline.Input{
		KillSwitch:    o.cfg.KillSwitch,
		Account:       account,
		DrawdownLevel: drawdownState.Level,
		Signal:        sig,
		Quote:         quote,
		QuoteErr:      quoteErr,
		Clock:         clock,
		IsEquity:      o.classifier.IsEquity(sig.Symbol),
		OpenPositions: openPositions,
		Sizing: risk.SizingInputs{
			Equity:             account.PortfolioValue,
			Price:              price,
			StopDistance:       stopDistance,
			DrawdownMultiplier: drawdownMult,
		},
	})
	if err != nil {
		return fmt.Errorf("orchestrator: risk evaluate: %w", err)
	}
	if !v.Accepted() {
		o.logger.Info("signal blocked by risk pipeline", "symbol", sig.Symbol, "kind", string(v.Kind), "reason", v.Reason)
		return nil
	}

	qty := sig.Quantity
	if qty.IsZero() {
		qty = o.sizer.Size(account.PortfolioValue, price, stopDistance, drawdownMult)
	}

	if err := o.submitResolved(ctx, sig, action, qty); err != nil {
		return err
	}
	return o.incrementDailyTradeCount(ctx)
}

// stopDistance prefers the signal's own ATR reading; a signal carrying no
// ATR (too few bars for the Strategy Core's ATR window yet) falls back to
// the configured default stop percentage of price.
func (o *Orchestrator) stopDistance(sig core.Signal, price decimal.Decimal) decimal.Decimal {
	if sig.Meta.ATR != nil && !sig.Meta.ATR.IsZero() {
		return *sig.Meta.ATR
	}
	if !o.cfg.DefaultStopPct.IsZero() {
		return price.Mul(o.cfg.DefaultStopPct)
	}
	return decimal.Zero
}

func (o *Orchestrator) submitResolved(ctx context.Context, sig core.Signal, action core.Action, qty decimal.Decimal) error {
	side := sig.Side
	if action == core.ActionExitLong {
		side = core.SideSell
	}

	clientOrderID := order.DeterministicClientOrderID(sig.Strategy, sig.Symbol, sig.Timeframe, side, sig.SignalTS)
	intent := core.OrderIntent{
		ClientOrderID: clientOrderID,
		Symbol:        sig.Symbol,
		Side:          side,
		Quantity:      qty,
		LimitPrice:    sig.Meta.CurrentPrice,
	}

	if o.cfg.DryRun {
		o.logger.Info("dry run: skipping broker submit", "client_order_id", clientOrderID, "symbol", sig.Symbol, "action", string(action))
		return nil
	}

	info, err := o.orders.Submit(ctx, intent)
	if err != nil {
		if errors.Is(err, order.ErrAlreadyPending) {
			return nil
		}
		return fmt.Errorf("orchestrator: submit order: %w", err)
	}

	intent.BrokerOrderID = info.BrokerOrderID
	intent.State = info.State
	o.bus.PublishNormal(ctx, core.Event{Tag: core.EventOrderIntent, Intent: &intent})
	return nil
}

// SubmitExit submits a broker-side close for a triggered Exit Engine signal,
// keyed by the per-day deterministic exit client order id so a retried
// signal for the same symbol within the same day never double-submits. It
// runs only the kill-switch gate: an exit must always be able to close a
// position regardless of portfolio-level limits or filters.
func (o *Orchestrator) SubmitExit(ctx context.Context, sig core.ExitSignal) error {
	pos, found, err := o.repo.GetPosition(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("orchestrator: lookup position for exit: %w", err)
	}
	if !found || pos.Quantity.IsZero() {
		return nil
	}

	if v := o.risk.EvaluateExit(ctx, o.cfg.KillSwitch); !v.Accepted() {
		o.logger.Warn("exit submit blocked by kill switch", "symbol", sig.Symbol, "reason", v.Reason)
		return nil
	}

	side := exitSideFor(pos)
	clientOrderID := order.DeterministicExitClientOrderID(sig.Symbol, side, time.Now())
	intent := core.OrderIntent{
		ClientOrderID: clientOrderID,
		Symbol:        sig.Symbol,
		Side:          side,
		Quantity:      pos.Quantity.Abs(),
		LimitPrice:    sig.Price,
	}

	if o.cfg.DryRun {
		o.logger.Info("dry run: skipping exit submit", "client_order_id", clientOrderID, "symbol", sig.Symbol)
		return nil
	}

	info, err := o.orders.Submit(ctx, intent)
	if err != nil {
		if errors.Is(err, order.ErrAlreadyPending) {
			return nil
		}
		return fmt.Errorf("orchestrator: submit exit: %w", err)
	}

	intent.BrokerOrderID = info.BrokerOrderID
	intent.State = info.State
	o.bus.PublishNormal(ctx, core.Event{Tag: core.EventOrderIntent, Intent: &intent})
	if err := o.repo.ClearExitAttempt(ctx, sig.Symbol); err != nil {
		o.logger.Error("failed to clear exit attempt", "symbol", sig.Symbol, "error", err.Error())
	}
	return nil
}

// FlattenPositions submits an opposing order for every broker-reported
// position, bypassing the Exit Engine's ATR/trailing triggers entirely.
// Emergency drawdown blocks all orders and flattens positions: the
// Housekeeper's Emergency hook calls this. Per-symbol failures are logged
// and skipped rather than aborting the whole pass.
func (o *Orchestrator) FlattenPositions(ctx context.Context) error {
	positions, err := o.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: list broker positions for flatten: %w", err)
	}

	var firstErr error
	for _, pos := range positions {
		if pos.Quantity.IsZero() {
			continue
		}
		side := core.SideSell
		if pos.Quantity.IsNegative() {
			side = core.SideBuy
		}
		clientOrderID := order.DeterministicFlattenClientOrderID(pos.Symbol, side, time.Now())
		intent := core.OrderIntent{
			ClientOrderID: clientOrderID,
			Symbol:        pos.Symbol,
			Side:          side,
			Quantity:      pos.Quantity.Abs(),
		}

		if o.cfg.DryRun {
			o.logger.Info("dry run: skipping flatten submit", "client_order_id", clientOrderID, "symbol", pos.Symbol)
			continue
		}

		info, err := o.orders.Submit(ctx, intent)
		if err != nil {
			if errors.Is(err, order.ErrAlreadyPending) {
				continue
			}
			o.logger.Error("flatten submit failed", "symbol", pos.Symbol, "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		intent.BrokerOrderID = info.BrokerOrderID
		intent.State = info.State
		o.bus.PublishNormal(ctx, core.Event{Tag: core.EventOrderIntent, Intent: &intent})
	}
	return firstErr
}

func exitSideFor(pos core.PositionTracking) core.Side {
	if pos.Quantity.IsNegative() {
		return core.SideBuy
	}
	return core.SideSell
}

func (o *Orchestrator) incrementDailyTradeCount(ctx context.Context) error {
	raw, _, err := o.repo.GetState(ctx, core.BotStateDailyTradeCount)
	if err != nil {
		return fmt.Errorf("orchestrator: read daily trade count: %w", err)
	}
	count, _ := strconv.Atoi(raw)
	count++
	if err := o.repo.SetState(ctx, core.BotStateDailyTradeCount, strconv.Itoa(count)); err != nil {
		return fmt.Errorf("orchestrator: persist daily trade count: %w", err)
	}
	return nil
}

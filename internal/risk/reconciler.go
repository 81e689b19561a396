package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"market_maker/internal/core"
)

// divergenceAutoCorrectPct is the threshold below which a position-size
// mismatch between local state and the broker is auto-corrected in place;
// at or above it trading halts for operator review.
var divergenceAutoCorrectPct = decimal.NewFromInt(5)

// positionDiff is one symbol's local-vs-broker comparison result.
type positionDiff struct {
	Symbol        string          `json:"symbol"`
	LocalQty      decimal.Decimal `json:"local_qty"`
	BrokerQty     decimal.Decimal `json:"broker_qty"`
	DivergencePct decimal.Decimal `json:"divergence_pct"`
	Corrected     bool            `json:"corrected"`
	Halted        bool            `json:"halted"`
}

// reconciliationBody is the JSON shape persisted in ReconciliationReport.Body.
type reconciliationBody struct {
	Positions     []positionDiff `json:"positions"`
	GhostLocal    []string       `json:"ghost_local_orders"`
	GhostBroker   []string       `json:"ghost_broker_orders"`
	CompletedAt   time.Time      `json:"completed_at"`
}

// Reconciler periodically diffs local state against the broker's
// authoritative view of orders and positions using a ticker-driven run
// loop.
type Reconciler struct {
	broker core.Broker
	repo   core.StateRepository
	logger core.ILogger

	interval time.Duration

	mu   sync.Mutex
	wg   sync.WaitGroup
	stop chan struct{}
}

// NewReconciler constructs a Reconciler.
func NewReconciler(broker core.Broker, repo core.StateRepository, logger core.ILogger, interval time.Duration) *Reconciler {
	return &Reconciler{
		broker:   broker,
		repo:     repo,
		logger:   logger.WithField("component", "reconciler"),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Run starts the periodic reconciliation loop. It performs one pass
// immediately (startup reconciliation) before the ticker-driven pass.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.Reconcile(ctx); err != nil {
		r.logger.Error("startup reconciliation failed", "error", err.Error())
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stop:
			return nil
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				r.logger.Error("periodic reconciliation failed", "error", err.Error())
			}
		}
	}
}

// Stop ends the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stop)
}

// Reconcile performs one reconciliation pass: diff orders, diff positions,
// auto-correct small position divergence, and halt trading on large
// divergence.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ghostLocal, ghostBroker, err := r.reconcileOrders(ctx)
	if err != nil {
		return fmt.Errorf("order reconciliation: %w", err)
	}

	diffs, halt, err := r.reconcilePositions(ctx)
	if err != nil {
		return fmt.Errorf("position reconciliation: %w", err)
	}

	if halt {
		if err := r.repo.SetState(ctx, core.BotStateTradingHalted, "true"); err != nil {
			r.logger.Error("failed to persist trading_halted after large divergence", "error", err.Error())
		}
	}

	body := reconciliationBody{Positions: diffs, GhostLocal: ghostLocal, GhostBroker: ghostBroker, CompletedAt: time.Now()}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal reconciliation report: %w", err)
	}

	report := core.ReconciliationReport{ID: uuid.NewString(), CreatedAt: time.Now(), Body: string(raw)}
	if err := r.repo.InsertReconciliationReport(ctx, report); err != nil {
		return fmt.Errorf("persist reconciliation report: %w", err)
	}

	r.logger.Info("reconciliation pass completed", "positions", len(diffs), "ghost_local", len(ghostLocal), "ghost_broker", len(ghostBroker), "halted", halt)
	return nil
}

// reconcileOrders finds orders the engine believes are open but the broker
// does not know about (ghost local), and orders the broker reports open
// that the engine has no record of (ghost broker); both are logged, the
// latter is also cancelled since an un-tracked live order is unsafe.
func (r *Reconciler) reconcileOrders(ctx context.Context) ([]string, []string, error) {
	localOpen, err := r.repo.ListOpenOrderIntents(ctx)
	if err != nil {
		return nil, nil, err
	}
	brokerOpen, err := r.broker.GetOpenOrders(ctx)
	if err != nil {
		return nil, nil, err
	}

	brokerByID := make(map[string]core.OrderInfo, len(brokerOpen))
	for _, o := range brokerOpen {
		brokerByID[o.BrokerOrderID] = o
	}
	localByID := make(map[string]core.OrderIntent, len(localOpen))
	for _, o := range localOpen {
		if o.BrokerOrderID != "" {
			localByID[o.BrokerOrderID] = o
		}
	}

	var ghostLocal, ghostBroker []string

	for _, o := range localOpen {
		if o.BrokerOrderID == "" {
			continue
		}
		if _, ok := brokerByID[o.BrokerOrderID]; !ok {
			r.logger.Warn("order tracked locally but unknown to broker, marking canceled", "client_order_id", o.ClientOrderID, "broker_order_id", o.BrokerOrderID)
			ghostLocal = append(ghostLocal, o.ClientOrderID)
			if err := r.repo.UpdateOrderIntent(ctx, o.ClientOrderID, o.BrokerOrderID, core.OrderCanceled, time.Now()); err != nil {
				r.logger.Error("failed to mark ghost local order canceled", "error", err.Error())
			}
		}
	}

	for _, o := range brokerOpen {
		if _, ok := localByID[o.BrokerOrderID]; !ok {
			r.logger.Warn("order open on broker but unknown locally, canceling", "broker_order_id", o.BrokerOrderID, "symbol", o.Symbol)
			ghostBroker = append(ghostBroker, o.BrokerOrderID)
			if err := r.broker.CancelOrder(ctx, o.BrokerOrderID); err != nil {
				r.logger.Error("failed to cancel ghost broker order", "error", err.Error())
			}
		}
	}

	return ghostLocal, ghostBroker, nil
}

// reconcilePositions diffs local PositionTracking rows against the broker's
// reported positions, auto-correcting divergence under the threshold and
// signalling a halt for divergence at or above it.
func (r *Reconciler) reconcilePositions(ctx context.Context) ([]positionDiff, bool, error) {
	local, err := r.repo.ListPositions(ctx)
	if err != nil {
		return nil, false, err
	}
	brokerPositions, err := r.broker.GetPositions(ctx)
	if err != nil {
		return nil, false, err
	}

	brokerBySymbol := make(map[string]core.BrokerPosition, len(brokerPositions))
	for _, p := range brokerPositions {
		brokerBySymbol[p.Symbol] = p
	}
	localBySymbol := make(map[string]core.PositionTracking, len(local))
	for _, p := range local {
		localBySymbol[p.Symbol] = p
	}

	symbols := make(map[string]struct{})
	for s := range brokerBySymbol {
		symbols[s] = struct{}{}
	}
	for s := range localBySymbol {
		symbols[s] = struct{}{}
	}

	var diffs []positionDiff
	haltAny := false

	for symbol := range symbols {
		localQty := decimal.Zero
		if p, ok := localBySymbol[symbol]; ok {
			localQty = p.Quantity
		}
		brokerQty := decimal.Zero
		if p, ok := brokerBySymbol[symbol]; ok {
			brokerQty = p.Quantity
		}

		if localQty.Equal(brokerQty) {
			continue
		}

		denom := brokerQty.Abs()
		if denom.IsZero() {
			denom = decimal.NewFromFloat(0.0001)
		}
		divergencePct := brokerQty.Sub(localQty).Div(denom).Mul(decimal.NewFromInt(100)).Abs()

		diff := positionDiff{Symbol: symbol, LocalQty: localQty, BrokerQty: brokerQty, DivergencePct: divergencePct}

		if divergencePct.LessThan(divergenceAutoCorrectPct) {
			r.logger.Info("auto-correcting small position divergence", "symbol", symbol, "divergence_pct", divergencePct)
			if err := r.correctPosition(ctx, symbol, brokerQty, localBySymbol[symbol]); err != nil {
				r.logger.Error("failed to auto-correct position", "symbol", symbol, "error", err.Error())
			} else {
				diff.Corrected = true
			}
		} else {
			r.logger.Error("large position divergence detected, halting trading", "symbol", symbol, "divergence_pct", divergencePct)
			diff.Halted = true
			haltAny = true
		}

		diffs = append(diffs, diff)
	}

	return diffs, haltAny, nil
}

func (r *Reconciler) correctPosition(ctx context.Context, symbol string, brokerQty decimal.Decimal, existing core.PositionTracking) error {
	if brokerQty.IsZero() {
		return r.repo.DeletePosition(ctx, symbol)
	}
	existing.Symbol = symbol
	existing.Quantity = brokerQty
	existing.LastUpdateAt = time.Now()
	return r.repo.SavePosition(ctx, existing)
}

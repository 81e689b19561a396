package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"market_maker/internal/core"
	"market_maker/pkg/tradingutils"
)

// ApplyFill idempotently applies a broker fill to local order and position
// state. It is a no-op if the (BrokerOrderID, DedupeKey) pair has already
// been recorded. Returns true if the fill was newly applied.
func (m *Manager) ApplyFill(ctx context.Context, f core.Fill) (bool, error) {
	isNew, err := m.repo.InsertFillIdempotent(ctx, f)
	if err != nil {
		return false, fmt.Errorf("order: insert fill: %w", err)
	}
	if !isNew {
		return false, nil
	}

	intent, found, err := m.repo.GetOrderIntent(ctx, f.ClientOrderID)
	if err != nil {
		return false, fmt.Errorf("order: lookup intent for fill: %w", err)
	}
	if !found {
		m.logger.Warn("fill received for unknown order intent", "client_order_id", f.ClientOrderID, "broker_order_id", f.BrokerOrderID)
		return true, nil
	}

	newState := core.OrderPartiallyFilled
	if f.FilledQty.GreaterThanOrEqual(intent.Quantity) {
		newState = core.OrderFilled
	}
	if err := m.repo.UpdateOrderIntent(ctx, f.ClientOrderID, intent.BrokerOrderID, newState, time.Now()); err != nil {
		return false, fmt.Errorf("order: persist fill state: %w", err)
	}

	if err := m.applyPosition(ctx, intent, f); err != nil {
		return false, fmt.Errorf("order: apply position: %w", err)
	}

	return true, nil
}

// applyPosition folds a fill into the local position tracker, computing a
// weighted-average entry price when extending a position and closing it out
// (deleting the row) when the fill flattens it.
func (m *Manager) applyPosition(ctx context.Context, intent core.OrderIntent, f core.Fill) error {
	pos, found, err := m.repo.GetPosition(ctx, intent.Symbol)
	if err != nil {
		return err
	}

	signedFillQty := f.FilledQty
	if intent.Side == core.SideSell {
		signedFillQty = signedFillQty.Neg()
	}

	if !found {
		if signedFillQty.IsZero() {
			return nil
		}
		return m.repo.SavePosition(ctx, core.PositionTracking{
			Symbol:       intent.Symbol,
			Quantity:     signedFillQty,
			EntryPrice:   f.FilledPrice,
			LastUpdateAt: time.Now(),
		})
	}

	newQty := pos.Quantity.Add(signedFillQty)

	sameSign := (pos.Quantity.IsPositive() && signedFillQty.IsPositive()) || (pos.Quantity.IsNegative() && signedFillQty.IsNegative())
	if !sameSign {
		reducedQty := decimal.Min(pos.Quantity.Abs(), signedFillQty.Abs())
		if err := m.recordRealizedPnL(ctx, pos, f.FilledPrice, reducedQty); err != nil {
			return err
		}
	}

	if newQty.IsZero() {
		if err := m.repo.DeletePosition(ctx, intent.Symbol); err != nil {
			return err
		}
		return m.repo.ClearExitAttempt(ctx, intent.Symbol)
	}

	if sameSign {
		existingNotional := pos.Quantity.Abs().Mul(pos.EntryPrice)
		addedNotional := signedFillQty.Abs().Mul(f.FilledPrice)
		totalQty := pos.Quantity.Abs().Add(signedFillQty.Abs())
		pos.EntryPrice = existingNotional.Add(addedNotional).Div(totalQty)
	} else if newQty.Sign() != pos.Quantity.Sign() {
		// Fill flipped the position's direction; re-anchor the entry price.
		pos.EntryPrice = f.FilledPrice
	}

	pos.Quantity = newQty
	pos.LastUpdateAt = time.Now()
	return m.repo.SavePosition(ctx, pos)
}

// recordRealizedPnL folds the profit from closing `reducedQty` units of an
// existing position at exitPrice into the daily realized PnL counter that
// Tier 2's max_daily_loss check and the Housekeeper's daily reset consume.
func (m *Manager) recordRealizedPnL(ctx context.Context, pos core.PositionTracking, exitPrice, reducedQty decimal.Decimal) error {
	var pnl decimal.Decimal
	if pos.Quantity.IsPositive() {
		pnl = tradingutils.CalculateNetProfit(pos.EntryPrice, exitPrice, decimal.Zero, decimal.Zero).Mul(reducedQty)
	} else {
		pnl = tradingutils.CalculateNetProfit(exitPrice, pos.EntryPrice, decimal.Zero, decimal.Zero).Mul(reducedQty)
	}

	raw, _, err := m.repo.GetState(ctx, core.BotStateDailyRealizedPnL)
	if err != nil {
		return fmt.Errorf("order: read daily realized pnl: %w", err)
	}
	current := decimal.Zero
	if raw != "" {
		if parsed, perr := decimal.NewFromString(raw); perr == nil {
			current = parsed
		}
	}
	return m.repo.SetState(ctx, core.BotStateDailyRealizedPnL, current.Add(pnl).String())
}

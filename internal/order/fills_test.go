package order

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
)

func fillFor(intent core.OrderIntent, clientOrderID string, qty, price decimal.Decimal) core.Fill {
	return core.Fill{
		BrokerOrderID: "broker-" + clientOrderID,
		ClientOrderID: clientOrderID,
		FilledQty:     qty,
		FilledPrice:   price,
		DedupeKey:     "dedupe-" + clientOrderID,
	}
}

func TestApplyFill_OpensNewPosition(t *testing.T) {
	m, _, repo := newManagerFixture(t)
	ctx := context.Background()

	intent := testIntent("co_fill_1")
	_, err := m.Submit(ctx, intent)
	require.NoError(t, err)

	applied, err := m.ApplyFill(ctx, fillFor(intent, "co_fill_1", decimal.NewFromInt(10), decimal.NewFromInt(101)))
	require.NoError(t, err)
	assert.True(t, applied)

	pos, found, err := repo.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(101)))
}

func TestApplyFill_IsIdempotentOnDuplicateDedupeKey(t *testing.T) {
	m, _, repo := newManagerFixture(t)
	ctx := context.Background()

	intent := testIntent("co_fill_2")
	_, err := m.Submit(ctx, intent)
	require.NoError(t, err)

	f := fillFor(intent, "co_fill_2", decimal.NewFromInt(10), decimal.NewFromInt(100))
	applied1, err := m.ApplyFill(ctx, f)
	require.NoError(t, err)
	require.True(t, applied1)

	applied2, err := m.ApplyFill(ctx, f)
	require.NoError(t, err)
	assert.False(t, applied2)

	pos, _, err := repo.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
}

func TestApplyFill_FlatteningRemovesPosition(t *testing.T) {
	m, _, repo := newManagerFixture(t)
	ctx := context.Background()

	buyIntent := testIntent("co_fill_3")
	_, err := m.Submit(ctx, buyIntent)
	require.NoError(t, err)
	_, err = m.ApplyFill(ctx, fillFor(buyIntent, "co_fill_3", decimal.NewFromInt(10), decimal.NewFromInt(100)))
	require.NoError(t, err)

	sellIntent := testIntent("co_fill_4")
	sellIntent.Side = core.SideSell
	_, err = m.Submit(ctx, sellIntent)
	require.NoError(t, err)
	_, err = m.ApplyFill(ctx, fillFor(sellIntent, "co_fill_4", decimal.NewFromInt(10), decimal.NewFromInt(105)))
	require.NoError(t, err)

	_, found, err := repo.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApplyFill_ClosingFillRecordsRealizedPnL(t *testing.T) {
	m, _, repo := newManagerFixture(t)
	ctx := context.Background()

	buyIntent := testIntent("co_fill_5")
	_, err := m.Submit(ctx, buyIntent)
	require.NoError(t, err)
	_, err = m.ApplyFill(ctx, fillFor(buyIntent, "co_fill_5", decimal.NewFromInt(10), decimal.NewFromInt(100)))
	require.NoError(t, err)

	sellIntent := testIntent("co_fill_6")
	sellIntent.Side = core.SideSell
	_, err = m.Submit(ctx, sellIntent)
	require.NoError(t, err)
	_, err = m.ApplyFill(ctx, fillFor(sellIntent, "co_fill_6", decimal.NewFromInt(10), decimal.NewFromInt(105)))
	require.NoError(t, err)

	raw, found, err := repo.GetState(ctx, core.BotStateDailyRealizedPnL)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, decimal.NewFromInt(50).String(), raw)
}

func TestApplyFill_UnknownIntentIsRecordedButNotFatal(t *testing.T) {
	m, _, _ := newManagerFixture(t)
	ctx := context.Background()

	f := core.Fill{BrokerOrderID: "broker-x", ClientOrderID: "unknown_co", FilledQty: decimal.NewFromInt(5), FilledPrice: decimal.NewFromInt(10), DedupeKey: "dk-1"}
	applied, err := m.ApplyFill(ctx, f)
	require.NoError(t, err)
	assert.True(t, applied)
}

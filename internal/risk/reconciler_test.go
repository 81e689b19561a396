package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
	"market_maker/internal/mock"
	"market_maker/internal/state"
	"market_maker/pkg/logging"
)

func newReconcilerFixture(t *testing.T) (*Reconciler, *mock.Broker, *state.Repository) {
	t.Helper()
	repo, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	broker := mock.NewBroker()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	return NewReconciler(broker, repo, logger, time.Hour), broker, repo
}

func TestReconciler_NoDivergence(t *testing.T) {
	r, broker, repo := newReconcilerFixture(t)
	ctx := context.Background()

	broker.SetPosition(core.BrokerPosition{Symbol: "AAPL", Quantity: decimal.NewFromInt(10)})
	require.NoError(t, repo.SavePosition(ctx, core.PositionTracking{Symbol: "AAPL", Quantity: decimal.NewFromInt(10)}))

	require.NoError(t, r.Reconcile(ctx))

	halted, _, err := repo.GetState(ctx, core.BotStateTradingHalted)
	require.NoError(t, err)
	assert.NotEqual(t, "true", halted)
}

func TestReconciler_AutoCorrectsSmallDivergence(t *testing.T) {
	r, broker, repo := newReconcilerFixture(t)
	ctx := context.Background()

	broker.SetPosition(core.BrokerPosition{Symbol: "AAPL", Quantity: decimal.NewFromInt(102)})
	require.NoError(t, repo.SavePosition(ctx, core.PositionTracking{Symbol: "AAPL", Quantity: decimal.NewFromInt(100)}))

	require.NoError(t, r.Reconcile(ctx))

	pos, found, err := repo.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(102)))

	halted, _, err := repo.GetState(ctx, core.BotStateTradingHalted)
	require.NoError(t, err)
	assert.NotEqual(t, "true", halted)
}

func TestReconciler_HaltsOnLargeDivergence(t *testing.T) {
	r, broker, repo := newReconcilerFixture(t)
	ctx := context.Background()

	broker.SetPosition(core.BrokerPosition{Symbol: "AAPL", Quantity: decimal.NewFromInt(200)})
	require.NoError(t, repo.SavePosition(ctx, core.PositionTracking{Symbol: "AAPL", Quantity: decimal.NewFromInt(100)}))

	require.NoError(t, r.Reconcile(ctx))

	halted, _, err := repo.GetState(ctx, core.BotStateTradingHalted)
	require.NoError(t, err)
	assert.Equal(t, "true", halted)
}

func TestReconciler_CancelsGhostBrokerOrder(t *testing.T) {
	r, broker, repo := newReconcilerFixture(t)
	ctx := context.Background()

	_, err := broker.SubmitOrder(ctx, "AAPL", core.SideBuy, decimal.NewFromInt(1), decimal.NewFromInt(100), "unknown-client-id")
	require.NoError(t, err)

	require.NoError(t, r.Reconcile(ctx))

	open, err := broker.GetOpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

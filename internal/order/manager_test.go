package order

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
	"market_maker/internal/mock"
	"market_maker/internal/risk"
	"market_maker/internal/state"
	"market_maker/pkg/logging"
)

func newManagerFixture(t *testing.T) (*Manager, *mock.Broker, *state.Repository) {
	t.Helper()
	repo, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	broker := mock.NewBroker()
	breaker := risk.NewCircuitBreaker(repo, logger, risk.CircuitBreakerConfig{MaxConsecutiveFailures: 5})
	return NewManager(broker, repo, logger, breaker, 1000, 1000), broker, repo
}

func testIntent(clientID string) core.OrderIntent {
	return core.OrderIntent{
		ClientOrderID: clientID,
		Symbol:        "AAPL",
		Side:          core.SideBuy,
		Quantity:      decimal.NewFromInt(10),
		LimitPrice:    decimal.NewFromInt(100),
	}
}

func TestManager_SubmitPersistsAndAccepts(t *testing.T) {
	m, broker, repo := newManagerFixture(t)
	ctx := context.Background()

	info, err := m.Submit(ctx, testIntent("co_1"))
	require.NoError(t, err)
	assert.NotEmpty(t, info.BrokerOrderID)

	stored, found, err := repo.GetOrderIntent(ctx, "co_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.OrderAccepted, stored.State)
	assert.Equal(t, info.BrokerOrderID, stored.BrokerOrderID)

	opens, err := broker.GetOpenOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, opens, 1)
}

func TestManager_SubmitIsIdempotentForTerminalIntent(t *testing.T) {
	m, _, repo := newManagerFixture(t)
	ctx := context.Background()

	info1, err := m.Submit(ctx, testIntent("co_2"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateOrderIntent(ctx, "co_2", info1.BrokerOrderID, core.OrderFilled, time.Now()))

	info2, err := m.Submit(ctx, testIntent("co_2"))
	require.NoError(t, err)
	assert.Equal(t, info1.BrokerOrderID, info2.BrokerOrderID)
}

func TestManager_SubmitRejectsDuplicateWhilePending(t *testing.T) {
	m, _, repo := newManagerFixture(t)
	ctx := context.Background()

	intent := testIntent("co_3")
	intent.State = core.OrderPendingNew
	require.NoError(t, repo.SaveOrderIntent(ctx, intent))

	_, err := m.Submit(ctx, intent)
	assert.ErrorIs(t, err, ErrAlreadyPending)
}

func TestManager_SubmitPersistsRejectionOnBrokerError(t *testing.T) {
	m, broker, repo := newManagerFixture(t)
	broker.SubmitErr = assertError{"insufficient buying power"}
	ctx := context.Background()

	_, err := m.Submit(ctx, testIntent("co_4"))
	assert.Error(t, err)

	stored, found, err := repo.GetOrderIntent(ctx, "co_4")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.OrderRejected, stored.State)
}

func TestManager_CancelTransitionsToCanceled(t *testing.T) {
	m, _, repo := newManagerFixture(t)
	ctx := context.Background()

	_, err := m.Submit(ctx, testIntent("co_5"))
	require.NoError(t, err)

	require.NoError(t, m.Cancel(ctx, "co_5"))

	stored, found, err := repo.GetOrderIntent(ctx, "co_5")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.OrderCanceled, stored.State)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestDeterministicClientOrderID_StableForSameInputs(t *testing.T) {
	ts := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	a := DeterministicClientOrderID("sma_crossover", "AAPL", "1Min", core.SideBuy, ts)
	b := DeterministicClientOrderID("sma_crossover", "AAPL", "1Min", core.SideBuy, ts)
	assert.Equal(t, a, b)
}

func TestDeterministicClientOrderID_DiffersOnSide(t *testing.T) {
	ts := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	buy := DeterministicClientOrderID("sma_crossover", "AAPL", "1Min", core.SideBuy, ts)
	sell := DeterministicClientOrderID("sma_crossover", "AAPL", "1Min", core.SideSell, ts)
	assert.NotEqual(t, buy, sell)
}

func TestDeterministicClientOrderID_MatchesCanonicalHashVector(t *testing.T) {
	ts := time.Date(2024, 2, 21, 14, 30, 0, 0, time.UTC)
	got := DeterministicClientOrderID("sma_crossover_multi", "AAPL", "1Min", core.SideBuy, ts)

	sum := sha256.Sum256([]byte("sma_crossover_multi:AAPL:1Min:2024-02-21T14:30:00.0000000+00:00:buy"))
	want := hex.EncodeToString(sum[:8])

	assert.Len(t, got, 16)
	assert.Equal(t, want, got)
}

package housekeeper

import (
	"context"
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

func newHousekeeperFixture(t *testing.T, cfg Config) (*Housekeeper, *mock.Broker, *state.Repository) {
	t.Helper()
	repo, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	broker := mock.NewBroker()
	broker.SetAccount(core.Account{PortfolioValue: decimal.NewFromInt(100000), IsTradable: true})

	drawdown, err := risk.NewDrawdownMonitor(context.Background(), repo, logger, risk.DrawdownConfig{
		Enabled: true, WarningThresholdPct: decimal.NewFromFloat(0.03), HaltThresholdPct: decimal.NewFromFloat(0.05), EmergencyThresholdPct: decimal.NewFromFloat(0.1),
	})
	require.NoError(t, err)
	cb := risk.NewCircuitBreaker(repo, logger, risk.CircuitBreakerConfig{MaxConsecutiveFailures: 5})

	h, err := NewHousekeeper(repo, broker, drawdown, cb, logger, cfg)
	require.NoError(t, err)
	return h, broker, repo
}

func TestHousekeeper_SnapshotEquityUpdatesDrawdownPeak(t *testing.T) {
	h, _, repo := newHousekeeperFixture(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.SnapshotEquity(ctx))

	st, err := repo.GetDrawdownState(ctx)
	require.NoError(t, err)
	assert.True(t, st.PeakEquity.Equal(decimal.NewFromInt(100000)))
}

func TestHousekeeper_DailyResetClearsCounters(t *testing.T) {
	h, _, repo := newHousekeeperFixture(t, Config{})
	ctx := context.Background()

	require.NoError(t, repo.SetState(ctx, core.BotStateDailyRealizedPnL, "-500"))
	require.NoError(t, repo.SetState(ctx, core.BotStateDailyTradeCount, "12"))

	require.NoError(t, h.DailyReset(ctx))

	pnl, _, err := repo.GetState(ctx, core.BotStateDailyRealizedPnL)
	require.NoError(t, err)
	assert.Equal(t, "0", pnl)

	count, _, err := repo.GetState(ctx, core.BotStateDailyTradeCount)
	require.NoError(t, err)
	assert.Equal(t, "0", count)
}

func TestDailyResetCronSpec_ParsesMarketOpen(t *testing.T) {
	spec, err := dailyResetCronSpec("09:30")
	require.NoError(t, err)
	assert.Equal(t, "30 9 * * 1-5", spec)
}

func TestDailyResetCronSpec_RejectsInvalidFormat(t *testing.T) {
	_, err := dailyResetCronSpec("not-a-time")
	assert.Error(t, err)
}

func TestHousekeeper_RunStopsOnContextCancel(t *testing.T) {
	h, _, _ := newHousekeeperFixture(t, Config{EquitySnapshotInterval: time.Hour, MarketOpenTime: "09:30"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.Run(ctx)
	assert.NoError(t, err)
}

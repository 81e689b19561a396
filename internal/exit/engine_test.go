package exit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
	"market_maker/internal/eventbus"
	"market_maker/internal/state"
	"market_maker/pkg/logging"
)

func newExitFixture(t *testing.T, cfg Config) (*Engine, *eventbus.Bus, *state.Repository) {
	t.Helper()
	repo, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	bus := eventbus.NewBus(10, logger)
	return NewEngine(repo, bus, logger, cfg), bus, repo
}

func longPosition() core.PositionTracking {
	return core.PositionTracking{Symbol: "AAPL", Quantity: decimal.NewFromInt(10), EntryPrice: decimal.NewFromInt(100)}
}

func collectExitSignals(t *testing.T, bus *eventbus.Bus) chan *core.ExitSignal {
	t.Helper()
	ch := make(chan *core.ExitSignal, 10)
	bus.Subscribe(core.EventExitSignal, func(ctx context.Context, e core.Event) {
		ch <- e.ExitSig
	})
	return ch
}

func runBusBriefly(ctx context.Context, bus *eventbus.Bus) context.CancelFunc {
	runCtx, cancel := context.WithCancel(ctx)
	go bus.Run(runCtx)
	return cancel
}

func TestExitEngine_TriggersStopLoss(t *testing.T) {
	e, bus, _ := newExitFixture(t, Config{ATRStopMultiplier: decimal.NewFromFloat(2)})
	ch := collectExitSignals(t, bus)
	cancel := runBusBriefly(context.Background(), bus)
	defer cancel()

	pos := longPosition()
	atrVal := decimal.NewFromInt(2) // stop distance = 4, stop price = 96
	err := e.Process(context.Background(), pos, decimal.NewFromInt(95), atrVal)
	require.NoError(t, err)

	select {
	case sig := <-ch:
		assert.Equal(t, core.ExitATRStopLoss, sig.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected exit signal")
	}
}

func TestExitEngine_TriggersProfitTarget(t *testing.T) {
	e, bus, _ := newExitFixture(t, Config{ATRTargetMultiplier: decimal.NewFromFloat(2)})
	ch := collectExitSignals(t, bus)
	cancel := runBusBriefly(context.Background(), bus)
	defer cancel()

	pos := longPosition()
	atrVal := decimal.NewFromInt(2) // target distance = 4, target price = 104
	err := e.Process(context.Background(), pos, decimal.NewFromInt(105), atrVal)
	require.NoError(t, err)

	select {
	case sig := <-ch:
		assert.Equal(t, core.ExitATRProfitTarget, sig.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected exit signal")
	}
}

func TestExitEngine_NoTriggerWhenWithinBand(t *testing.T) {
	e, bus, _ := newExitFixture(t, Config{})
	ch := collectExitSignals(t, bus)
	cancel := runBusBriefly(context.Background(), bus)
	defer cancel()

	pos := longPosition()
	err := e.Process(context.Background(), pos, decimal.NewFromInt(101), decimal.NewFromInt(1))
	require.NoError(t, err)

	select {
	case <-ch:
		t.Fatal("did not expect exit signal")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestExitEngine_PendingExitLockSkipsRepublishUntilBackoffElapses(t *testing.T) {
	e, _, repo := newExitFixture(t, Config{ATRStopMultiplier: decimal.NewFromFloat(2)})
	ctx := context.Background()

	pos := longPosition()
	atrVal := decimal.NewFromInt(2)
	require.NoError(t, e.Process(ctx, pos, decimal.NewFromInt(95), atrVal))

	stored, found, err := repo.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.PendingExit)

	// immediate retry should be blocked by backoff
	require.NoError(t, e.Process(ctx, stored, decimal.NewFromInt(95), atrVal))
}

func TestExitEngine_TrailingStopRatchetsInFavorableDirection(t *testing.T) {
	e, bus, repo := newExitFixture(t, Config{ATRTrailingMultiplier: decimal.NewFromFloat(1)})
	_ = bus
	ctx := context.Background()

	pos := longPosition()
	updated, err := e.UpdateTrailingStop(ctx, pos, decimal.NewFromInt(110), decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, updated.TrailingStopPrice.Equal(decimal.NewFromInt(108)))

	tighter, err := e.UpdateTrailingStop(ctx, updated, decimal.NewFromInt(105), decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, tighter.TrailingStopPrice.Equal(decimal.NewFromInt(108)), "trailing stop must not loosen")

	stored, _, err := repo.GetPosition(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, stored.TrailingStopPrice.Equal(decimal.NewFromInt(108)))
}

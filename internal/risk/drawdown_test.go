package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
	"market_maker/internal/state"
	"market_maker/pkg/logging"
)

func newDrawdownFixture(t *testing.T, cfg DrawdownConfig) (*DrawdownMonitor, *state.Repository) {
	t.Helper()
	repo, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	cfg.Enabled = true
	d, err := NewDrawdownMonitor(context.Background(), repo, logger, cfg)
	require.NoError(t, err)
	return d, repo
}

func defaultDrawdownConfig() DrawdownConfig {
	return DrawdownConfig{
		WarningThresholdPct:       decimal.NewFromFloat(0.03),
		HaltThresholdPct:          decimal.NewFromFloat(0.05),
		EmergencyThresholdPct:     decimal.NewFromFloat(0.10),
		WarningRecoveryPct:        decimal.NewFromFloat(0.02),
		HaltRecoveryPct:           decimal.NewFromFloat(0.04),
		EmergencyRecoveryPct:      decimal.NewFromFloat(0.08),
		WarningPositionMultiplier: decimal.NewFromFloat(0.5),
		EnableAutoRecovery:        true,
	}
}

func TestDrawdownMonitor_EscalatesThroughLadder(t *testing.T) {
	d, _ := newDrawdownFixture(t, defaultDrawdownConfig())
	ctx := context.Background()
	now := time.Now()

	st, err := d.Update(ctx, decimal.NewFromInt(10000), now)
	require.NoError(t, err)
	assert.Equal(t, core.DrawdownNormal, st.Level)

	st, err = d.Update(ctx, decimal.NewFromInt(9600), now) // 4% dd
	require.NoError(t, err)
	assert.Equal(t, core.DrawdownWarning, st.Level)

	st, err = d.Update(ctx, decimal.NewFromInt(9400), now) // 6% dd
	require.NoError(t, err)
	assert.Equal(t, core.DrawdownHalt, st.Level)

	st, err = d.Update(ctx, decimal.NewFromInt(8900), now) // 11% dd
	require.NoError(t, err)
	assert.Equal(t, core.DrawdownEmergency, st.Level)
}

func TestDrawdownMonitor_RecoversWithHysteresis(t *testing.T) {
	d, _ := newDrawdownFixture(t, defaultDrawdownConfig())
	ctx := context.Background()
	now := time.Now()

	_, err := d.Update(ctx, decimal.NewFromInt(10000), now)
	require.NoError(t, err)
	_, err = d.Update(ctx, decimal.NewFromInt(9600), now) // 4% -> Warning
	require.NoError(t, err)
	assert.Equal(t, core.DrawdownWarning, d.Level())

	// Recovers to 2.5%: above WarningRecoveryPct (2%), should hold Warning.
	st, err := d.Update(ctx, decimal.NewFromInt(9750), now)
	require.NoError(t, err)
	assert.Equal(t, core.DrawdownWarning, st.Level)

	// Recovers to 1%: below WarningRecoveryPct, should clear to Normal.
	st, err = d.Update(ctx, decimal.NewFromInt(9900), now)
	require.NoError(t, err)
	assert.Equal(t, core.DrawdownNormal, st.Level)
}

func TestDrawdownMonitor_PositionSizeMultiplier(t *testing.T) {
	d, _ := newDrawdownFixture(t, defaultDrawdownConfig())
	ctx := context.Background()
	now := time.Now()

	assert.True(t, d.PositionSizeMultiplier().Equal(decimal.NewFromInt(1)))

	_, err := d.Update(ctx, decimal.NewFromInt(10000), now)
	require.NoError(t, err)
	_, err = d.Update(ctx, decimal.NewFromInt(9600), now)
	require.NoError(t, err)

	assert.True(t, d.PositionSizeMultiplier().Equal(decimal.NewFromFloat(0.5)))
}

func TestDrawdownMonitor_ManualRecovery(t *testing.T) {
	d, _ := newDrawdownFixture(t, defaultDrawdownConfig())
	ctx := context.Background()
	now := time.Now()

	_, err := d.Update(ctx, decimal.NewFromInt(10000), now)
	require.NoError(t, err)
	_, err = d.Update(ctx, decimal.NewFromInt(8900), now) // Emergency
	require.NoError(t, err)
	assert.Equal(t, core.DrawdownEmergency, d.Level())

	require.NoError(t, d.RequestManualRecovery(ctx, now))
	assert.Equal(t, core.DrawdownNormal, d.Level())
}

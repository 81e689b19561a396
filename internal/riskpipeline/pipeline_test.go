package riskpipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
	"market_maker/internal/risk"
	"market_maker/internal/safety"
	"market_maker/internal/state"
	"market_maker/pkg/logging"
)

func newPipelineFixture(t *testing.T) (*RiskManager, *state.Repository) {
	t.Helper()
	repo, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)

	checker := safety.NewChecker(logger, repo)
	sizer := risk.NewSizer(risk.SizerConfig{MaxPositionPct: decimal.NewFromFloat(0.2), MaxRiskPerTradePct: decimal.NewFromFloat(0.02)})
	tier2 := risk.NewManager(repo, sizer, risk.ManagerConfig{MaxTradesPerDay: 10, MaxConcurrentPositions: 5})
	correlation := risk.NewCorrelationService(risk.CorrelationConfig{})
	filter := risk.NewFilter(repo, risk.FilterConfig{MinSignalConfidence: decimal.NewFromFloat(0.1)})

	return NewRiskManager(checker, tier2, correlation, filter), repo
}

func baseInput() Input {
	return Input{
		Account:       core.Account{IsTradable: true, PortfolioValue: decimal.NewFromInt(10000)},
		DrawdownLevel: core.DrawdownNormal,
		Signal: core.Signal{
			Symbol: "BTC-USD", Timeframe: "1h", SignalTS: time.Now(),
			Meta: core.SignalMetadata{Confidence: decimal.NewFromFloat(0.5), BarsInRegime: 10},
		},
		IsEquity: false,
	}
}

func TestRiskManager_AcceptsCleanSignal(t *testing.T) {
	rm, _ := newPipelineFixture(t)
	v, err := rm.Evaluate(context.Background(), baseInput())
	require.NoError(t, err)
	assert.True(t, v.Accepted())
}

func TestRiskManager_KillSwitchShortCircuitsBeforeOtherTiers(t *testing.T) {
	rm, _ := newPipelineFixture(t)
	in := baseInput()
	in.KillSwitch = true

	v, err := rm.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, risk.VerdictRejectSafety, v.Kind)
}

func TestRiskManager_Tier2BlocksOnHaltDrawdown(t *testing.T) {
	rm, _ := newPipelineFixture(t)
	in := baseInput()
	in.DrawdownLevel = core.DrawdownHalt

	v, err := rm.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, risk.VerdictRejectRisk, v.Kind)
}

func TestRiskManager_Tier3SkipsLowConfidence(t *testing.T) {
	rm, _ := newPipelineFixture(t)
	in := baseInput()
	in.Signal.Meta.Confidence = decimal.NewFromFloat(0.01)

	v, err := rm.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, risk.VerdictSkipFilter, v.Kind)
}

func TestRiskManager_EvaluateExitOnlyChecksSafety(t *testing.T) {
	rm, _ := newPipelineFixture(t)
	v := rm.EvaluateExit(context.Background(), true)
	assert.Equal(t, risk.VerdictRejectSafety, v.Kind)
}

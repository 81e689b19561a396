package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"market_maker/internal/core"
	"market_maker/internal/engine"
	"market_maker/internal/eventbus"
	"market_maker/internal/exit"
	"market_maker/internal/housekeeper"
	"market_maker/internal/marketdata"
	"market_maker/internal/order"
	"market_maker/internal/risk"
	"market_maker/internal/riskpipeline"
	"market_maker/internal/safety"
	"market_maker/internal/state"
	"market_maker/internal/strategy"
	"market_maker/pkg/logging"
)

// ShutdownTimeout bounds how long Shutdown's cleanup is given to complete.
const ShutdownTimeout = 10 * time.Second

// App holds every wired component of the trading engine plus the
// configuration and logger used to build them.
type App struct {
	Cfg    *Config
	Logger *logging.ZapLogger

	Repo  *state.Repository
	Bus   *eventbus.Bus
	Risk  *riskpipeline.RiskManager
	Sizer *risk.Sizer
	Corr  *risk.CorrelationService

	Strategy *strategy.Engine
	Orders   *order.Manager
	Exit     *exit.Engine

	MarketData   *marketdata.Client
	Reconciler   *risk.Reconciler
	Drawdown     *risk.DrawdownMonitor
	Housekeep    *housekeeper.Housekeeper
	Orchestrator *engine.Orchestrator
	circuitBrk   *risk.CircuitBreaker
}

// NewApp bootstraps every dependency of the trading engine from a config
// file and an injected Broker/MarketDataPort pair. The broker and market
// data transport are out of scope for this engine: callers wire in whatever
// implements core.Broker/core.MarketDataPort (a real brokerage adaptor, or
// internal/mock's in-process fakes for local runs and tests).
func NewApp(configPath string, broker core.Broker, rawMarketData core.MarketDataPort) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := InitLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	repo, err := state.Open(cfg.App.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("state repository: %w", err)
	}

	bus := eventbus.NewBus(10000, logger)

	circuitBreaker := risk.NewCircuitBreaker(repo, logger, risk.CircuitBreakerConfig{
		MaxConsecutiveFailures: 5,
		CooldownPeriod:         time.Minute,
	})

	checker := safety.NewChecker(logger, repo)
	sizer := risk.NewSizer(risk.SizerConfig{
		MaxPositionPct:     decimal.NewFromFloat(cfg.Risk.MaxPositionPct),
		MaxRiskPerTradePct: decimal.NewFromFloat(cfg.Risk.MaxRiskPerTradePct),
	})
	tier2 := risk.NewManager(repo, sizer, risk.ManagerConfig{
		MaxDailyLoss:           decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		MaxTradesPerDay:        cfg.Risk.MaxTradesPerDay,
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
	})
	correlation := risk.NewCorrelationService(risk.CorrelationConfig{
		Enabled:                cfg.CorrelationLimits.Enabled,
		MaxCorrelation:         decimal.NewFromFloat(cfg.CorrelationLimits.MaxCorrelation),
		MaxSectorPct:           decimal.NewFromFloat(cfg.CorrelationLimits.MaxSectorPct),
		MaxAssetClassPct:       decimal.NewFromFloat(cfg.CorrelationLimits.MaxAssetClassPct),
		MaxConcurrentPositions: cfg.Risk.MaxConcurrentPositions,
	})
	filter := risk.NewFilter(repo, risk.FilterConfig{
		MaxSpreadPct:          decimal.NewFromFloat(cfg.Filters.MaxSpreadPct),
		MinMinutesAfterOpen:   cfg.Filters.MinMinutesAfterOpen,
		MinMinutesBeforeClose: cfg.Filters.MinMinutesBeforeClose,
		MinSignalConfidence:   decimal.NewFromFloat(cfg.Risk.MinSignalConfidence),
		GateCooldown:          time.Minute,
	})
	riskMgr := riskpipeline.NewRiskManager(checker, tier2, correlation, filter)

	drawdown, err := risk.NewDrawdownMonitor(context.Background(), repo, logger, risk.DrawdownConfig{
		Enabled:                   cfg.Drawdown.Enabled,
		WarningThresholdPct:       decimal.NewFromFloat(cfg.Drawdown.WarningThresholdPct),
		HaltThresholdPct:          decimal.NewFromFloat(cfg.Drawdown.HaltThresholdPct),
		EmergencyThresholdPct:     decimal.NewFromFloat(cfg.Drawdown.EmergencyThresholdPct),
		WarningRecoveryPct:        decimal.NewFromFloat(cfg.Drawdown.WarningRecoveryPct),
		HaltRecoveryPct:           decimal.NewFromFloat(cfg.Drawdown.HaltRecoveryPct),
		EmergencyRecoveryPct:      decimal.NewFromFloat(cfg.Drawdown.EmergencyRecoveryPct),
		WarningPositionMultiplier: decimal.NewFromFloat(cfg.Drawdown.WarningPositionMultiplier),
		EnableAutoRecovery:        cfg.Drawdown.EnableAutoRecovery,
	})
	if err != nil {
		return nil, fmt.Errorf("drawdown monitor: %w", err)
	}

	strategyEngine := strategy.NewEngine(strategy.Config{})

	orders := order.NewManager(broker, repo, logger, circuitBreaker, 10, 20)

	exitEngine := exit.NewEngine(repo, bus, logger, exit.Config{
		ATRStopMultiplier:     decimal.NewFromFloat(cfg.Exit.ATRStopLossMultiplier),
		ATRTargetMultiplier:   decimal.NewFromFloat(cfg.Exit.ATRProfitTargetMultiplier),
		ATRTrailingMultiplier: decimal.NewFromFloat(1 + cfg.Exit.TrailingStopPercent),
		BackoffBaseSeconds:    cfg.Exit.BackoffBaseSeconds,
		BackoffMaxSeconds:     cfg.Exit.BackoffMaxSeconds,
	})

	mdClient := marketdata.NewClient(rawMarketData, logger, marketdata.Config{})

	reconciler := risk.NewReconciler(broker, repo, logger, 5*time.Minute)

	housekeep, err := housekeeper.NewHousekeeper(repo, broker, drawdown, circuitBreaker, logger, housekeeper.Config{
		MarketOpenTime: cfg.Session.MarketOpenTime,
		Timezone:       cfg.App.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("housekeeper: %w", err)
	}

	classifier := engine.NewSymbolClassifier(cfg.Symbols.CryptoSymbols, cfg.Symbols.EquitySymbols)
	history := engine.NewBarHistory(repo, 0)
	allSymbols := append(append([]string{}, cfg.Symbols.CryptoSymbols...), cfg.Symbols.EquitySymbols...)
	orchestrator := engine.NewOrchestrator(bus, repo, broker, mdClient, history, classifier, strategyEngine, riskMgr, sizer, drawdown, orders, logger, engine.Config{
		Symbols:        allSymbols,
		DryRun:         cfg.Execution.DryRun,
		KillSwitch:     cfg.Execution.KillSwitch,
		DefaultStopPct: decimal.NewFromFloat(cfg.Risk.StopLossPct),
	})

	housekeep.SetEmergencyHook(func(ctx context.Context) {
		if err := orchestrator.FlattenPositions(ctx); err != nil {
			logger.Error("emergency flatten failed", "error", err.Error())
		}
	})

	return &App{
		Cfg:          cfg,
		Logger:       logger,
		Repo:         repo,
		Bus:          bus,
		Risk:         riskMgr,
		Sizer:        sizer,
		Corr:         correlation,
		Strategy:     strategyEngine,
		Orders:       orders,
		Exit:         exitEngine,
		MarketData:   mdClient,
		Reconciler:   reconciler,
		Drawdown:     drawdown,
		Housekeep:    housekeep,
		Orchestrator: orchestrator,
		circuitBrk:   circuitBreaker,
	}, nil
}

// Runner is a component that runs until its context is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// Run starts the Event Bus dispatcher, the Reconciler loop, the
// Housekeeper, and the Orchestrator concurrently and blocks until a termination signal arrives or
// one of them returns an error, per the errgroup+signal.NotifyContext
// lifecycle pattern.
func (a *App) Run(extra ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting trading engine")

	g.Go(func() error { a.Bus.Run(ctx); return nil })
	g.Go(func() error { return a.Reconciler.Run(ctx) })
	g.Go(func() error { return a.Housekeep.Run(ctx) })
	g.Go(func() error { return a.Orchestrator.Run(ctx) })

	for _, r := range extra {
		runner := r
		g.Go(func() error { return runner.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			a.Logger.Error("trading engine stopped with error", "error", err.Error())
			return err
		}
	}

	a.Logger.Info("trading engine shut down gracefully")
	return nil
}

// Shutdown stops the background tickers and closes the state repository.
func (a *App) Shutdown(timeout time.Duration) {
	a.Logger.Info("cleaning up resources", "timeout", timeout.String())
	a.Reconciler.Stop()
	a.Housekeep.Stop()
	if err := a.Repo.Close(); err != nil {
		a.Logger.Error("failed to close state repository", "error", err.Error())
	}
}

// Package housekeeper runs the engine's periodic maintenance: equity curve
// snapshots, and the daily counter and circuit breaker reset at local market
// open.
package housekeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"market_maker/internal/core"
	"market_maker/internal/risk"
	"market_maker/pkg/concurrency"
)

// Config parametrizes the Housekeeper's schedules.
type Config struct {
	EquitySnapshotInterval time.Duration
	MarketOpenTime         string // "HH:MM", local to Timezone
	Timezone               string
}

func (c Config) withDefaults() Config {
	if c.EquitySnapshotInterval == 0 {
		c.EquitySnapshotInterval = time.Minute
	}
	if c.MarketOpenTime == "" {
		c.MarketOpenTime = "09:30"
	}
	if c.Timezone == "" {
		c.Timezone = "America/New_York"
	}
	return c
}

// Housekeeper owns the equity-snapshot ticker and the daily-reset cron entry.
type Housekeeper struct {
	repo           core.StateRepository
	broker         core.Broker
	drawdown       *risk.DrawdownMonitor
	circuitBreaker *risk.CircuitBreaker
	logger         core.ILogger
	cfg            Config

	cron *cron.Cron
	pool *concurrency.WorkerPool
	stop chan struct{}

	onEmergency func(context.Context)
}

// NewHousekeeper constructs a Housekeeper.
func NewHousekeeper(repo core.StateRepository, broker core.Broker, drawdown *risk.DrawdownMonitor, circuitBreaker *risk.CircuitBreaker, logger core.ILogger, cfg Config) (*Housekeeper, error) {
	cfg = cfg.withDefaults()
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("housekeeper: load timezone %q: %w", cfg.Timezone, err)
	}

	h := &Housekeeper{
		repo:           repo,
		broker:         broker,
		drawdown:       drawdown,
		circuitBreaker: circuitBreaker,
		logger:         logger.WithField("component", "housekeeper"),
		cfg:            cfg,
		cron:           cron.New(cron.WithLocation(loc)),
		pool:           concurrency.NewWorkerPool(concurrency.PoolConfig{Name: "housekeeper", MaxWorkers: 2, MaxCapacity: 8}, logger),
		stop:           make(chan struct{}),
	}
	return h, nil
}

// Run starts the equity-snapshot ticker and the daily-reset cron entry and
// blocks until ctx is canceled.
func (h *Housekeeper) Run(ctx context.Context) error {
	spec, err := dailyResetCronSpec(h.cfg.MarketOpenTime)
	if err != nil {
		return fmt.Errorf("housekeeper: build cron spec: %w", err)
	}

	if _, err := h.cron.AddFunc(spec, func() {
		h.submit(func() {
			if err := h.DailyReset(ctx); err != nil {
				h.logger.Error("daily reset failed", "error", err.Error())
			}
		})
	}); err != nil {
		return fmt.Errorf("housekeeper: schedule daily reset: %w", err)
	}
	h.cron.Start()
	defer h.cron.Stop()

	ticker := time.NewTicker(h.cfg.EquitySnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.stop:
			return nil
		case <-ticker.C:
			h.submit(func() {
				if err := h.SnapshotEquity(ctx); err != nil {
					h.logger.Error("equity snapshot failed", "error", err.Error())
				}
			})
		}
	}
}

// submit dispatches a job body to the worker pool, logging and running it
// inline if the pool rejects it (e.g. at capacity).
func (h *Housekeeper) submit(job func()) {
	if err := h.pool.Submit(job); err != nil {
		h.logger.Error("housekeeper job submit failed, running inline", "error", err.Error())
		job()
	}
}

// SetEmergencyHook registers a callback invoked after SnapshotEquity walks
// the drawdown ladder into Emergency, which per the drawdown ladder's
// contract blocks all orders and flattens every open position.
func (h *Housekeeper) SetEmergencyHook(fn func(context.Context)) {
	h.onEmergency = fn
}

// Stop signals Run to return and stops the worker pool.
func (h *Housekeeper) Stop() {
	close(h.stop)
	h.pool.Stop()
}

// SnapshotEquity records the current portfolio value to the equity curve and
// feeds it to the drawdown monitor.
func (h *Housekeeper) SnapshotEquity(ctx context.Context) error {
	account, err := h.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("housekeeper: get account: %w", err)
	}

	now := time.Now()
	if err := h.repo.InsertEquitySnapshot(ctx, core.EquityPoint{Timestamp: now, Equity: account.PortfolioValue}); err != nil {
		return fmt.Errorf("housekeeper: insert equity snapshot: %w", err)
	}

	if h.drawdown != nil {
		st, err := h.drawdown.Update(ctx, account.PortfolioValue, now)
		if err != nil {
			return fmt.Errorf("housekeeper: update drawdown: %w", err)
		}
		if st.Level == core.DrawdownEmergency && h.onEmergency != nil {
			h.onEmergency(ctx)
		}
	}
	return nil
}

// DailyReset clears the daily trade counters and resets the circuit
// breaker's failure count, run once at local market open.
func (h *Housekeeper) DailyReset(ctx context.Context) error {
	today := time.Now().Format("2006-01-02")
	if err := h.repo.SetState(ctx, core.BotStateDailyRealizedPnL, "0"); err != nil {
		return fmt.Errorf("housekeeper: reset daily pnl: %w", err)
	}
	if err := h.repo.SetState(ctx, core.BotStateDailyTradeCount, "0"); err != nil {
		return fmt.Errorf("housekeeper: reset daily trade count: %w", err)
	}
	if err := h.repo.SetState(ctx, core.BotStateDailyResetDate, today); err != nil {
		return fmt.Errorf("housekeeper: set daily reset date: %w", err)
	}

	if h.circuitBreaker != nil {
		if err := h.circuitBreaker.RecordSuccess(ctx); err != nil {
			return fmt.Errorf("housekeeper: reset circuit breaker: %w", err)
		}
	}

	h.logger.Info("daily reset complete", "date", today)
	return nil
}

// dailyResetCronSpec converts an "HH:MM" local time into a 5-field cron spec
// firing once on each weekday at that minute/hour.
func dailyResetCronSpec(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("invalid market_open_time %q: %w", hhmm, err)
	}
	return fmt.Sprintf("%d %d * * 1-5", t.Minute(), t.Hour()), nil
}

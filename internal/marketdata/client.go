// Package marketdata wraps a core.MarketDataPort implementation with rate
// limiting and resilience (retry + circuit breaker), grounded on the
// teacher's pkg/http.Client pipeline idiom.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"market_maker/internal/core"
)

// Config parametrizes the resilient market data client.
type Config struct {
	RateLimit       float64 // requests per second
	Burst           int
	MaxRetries      uint
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration
	BreakerFailures uint
	BreakerDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.RateLimit == 0 {
		c.RateLimit = 5
	}
	if c.Burst == 0 {
		c.Burst = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoffMin == 0 {
		c.RetryBackoffMin = 100 * time.Millisecond
	}
	if c.RetryBackoffMax == 0 {
		c.RetryBackoffMax = 2 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerDelay == 0 {
		c.BreakerDelay = 10 * time.Second
	}
	return c
}

// Client decorates a core.MarketDataPort with rate limiting and a
// retry+circuit-breaker resilience pipeline. It implements core.MarketDataPort
// itself so it can be substituted transparently wherever the port is used.
type Client struct {
	underlying core.MarketDataPort
	logger     core.ILogger
	limiter    *rate.Limiter

	barsPipeline  failsafe.Executor[[]core.Bar]
	quotePipeline failsafe.Executor[core.Quote]
}

// NewClient constructs a resilient Client wrapping underlying.
func NewClient(underlying core.MarketDataPort, logger core.ILogger, cfg Config) *Client {
	cfg = cfg.withDefaults()

	barsRetry := retrypolicy.NewBuilder[[]core.Bar]().
		HandleIf(func(bars []core.Bar, err error) bool { return err != nil }).
		WithBackoff(cfg.RetryBackoffMin, cfg.RetryBackoffMax).
		WithMaxRetries(int(cfg.MaxRetries)).
		Build()
	barsBreaker := circuitbreaker.NewBuilder[[]core.Bar]().
		HandleIf(func(bars []core.Bar, err error) bool { return err != nil }).
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerFailures*2).
		WithDelay(cfg.BreakerDelay).
		Build()

	quoteRetry := retrypolicy.NewBuilder[core.Quote]().
		HandleIf(func(q core.Quote, err error) bool { return err != nil }).
		WithBackoff(cfg.RetryBackoffMin, cfg.RetryBackoffMax).
		WithMaxRetries(int(cfg.MaxRetries)).
		Build()
	quoteBreaker := circuitbreaker.NewBuilder[core.Quote]().
		HandleIf(func(q core.Quote, err error) bool { return err != nil }).
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerFailures*2).
		WithDelay(cfg.BreakerDelay).
		Build()

	return &Client{
		underlying:    underlying,
		logger:        logger.WithField("component", "marketdata_client"),
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		barsPipeline:  failsafe.With[[]core.Bar](barsRetry, barsBreaker),
		quotePipeline: failsafe.With[core.Quote](quoteRetry, quoteBreaker),
	}
}

// GetBars fetches bars through the rate limiter and resilience pipeline.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]core.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("marketdata: rate limit wait: %w", err)
	}
	bars, err := c.barsPipeline.GetWithExecution(func(exec failsafe.Execution[[]core.Bar]) ([]core.Bar, error) {
		return c.underlying.GetBars(ctx, symbol, timeframe, limit)
	})
	if err != nil {
		c.logger.Warn("get bars failed after resilience pipeline", "symbol", symbol, "timeframe", timeframe, "error", err.Error())
		return nil, err
	}
	return bars, nil
}

// GetSnapshot fetches a quote through the rate limiter and resilience pipeline.
func (c *Client) GetSnapshot(ctx context.Context, symbol string) (core.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.Quote{}, fmt.Errorf("marketdata: rate limit wait: %w", err)
	}
	quote, err := c.quotePipeline.GetWithExecution(func(exec failsafe.Execution[core.Quote]) (core.Quote, error) {
		return c.underlying.GetSnapshot(ctx, symbol)
	})
	if err != nil {
		c.logger.Warn("get snapshot failed after resilience pipeline", "symbol", symbol, "error", err.Error())
		return core.Quote{}, err
	}
	return quote, nil
}

var _ core.MarketDataPort = (*Client)(nil)

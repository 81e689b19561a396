package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricEventsDroppedTotal   = "trading_engine_events_dropped_total"
	MetricOrdersPlacedTotal    = "trading_engine_orders_placed_total"
	MetricOrdersFilledTotal    = "trading_engine_orders_filled_total"
	MetricOrdersRejectedTotal  = "trading_engine_orders_rejected_total"
	MetricSignalsEmittedTotal  = "trading_engine_signals_emitted_total"
	MetricSignalsSkippedTotal  = "trading_engine_signals_skipped_total"
	MetricExitSignalsTotal     = "trading_engine_exit_signals_total"
	MetricCircuitBreakerOpen   = "trading_engine_circuit_breaker_open"
	MetricCircuitBreakerCount  = "trading_engine_circuit_breaker_count"
	MetricDrawdownLevel        = "trading_engine_drawdown_level"
	MetricDrawdownPct          = "trading_engine_drawdown_pct"
	MetricPositionCount        = "trading_engine_position_count"
	MetricLatencyBroker        = "trading_engine_latency_broker_ms"
	MetricLatencyMarketData    = "trading_engine_latency_market_data_ms"
)

// MetricsHolder holds initialized instruments.
type MetricsHolder struct {
	EventsDroppedTotal  metric.Int64Counter
	OrdersPlacedTotal   metric.Int64Counter
	OrdersFilledTotal   metric.Int64Counter
	OrdersRejectedTotal metric.Int64Counter
	SignalsEmittedTotal metric.Int64Counter
	SignalsSkippedTotal metric.Int64Counter
	ExitSignalsTotal    metric.Int64Counter
	CircuitBreakerOpen  metric.Int64ObservableGauge
	CircuitBreakerCount metric.Int64ObservableGauge
	DrawdownLevel       metric.Int64ObservableGauge
	DrawdownPct         metric.Float64ObservableGauge
	PositionCount       metric.Int64ObservableGauge
	LatencyBroker       metric.Float64Histogram
	LatencyMarketData   metric.Float64Histogram

	mu                  sync.RWMutex
	circuitBreakerOpen  int64
	circuitBreakerCount int64
	drawdownLevel       int64
	drawdownPct         float64
	positionCount       int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.EventsDroppedTotal, err = meter.Int64Counter(MetricEventsDroppedTotal, metric.WithDescription("Normal-channel events dropped due to backpressure"))
	if err != nil {
		return err
	}
	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders submitted to the broker"))
	if err != nil {
		return err
	}
	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders reaching a filled state"))
	if err != nil {
		return err
	}
	m.OrdersRejectedTotal, err = meter.Int64Counter(MetricOrdersRejectedTotal, metric.WithDescription("Total broker submission failures"))
	if err != nil {
		return err
	}
	m.SignalsEmittedTotal, err = meter.Int64Counter(MetricSignalsEmittedTotal, metric.WithDescription("Total strategy signals emitted"))
	if err != nil {
		return err
	}
	m.SignalsSkippedTotal, err = meter.Int64Counter(MetricSignalsSkippedTotal, metric.WithDescription("Total signals skipped by the Filter tier"))
	if err != nil {
		return err
	}
	m.ExitSignalsTotal, err = meter.Int64Counter(MetricExitSignalsTotal, metric.WithDescription("Total exit signals published"))
	if err != nil {
		return err
	}

	m.LatencyBroker, err = meter.Float64Histogram(MetricLatencyBroker, metric.WithDescription("Latency of broker calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}
	m.LatencyMarketData, err = meter.Float64Histogram(MetricLatencyMarketData, metric.WithDescription("Latency of market data calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.CircuitBreakerOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen, metric.WithDescription("Circuit breaker open state (1=tripped, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.circuitBreakerOpen)
			return nil
		}))
	if err != nil {
		return err
	}

	m.CircuitBreakerCount, err = meter.Int64ObservableGauge(MetricCircuitBreakerCount, metric.WithDescription("Consecutive broker submission failures"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.circuitBreakerCount)
			return nil
		}))
	if err != nil {
		return err
	}

	m.DrawdownLevel, err = meter.Int64ObservableGauge(MetricDrawdownLevel, metric.WithDescription("Drawdown level (0=Normal,1=Warning,2=Halt,3=Emergency)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.drawdownLevel)
			return nil
		}))
	if err != nil {
		return err
	}

	m.DrawdownPct, err = meter.Float64ObservableGauge(MetricDrawdownPct, metric.WithDescription("Current drawdown percentage vs peak equity"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.drawdownPct)
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionCount, err = meter.Int64ObservableGauge(MetricPositionCount, metric.WithDescription("Number of open positions"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.positionCount)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state.

func (m *MetricsHolder) SetCircuitBreakerOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if open {
		m.circuitBreakerOpen = 1
	} else {
		m.circuitBreakerOpen = 0
	}
}

func (m *MetricsHolder) SetCircuitBreakerCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitBreakerCount = int64(n)
}

// drawdownLevelOrdinal maps the drawdown ladder to an integer for the gauge.
func drawdownLevelOrdinal(level string) int64 {
	switch level {
	case "Warning":
		return 1
	case "Halt":
		return 2
	case "Emergency":
		return 3
	default:
		return 0
	}
}

func (m *MetricsHolder) SetDrawdownLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drawdownLevel = drawdownLevelOrdinal(level)
}

func (m *MetricsHolder) SetDrawdownPct(pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drawdownPct = pct
}

func (m *MetricsHolder) SetPositionCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionCount = int64(n)
}

// Package config handles configuration loading and validation for the
// trading engine: a hand-rolled validate-by-section pattern with strict
// unknown-key rejection.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration structure.
type Config struct {
	App              AppConfig              `yaml:"app"`
	Execution        ExecutionConfig        `yaml:"execution"`
	Risk             RiskConfig             `yaml:"risk"`
	Session          SessionConfig          `yaml:"session"`
	Filters          FiltersConfig          `yaml:"filters"`
	Drawdown         DrawdownConfig         `yaml:"drawdown"`
	CorrelationLimits CorrelationLimitsConfig `yaml:"correlation_limits"`
	Exit             ExitConfig             `yaml:"exit"`
	Symbols          SymbolsConfig          `yaml:"symbols"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	LogLevel     string `yaml:"log_level"`
	DatabasePath string `yaml:"database_path"`
	Timezone     string `yaml:"timezone"`
}

// ExecutionConfig gates order submission globally.
type ExecutionConfig struct {
	KillSwitch bool `yaml:"kill_switch"`
	DryRun     bool `yaml:"dry_run"`
}

// RiskConfig holds Tier 2 and sizer parameters.
type RiskConfig struct {
	MaxDailyLoss           float64 `yaml:"max_daily_loss"`
	MaxTradesPerDay        int     `yaml:"max_trades_per_day"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	MaxPositionPct         float64 `yaml:"max_position_pct"`
	MaxRiskPerTradePct     float64 `yaml:"max_risk_per_trade_pct"`
	StopLossPct            float64 `yaml:"stop_loss_pct"`
	MinSignalConfidence    float64 `yaml:"min_signal_confidence"`
}

// SessionConfig controls market-hours clock math.
type SessionConfig struct {
	TimeZone       string `yaml:"time_zone"`
	MarketOpenTime string `yaml:"market_open_time"`  // "HH:MM"
	MarketCloseTime string `yaml:"market_close_time"` // "HH:MM"
}

// FiltersConfig controls Tier 3 soft-skip filters.
type FiltersConfig struct {
	MaxSpreadPct         float64 `yaml:"max_spread_pct"`
	MinMinutesAfterOpen  int     `yaml:"min_minutes_after_open"`
	MinMinutesBeforeClose int    `yaml:"min_minutes_before_close"`
}

// DrawdownConfig controls the Drawdown Monitor.
type DrawdownConfig struct {
	Enabled                   bool    `yaml:"enabled"`
	WarningThresholdPct       float64 `yaml:"warning_threshold_pct"`
	HaltThresholdPct          float64 `yaml:"halt_threshold_pct"`
	EmergencyThresholdPct     float64 `yaml:"emergency_threshold_pct"`
	WarningRecoveryPct        float64 `yaml:"warning_recovery_pct"`
	HaltRecoveryPct           float64 `yaml:"halt_recovery_pct"`
	EmergencyRecoveryPct      float64 `yaml:"emergency_recovery_pct"`
	WarningPositionMultiplier float64 `yaml:"warning_position_multiplier"`
	LookbackDays              int     `yaml:"lookback_days"`
	EnableAutoRecovery        bool    `yaml:"enable_auto_recovery"`
}

// CorrelationLimitsConfig controls the Correlation Service.
type CorrelationLimitsConfig struct {
	Enabled             bool               `yaml:"enabled"`
	MaxCorrelation      float64            `yaml:"max_correlation"`
	MaxSectorPct        float64            `yaml:"max_sector_pct"`
	MaxAssetClassPct    float64            `yaml:"max_asset_class_pct"`
	StaticCorrelations  map[string]float64 `yaml:"static_correlations"`
}

// ExitConfig controls the Exit Engine.
type ExitConfig struct {
	CheckIntervalSeconds     int     `yaml:"check_interval_seconds"`
	ATRStopLossMultiplier    float64 `yaml:"atr_stop_loss_multiplier"`
	ATRProfitTargetMultiplier float64 `yaml:"atr_profit_target_multiplier"`
	StopLossPercentage       float64 `yaml:"stop_loss_percentage"`
	ProfitTargetPercentage   float64 `yaml:"profit_target_percentage"`
	TrailingStopPercent      float64 `yaml:"trailing_stop_percent"`
	BackoffBaseSeconds       int     `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds        int     `yaml:"backoff_max_seconds"`
}

// SymbolsConfig is the fixed trading universe and its crypto/equity split.
type SymbolsConfig struct {
	CryptoSymbols  []string `yaml:"crypto_symbols"`
	EquitySymbols  []string `yaml:"equity_symbols"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment-variable
// expansion, rejects unrecognised keys, and validates the result.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	if err := rejectUnknownKeys(expanded); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// rejectUnknownKeys decodes the document into a generic node tree and checks
// every mapping key against the yaml tags reachable from Config: unrecognized
// keys are rejected at startup rather than silently ignored.
func rejectUnknownKeys(doc string) error {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		return err
	}
	if len(root.Content) == 0 {
		return nil
	}
	return checkNode(root.Content[0], reflect.TypeOf(Config{}), "")
}

func checkNode(node *yaml.Node, t reflect.Type, path string) error {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	if t.Kind() == reflect.Map {
		return nil // free-form maps (e.g. static_correlations) accept any key
	}

	known := make(map[string]reflect.Type)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		known[tag] = f.Type
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		ft, ok := known[key]
		if !ok {
			full := key
			if path != "" {
				full = path + "." + key
			}
			return fmt.Errorf("unrecognised configuration key: %s", full)
		}
		full := key
		if path != "" {
			full = path + "." + key
		}
		if ft.Kind() == reflect.Struct {
			if err := checkNode(node.Content[i+1], ft, full); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate performs comprehensive section-by-section validation.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateApp(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateRisk(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSession(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateDrawdown(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSymbols(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateApp() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{Field: "app.log_level", Value: c.App.LogLevel, Message: "must be one of: " + strings.Join(validLevels, ", ")}
	}
	if c.App.DatabasePath == "" {
		return ValidationError{Field: "app.database_path", Message: "database path is required"}
	}
	return nil
}

func (c *Config) validateRisk() error {
	if c.Risk.MaxTradesPerDay <= 0 {
		return ValidationError{Field: "risk.max_trades_per_day", Value: c.Risk.MaxTradesPerDay, Message: "must be positive"}
	}
	if c.Risk.MaxConcurrentPositions <= 0 {
		return ValidationError{Field: "risk.max_concurrent_positions", Value: c.Risk.MaxConcurrentPositions, Message: "must be positive"}
	}
	if c.Risk.MaxRiskPerTradePct <= 0 || c.Risk.MaxRiskPerTradePct > 1 {
		return ValidationError{Field: "risk.max_risk_per_trade_pct", Value: c.Risk.MaxRiskPerTradePct, Message: "must be in (0,1]"}
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct > 1 {
		return ValidationError{Field: "risk.stop_loss_pct", Value: c.Risk.StopLossPct, Message: "must be in (0,1]"}
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return ValidationError{Field: "risk.max_position_pct", Value: c.Risk.MaxPositionPct, Message: "must be in (0,1]"}
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.TimeZone == "" {
		return ValidationError{Field: "session.time_zone", Message: "time zone is required"}
	}
	return nil
}

func (c *Config) validateDrawdown() error {
	if !c.Drawdown.Enabled {
		return nil
	}
	if c.Drawdown.WarningThresholdPct <= 0 || c.Drawdown.HaltThresholdPct <= c.Drawdown.WarningThresholdPct || c.Drawdown.EmergencyThresholdPct <= c.Drawdown.HaltThresholdPct {
		return ValidationError{Field: "drawdown", Message: "thresholds must satisfy warning < halt < emergency"}
	}
	return nil
}

func (c *Config) validateSymbols() error {
	if len(c.Symbols.CryptoSymbols)+len(c.Symbols.EquitySymbols) == 0 {
		return ValidationError{Field: "symbols", Message: "at least one crypto or equity symbol must be configured"}
	}
	return nil
}

// applyDefaults fills in the engine's default parameters for fields left
// zero-valued.
func applyDefaults(c *Config) {
	if c.Drawdown.WarningThresholdPct == 0 {
		c.Drawdown.WarningThresholdPct = 0.03
	}
	if c.Drawdown.HaltThresholdPct == 0 {
		c.Drawdown.HaltThresholdPct = 0.05
	}
	if c.Drawdown.EmergencyThresholdPct == 0 {
		c.Drawdown.EmergencyThresholdPct = 0.10
	}
	if c.Drawdown.WarningRecoveryPct == 0 {
		c.Drawdown.WarningRecoveryPct = 0.02
	}
	if c.Drawdown.HaltRecoveryPct == 0 {
		c.Drawdown.HaltRecoveryPct = 0.04
	}
	if c.Drawdown.EmergencyRecoveryPct == 0 {
		c.Drawdown.EmergencyRecoveryPct = 0.08
	}
	if c.Drawdown.WarningPositionMultiplier == 0 {
		c.Drawdown.WarningPositionMultiplier = 0.5
	}
	if c.Drawdown.LookbackDays == 0 {
		c.Drawdown.LookbackDays = 252
	}
	if c.Exit.CheckIntervalSeconds == 0 {
		c.Exit.CheckIntervalSeconds = 30
	}
	if c.Exit.BackoffBaseSeconds == 0 {
		c.Exit.BackoffBaseSeconds = 1
	}
	if c.Exit.BackoffMaxSeconds == 0 {
		c.Exit.BackoffMaxSeconds = 300
	}
	if c.Session.MarketOpenTime == "" {
		c.Session.MarketOpenTime = "09:30"
	}
	if c.Session.MarketCloseTime == "" {
		c.Session.MarketCloseTime = "16:00"
	}
}

// String returns a YAML rendering with no secrets to mask (this config
// carries none — broker credentials live with the broker adaptor, which is
// out of scope).
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a fully populated configuration for tests.
func DefaultConfig() *Config {
	cfg := &Config{
		App: AppConfig{LogLevel: "INFO", DatabasePath: ":memory:", Timezone: "America/New_York"},
		Risk: RiskConfig{
			MaxDailyLoss:           1000,
			MaxTradesPerDay:        20,
			MaxConcurrentPositions: 5,
			MaxPositionPct:         0.2,
			MaxRiskPerTradePct:     0.01,
			StopLossPct:            0.02,
			MinSignalConfidence:    0.5,
		},
		Session: SessionConfig{TimeZone: "America/New_York", MarketOpenTime: "09:30", MarketCloseTime: "16:00"},
		Filters: FiltersConfig{MaxSpreadPct: 0.01, MinMinutesAfterOpen: 15, MinMinutesBeforeClose: 15},
		Drawdown: DrawdownConfig{
			Enabled: true, EnableAutoRecovery: true,
		},
		CorrelationLimits: CorrelationLimitsConfig{Enabled: true, MaxCorrelation: 0.8, MaxSectorPct: 0.4, MaxAssetClassPct: 0.6},
		Exit: ExitConfig{
			ATRStopLossMultiplier: 1.5, ATRProfitTargetMultiplier: 3.0, TrailingStopPercent: 0.02,
		},
		Symbols: SymbolsConfig{CryptoSymbols: []string{"BTCUSD", "ETHUSD"}, EquitySymbols: []string{"AAPL", "MSFT"}},
	}
	applyDefaults(cfg)
	return cfg
}

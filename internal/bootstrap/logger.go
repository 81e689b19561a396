package bootstrap

import (
	"market_maker/internal/config"
	"market_maker/pkg/logging"
)

// InitLogger builds the process-wide structured logger from app.log_level.
func InitLogger(cfg *config.Config) (*logging.ZapLogger, error) {
	return logging.NewZapLogger(cfg.App.LogLevel)
}

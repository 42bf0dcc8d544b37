package main

import (
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/config"
	"github.com/aigualink/water-metering-worker/internal/logging"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}

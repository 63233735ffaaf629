// Command setup reruns the device selection wizard and saves the result.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/config"
	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/setup"
)

var logger = logging.New("main")

func main() {
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to parse environment variables")
	}
	if err := cfg.Validate(); err != nil {
		logger.With(zap.Error(err)).Fatal("Invalid configuration")
	}

	// keep the log level of an existing selection
	if sel, err := config.Load(cfg.ConfigFile); err == nil && cfg.LogLevel == "" {
		cfg.LogLevel = sel.LogLevel
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
		<-shutdown
		cancel()
	}()

	session, err := setup.NewSession(cfg)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to create source session")
	}

	w := setup.Wizard{In: os.Stdin, Out: os.Stdout, Scan: setup.NewScanner(cfg)}
	if err := w.Run(ctx, &cfg, session); err != nil {
		logger.With(zap.Error(err)).Fatal("Setup failed")
	}

	if err := cfg.Selection().Save(cfg.ConfigFile); err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to save configuration")
	}
	logger.With(zap.String("file", cfg.ConfigFile)).Info("Configuration saved")
}

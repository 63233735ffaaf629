package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/bridge"
	"github.com/scheerer/ambient-bridge/internal/config"
	"github.com/scheerer/ambient-bridge/internal/lights/adalight"
	"github.com/scheerer/ambient-bridge/internal/lights/lifx"
	"github.com/scheerer/ambient-bridge/internal/lights/magichome"
	"github.com/scheerer/ambient-bridge/internal/lights/spistrip"
	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/setup"
	"github.com/scheerer/ambient-bridge/internal/source"
	"github.com/scheerer/ambient-bridge/internal/target"
	"github.com/scheerer/ambient-bridge/internal/util"
)

var logger = logging.New("main")

func main() {
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to parse environment variables")
	}

	sel, err := config.Load(cfg.ConfigFile)
	if err != nil {
		logger.With(zap.Error(err)).Fatal("Failed to load config file")
	}
	cfg.Apply(sel)

	if cfg.LogLevel != "" {
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.With(zap.Error(err)).Fatal("Invalid log level")
		}
		logging.GetLeveler().SetAllLevels(level)
	}

	if err := cfg.Validate(); err != nil {
		logger.With(zap.Error(err)).Fatal("Invalid configuration")
	}

	logger.With(zap.Any("config", cfg)).Info("Starting ambient bridge")

	logger.Info("Adjust SOURCE_TYPE to choose where colors come from. Valid values are: [SCREEN, LEDCUBE]")
	logger.Info("Adjust TARGET_TYPE to choose the light to drive. Valid values are: [MAGICHOME, LIFX, ADALIGHT, SPI]")
	logger.Info("Adjust COLOR_ALGO to change color algorithm. Valid values are: [AVERAGE, SQUARED_AVERAGE, MEDIAN, MODE]")
	logger.Info("Adjust FADE_STEPS and FADE_STEP_DELAY to change how smoothly colors change.")
	logger.Info("Run cmd/main.go to rerun the setup wizard.")
	logger.Info("Press Ctrl+C to stop")

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
		<-shutdown
		logger.Info("Shutting down")
		cancel()
	}()

	if err := Run(ctx, cfg); err != nil {
		cancel()
		logger.With(zap.Error(err)).Fatal("Bridge failed")
	}
	cancel()
}

// Run completes the device selection if needed, connects both endpoints and
// forwards colors until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	session, err := setup.NewSession(cfg)
	if err != nil {
		return err
	}

	if !cfg.Complete() {
		logger.Warn("Device selection incomplete, running setup wizard")
		w := setup.Wizard{In: os.Stdin, Out: os.Stdout, Scan: setup.NewScanner(cfg)}
		if err := w.Run(ctx, &cfg, session); err != nil {
			return err
		}
		if err := cfg.Selection().Save(cfg.ConfigFile); err != nil {
			return err
		}
		logger.With(zap.String("file", cfg.ConfigFile)).Info("Configuration saved")
	}

	aggregate, err := util.AggregateByName(cfg.ColorAlgo)
	if err != nil {
		return err
	}

	reader, err := source.NewReader(ctx, session, source.Config{
		DeviceID:       cfg.SourceDeviceID,
		ReconnectDelay: cfg.ReconnectDelay,
		SettleDelay:    cfg.ConnectSettle,
		Aggregate:      aggregate,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	defer reader.Close()

	actuator, err := newActuator(cfg)
	if err != nil {
		return err
	}
	defer actuator.Close()

	return bridge.Run(ctx, bridge.Config{
		PollInterval:   cfg.PollInterval,
		TurnOffTimeout: cfg.TurnOffTimeout,
	}, reader, actuator)
}

func newActuator(cfg config.Config) (*target.Actuator, error) {
	targetConfig := target.Config{
		Name:      cfg.TargetType,
		Steps:     cfg.FadeSteps,
		StepDelay: cfg.FadeStepDelay,
		IOTimeout: cfg.IOTimeout,
	}

	var dial target.Dialer
	switch cfg.TargetType {
	case config.TargetMagicHome:
		dial = magichome.Dialer(cfg.TargetAddress)
	case config.TargetLifx:
		dial = lifx.Dialer(lifx.Config{
			Label:         cfg.TargetAddress,
			MinBrightness: cfg.MinBrightness,
			MaxBrightness: cfg.MaxBrightness,
			Transition:    cfg.FadeStepDelay,
		})
		// discovery bounds the dial
		targetConfig.IOTimeout = max(cfg.IOTimeout, cfg.ScanTimeout)
	case config.TargetAdalight:
		dial = adalight.Dialer(adalight.Config{
			Port:     cfg.TargetAddress,
			BaudRate: cfg.BaudRate,
			LEDCount: cfg.LEDCount,
		})
	case config.TargetSPI:
		dial = spistrip.Dialer(spistrip.Config{
			Port:     cfg.TargetAddress,
			LEDCount: cfg.LEDCount,
		})
	default:
		return nil, config.ErrUnknownTargetType
	}

	return target.NewActuator(dial, targetConfig), nil
}

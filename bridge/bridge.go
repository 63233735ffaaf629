package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/util"
	"github.com/scheerer/ambient-bridge/lights"
)

var logger = logging.New("bridge")

var ErrTickPanic = errors.New("bridge tick panicked")

const (
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultTurnOffTimeout = 3 * time.Second
)

type Config struct {
	PollInterval   time.Duration
	TurnOffTimeout time.Duration
}

// Run forwards changed source colors to the target until ctx is cancelled or
// the source fails fatally. The target is turned off exactly once on return,
// whatever the reason. Cancellation is not an error.
func Run(ctx context.Context, config Config, source lights.ColorSource, target lights.ColorTarget) (err error) {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.TurnOffTimeout <= 0 {
		config.TurnOffTimeout = DefaultTurnOffTimeout
	}

	runLogger := logger.With(zap.String("run", uuid.NewString()))
	runLogger.With(zap.Stringer("pollInterval", config.PollInterval)).Info("Bridge started")

	defer func() {
		turnOff(runLogger, config.TurnOffTimeout, target)
		if err != nil {
			runLogger.With(zap.Error(err)).Error("Bridge stopped due to error")
		} else {
			runLogger.Info("Bridge stopped")
		}
	}()

	var lastWarning time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}

		startTime := time.Now()
		if err := tick(ctx, source, target); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			return err
		}

		tickDuration := time.Since(startTime)
		if tickDuration > 10*config.PollInterval && time.Since(lastWarning) > 10*time.Second {
			runLogger.With(zap.Stringer("tickDuration", tickDuration),
				zap.Stringer("pollInterval", config.PollInterval)).
				Warn("Bridge tick is much slower than POLL_INTERVAL. Consider fewer FADE_STEPS or a shorter FADE_STEP_DELAY.")
			lastWarning = time.Now()
		}

		if err := util.Sleep(ctx, config.PollInterval); err != nil {
			return nil
		}
	}
}

func tick(ctx context.Context, source lights.ColorSource, target lights.ColorTarget) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTickPanic, r)
		}
	}()

	color, ok, err := source.Sample(ctx)
	if err != nil {
		return err
	}
	if ok {
		target.SetColor(ctx, color)
	}
	return nil
}

// turnOff runs on a fresh context since the run context is usually cancelled
// by the time we get here.
func turnOff(log *zap.SugaredLogger, timeout time.Duration, target lights.ColorTarget) {
	defer func() {
		if r := recover(); r != nil {
			log.With(zap.Any("panic", r)).Error("Panic turning off target")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := target.TurnOff(ctx); err != nil {
		log.With(zap.Error(err)).Error("Error turning off target")
		return
	}
	log.Info("Target turned off")
}

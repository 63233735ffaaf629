package target

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/util"
	"github.com/scheerer/ambient-bridge/lights"
)

var logger = logging.New("target")

var ErrNotConnected = errors.New("target not connected")

const (
	DefaultSteps     = 10
	DefaultStepDelay = 20 * time.Millisecond
	DefaultIOTimeout = 2 * time.Second
)

// Device is an open connection to a target light.
type Device interface {
	SetRGB(ctx context.Context, color lights.Color) error
	TurnOff(ctx context.Context) error
	Close() error
}

// Dialer opens a connection to the configured target.
type Dialer func(ctx context.Context) (Device, error)

type Config struct {
	Name      string
	Steps     int
	StepDelay time.Duration
	IOTimeout time.Duration
}

// Actuator fades a target light between the colors it is given.
type Actuator struct {
	dial   Dialer
	config Config

	device  Device
	last    lights.Color
	hasLast bool
}

var _ lights.ColorTarget = (*Actuator)(nil)

func NewActuator(dial Dialer, config Config) *Actuator {
	if config.Steps < 1 {
		config.Steps = DefaultSteps
	}
	if config.StepDelay < 0 {
		config.StepDelay = DefaultStepDelay
	}
	if config.IOTimeout <= 0 {
		config.IOTimeout = DefaultIOTimeout
	}
	return &Actuator{
		dial:   dial,
		config: config,
	}
}

func (a *Actuator) Connected() bool {
	return a.device != nil
}

// SetColor fades from the last commanded color to color. The first color after
// a connect is applied directly. Failures disconnect and are retried on the
// next call.
func (a *Actuator) SetColor(ctx context.Context, color lights.Color) {
	if !a.ensureConnected(ctx) {
		return
	}

	if !a.hasLast {
		if err := a.write(ctx, color); err != nil {
			logger.With(zap.String("target", a.config.Name), zap.Error(err)).Warn("Error setting initial color")
			a.disconnect()
			return
		}
	} else {
		for i, c := range util.FadeSteps(a.last, color, a.config.Steps) {
			if err := a.write(ctx, c); err != nil {
				logger.With(zap.String("target", a.config.Name),
					zap.Int("step", i+1),
					zap.Error(err)).
					Warn("Error during color transition")
				a.disconnect()
				return
			}
			logger.With(zap.Int("step", i+1), zap.Stringer("color", c)).Debug("Fade step applied")

			if err := util.Sleep(ctx, a.config.StepDelay); err != nil {
				logger.With(zap.Int("step", i+1)).Debug("Color transition abandoned")
				return
			}
		}
	}

	a.last = color
	a.hasLast = true
	logger.With(zap.Stringer("color", color)).Info("Set new color")
}

// TurnOff powers the light off without fading. The returned error is for
// reporting only.
func (a *Actuator) TurnOff(ctx context.Context) error {
	if !a.ensureConnected(ctx) {
		return ErrNotConnected
	}

	ioCtx, cancel := context.WithTimeout(ctx, a.config.IOTimeout)
	defer cancel()

	if err := a.device.TurnOff(ioCtx); err != nil {
		logger.With(zap.String("target", a.config.Name), zap.Error(err)).Warn("Error turning off target")
		a.disconnect()
		return fmt.Errorf("failed to turn off %v: %w", a.config.Name, err)
	}

	logger.With(zap.String("target", a.config.Name)).Info("Target turned off")
	return nil
}

func (a *Actuator) Close() error {
	if a.device == nil {
		return nil
	}
	err := a.device.Close()
	a.device = nil
	return err
}

func (a *Actuator) ensureConnected(ctx context.Context) bool {
	if a.device != nil {
		return true
	}

	ioCtx, cancel := context.WithTimeout(ctx, a.config.IOTimeout)
	defer cancel()

	device, err := a.dial(ioCtx)
	if err != nil {
		logger.With(zap.String("target", a.config.Name), zap.Error(err)).Warn("Error connecting to target")
		return false
	}

	a.device = device
	a.hasLast = false
	logger.With(zap.String("target", a.config.Name)).Info("Target connected")
	return true
}

func (a *Actuator) write(ctx context.Context, color lights.Color) error {
	ioCtx, cancel := context.WithTimeout(ctx, a.config.IOTimeout)
	defer cancel()
	return a.device.SetRGB(ioCtx, color)
}

func (a *Actuator) disconnect() {
	if err := a.Close(); err != nil {
		logger.With(zap.String("target", a.config.Name), zap.Error(err)).Debug("Error closing target")
	}
	a.hasLast = false
}

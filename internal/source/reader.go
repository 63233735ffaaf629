package source

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

var logger = logging.New("source")

// ErrDeviceNotFound means the configured device is not offered by the session.
var ErrDeviceNotFound = errors.New("source device not found")

// LEDID identifies one addressable element of a source device.
type LEDID int

type DeviceInfo struct {
	ID    string
	Model string
}

// Session is a connection to a source SDK. The Reader owns it exclusively.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Devices(ctx context.Context) ([]DeviceInfo, error)
	LEDs(ctx context.Context, deviceID string) ([]LEDID, error)
	LEDColors(ctx context.Context, deviceID string, leds []LEDID) ([]lights.Color, error)
}

type Config struct {
	DeviceID string
	// ReconnectDelay is the pause between tearing a session down and reconnecting.
	ReconnectDelay time.Duration
	// SettleDelay is the pause after connecting before the device is looked up.
	SettleDelay time.Duration
	// Aggregate defaults to util.AverageColor.
	Aggregate util.Aggregate
}

// Reader samples the aggregate color of one source device.
type Reader struct {
	session Session
	config  Config

	connected bool
	device    DeviceInfo
	leds      []LEDID

	last    lights.Color
	hasLast bool
}

var _ lights.ColorSource = (*Reader)(nil)

// NewReader connects the session and resolves the configured device.
func NewReader(ctx context.Context, session Session, config Config) (*Reader, error) {
	if config.Aggregate == nil {
		config.Aggregate = util.AverageColor
	}

	r := &Reader{
		session: session,
		config:  config,
	}

	if err := session.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to source: %w", err)
	}
	if err := util.Sleep(ctx, config.SettleDelay); err != nil {
		return nil, err
	}
	if err := r.resolve(ctx); err != nil {
		return nil, err
	}

	logger.With(zap.String("deviceID", r.device.ID),
		zap.String("model", r.device.Model),
		zap.Int("ledCount", len(r.leds))).
		Info("Source controller initialized")

	return r, nil
}

func (r *Reader) DeviceInfo() DeviceInfo {
	return r.device
}

func (r *Reader) LEDs() []LEDID {
	return r.leds
}

// Sample returns the current aggregate color, or ok=false when the color is
// unchanged or could not be read. Read failures trigger a reconnect. The only
// errors returned are ErrDeviceNotFound and context errors.
func (r *Reader) Sample(ctx context.Context) (lights.Color, bool, error) {
	if !r.connected || len(r.leds) == 0 {
		logger.Warn("No device or LEDs found, trying to reconnect...")
		return lights.Color{}, false, r.Reconnect(ctx)
	}

	colors, err := r.session.LEDColors(ctx, r.device.ID, r.leds)
	if err != nil {
		if ctx.Err() != nil {
			return lights.Color{}, false, ctx.Err()
		}
		logger.With(zap.Error(err)).Error("Error getting LED colors, trying to reconnect...")
		return lights.Color{}, false, r.Reconnect(ctx)
	}
	if len(colors) == 0 {
		logger.Warn("No LED colors received, trying to reconnect...")
		return lights.Color{}, false, r.Reconnect(ctx)
	}

	avg := r.config.Aggregate(colors)
	if r.hasLast && avg == r.last {
		return lights.Color{}, false, nil
	}

	r.last = avg
	r.hasLast = true
	logger.With(zap.Stringer("color", avg), zap.Int("ledCount", len(colors))).Info("New average color")
	return avg, true, nil
}

// Reconnect tears the session down and sets it up again. Transport failures
// leave the reader disconnected for a later retry; a device that is missing
// after a good connect returns ErrDeviceNotFound.
func (r *Reader) Reconnect(ctx context.Context) error {
	r.connected = false
	r.hasLast = false

	if err := r.session.Disconnect(); err != nil {
		logger.With(zap.Error(err)).Debug("Error disconnecting source session")
	}

	if err := util.Sleep(ctx, r.config.ReconnectDelay); err != nil {
		return err
	}

	if err := r.session.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.With(zap.Error(err)).Error("Error reconnecting to source")
		return nil
	}

	if err := util.Sleep(ctx, r.config.SettleDelay); err != nil {
		return err
	}

	if err := r.resolve(ctx); err != nil {
		if errors.Is(err, ErrDeviceNotFound) || ctx.Err() != nil {
			return err
		}
		logger.With(zap.Error(err)).Error("Error reconnecting to source")
		return nil
	}

	logger.With(zap.String("deviceID", r.device.ID),
		zap.String("model", r.device.Model),
		zap.Int("ledCount", len(r.leds))).
		Info("Source controller reconnected")
	return nil
}

func (r *Reader) Close() error {
	r.connected = false
	return r.session.Disconnect()
}

// resolve finds the configured device and re-discovers its LEDs.
func (r *Reader) resolve(ctx context.Context) error {
	devices, err := r.session.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list source devices: %w", err)
	}

	found := false
	for _, d := range devices {
		if d.ID == r.config.DeviceID {
			r.device = d
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, r.config.DeviceID)
	}

	leds, err := r.session.LEDs(ctx, r.device.ID)
	if err != nil {
		return fmt.Errorf("failed to list LEDs: %w", err)
	}
	if len(leds) == 0 {
		logger.With(zap.String("deviceID", r.device.ID)).Error("No LED positions found")
	} else {
		logger.With(zap.Int("ledCount", len(leds))).Debug("All LEDs found")
	}

	r.leds = leds
	r.connected = true
	r.hasLast = false
	return nil
}

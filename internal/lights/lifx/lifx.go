package lifx

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pdf/golifx"
	"github.com/pdf/golifx/common"
	"github.com/pdf/golifx/protocol"
	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/target"
	"github.com/scheerer/ambient-bridge/internal/util"
	"github.com/scheerer/ambient-bridge/lights"
)

var logger = logging.New("lifx")

type Config struct {
	// Label of the bulb to drive.
	Label         string
	MaxBrightness float64
	MinBrightness float64
	// Transition is handed to the bulb with every color so it smooths between
	// fade steps itself.
	Transition time.Duration
}

// light is the part of common.Light the bridge needs.
type light interface {
	SetColor(color common.Color, duration time.Duration) error
	SetPower(state bool) error
}

// Light is a LIFX bulb found by label on the LAN.
type Light struct {
	config Config
	client *golifx.Client
	light  light
}

var _ target.Device = (*Light)(nil)

func Dialer(config Config) target.Dialer {
	return func(ctx context.Context) (target.Device, error) {
		return Dial(ctx, config)
	}
}

// Dial discovers the bulb labelled config.Label. Discovery is bounded by the
// context deadline.
func Dial(ctx context.Context, config Config) (*Light, error) {
	client, err := golifx.NewClient(&protocol.V2{})
	if err != nil {
		return nil, fmt.Errorf("failed to create LIFX client: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		client.SetTimeout(time.Until(deadline))
	}

	logger.With(zap.String("label", config.Label)).Info("LIFX discovery starting...")

	type result struct {
		light common.Light
		err   error
	}
	found := make(chan result, 1)
	go func() {
		l, err := client.GetLightByLabel(config.Label)
		found <- result{light: l, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = client.Close()
		return nil, fmt.Errorf("LIFX discovery timed out: %w", ctx.Err())
	case r := <-found:
		if r.err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to find LIFX light %q: %w", config.Label, r.err)
		}
		logger.With(zap.String("label", config.Label), zap.Uint64("id", r.light.ID())).Info("LIFX light found")
		return newLight(client, r.light, config), nil
	}
}

func newLight(client *golifx.Client, l light, config Config) *Light {
	return &Light{
		config: config,
		client: client,
		light:  l,
	}
}

func (l *Light) SetRGB(ctx context.Context, color lights.Color) error {
	lifxColor := adjustColor(newLifxColor(color), l.config)

	logger.With(zap.Any("color", color),
		zap.Any("lifxColor", lifxColor)).
		Debug("Setting LIFX device color")

	return l.light.SetColor(lifxColor, l.config.Transition)
}

func (l *Light) TurnOff(ctx context.Context) error {
	return l.light.SetPower(false)
}

func (l *Light) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

func newLifxColor(color lights.Color) common.Color {
	hue, saturation, brightness := util.RgbToHsb(color.Red, color.Green, color.Blue)

	return common.Color{
		Hue:        hue,
		Saturation: saturation,
		Brightness: brightness,
		Kelvin:     3500,
	}
}

func adjustColor(color common.Color, config Config) common.Color {
	blackThreshold := 0.015 * 0xFFFF
	if color.Brightness <= uint16(blackThreshold) && color.Saturation <= uint16(blackThreshold) {
		// blackish color - turn off the light
		return common.Color{
			Hue:        0,
			Saturation: 0,
			Brightness: 0,
			Kelvin:     3500,
		}
	}

	color.Brightness = uint16(math.Min(config.MaxBrightness*0xFFFF, math.Max(config.MinBrightness*0xFFFF, float64(color.Brightness))))

	return color
}

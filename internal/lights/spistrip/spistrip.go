package spistrip

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/target"
	"github.com/scheerer/ambient-bridge/lights"
)

var logger = logging.New("spistrip")

// DefaultFreq suits WS2812b class strips.
const DefaultFreq = 2500 * physic.KiloHertz

type Config struct {
	// Port is the SPI port name, empty selects the first one registered.
	Port     string
	LEDCount int
}

// Strip drives an NRZ (WS2812) strip wired to a SPI port.
type Strip struct {
	port   spi.PortCloser
	dev    *nrzled.Dev
	pixels []byte
}

var _ target.Device = (*Strip)(nil)

func Dialer(config Config) target.Dialer {
	return func(ctx context.Context) (target.Device, error) {
		return Open(config)
	}
}

func Open(config Config) (*Strip, error) {
	if config.LEDCount < 1 {
		return nil, fmt.Errorf("invalid LED count %d", config.LEDCount)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}

	port, err := spireg.Open(config.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", config.Port, err)
	}

	s, err := newStrip(port, config.LEDCount)
	if err != nil {
		port.Close()
		return nil, err
	}

	logger.With(zap.String("port", port.String()), zap.Int("leds", config.LEDCount)).Info("SPI strip opened")
	return s, nil
}

func newStrip(port spi.PortCloser, ledCount int) (*Strip, error) {
	dev, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: ledCount,
		Channels:  3,
		Freq:      DefaultFreq,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nrzled device: %w", err)
	}
	return &Strip{
		port:   port,
		dev:    dev,
		pixels: make([]byte, 3*ledCount),
	}, nil
}

func (s *Strip) SetRGB(ctx context.Context, color lights.Color) error {
	for i := 0; i < len(s.pixels); i += 3 {
		s.pixels[i] = color.Red
		s.pixels[i+1] = color.Green
		s.pixels[i+2] = color.Blue
	}
	if _, err := s.dev.Write(s.pixels); err != nil {
		return fmt.Errorf("failed to write pixels: %w", err)
	}
	return nil
}

func (s *Strip) TurnOff(ctx context.Context) error {
	return s.dev.Halt()
}

func (s *Strip) Close() error {
	return s.port.Close()
}

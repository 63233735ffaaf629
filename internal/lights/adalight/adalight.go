package adalight

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/target"
	"github.com/scheerer/ambient-bridge/lights"
)

var logger = logging.New("adalight")

const DefaultBaudRate = 115200

type Config struct {
	Port     string
	BaudRate int
	LEDCount int
}

// Strip is an Adalight compatible LED strip behind a serial port. Every LED is
// painted with the same color.
type Strip struct {
	port  string
	conn  io.WriteCloser
	frame []byte
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
	if config.BaudRate <= 0 {
		config.BaudRate = DefaultBaudRate
	}

	port, err := serial.Open(config.Port, &serial.Mode{
		BaudRate: config.BaudRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Port, err)
	}

	logger.With(zap.String("port", config.Port),
		zap.Int("baudRate", config.BaudRate),
		zap.Int("leds", config.LEDCount)).
		Info("Adalight strip opened")
	return newStrip(config.Port, port, config.LEDCount), nil
}

func newStrip(name string, conn io.WriteCloser, ledCount int) *Strip {
	return &Strip{
		port:  name,
		conn:  conn,
		frame: newFrame(ledCount),
	}
}

func (s *Strip) SetRGB(ctx context.Context, color lights.Color) error {
	fill(s.frame, color)
	if _, err := s.conn.Write(s.frame); err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.port, err)
	}
	return nil
}

func (s *Strip) TurnOff(ctx context.Context) error {
	return s.SetRGB(ctx, lights.Color{})
}

func (s *Strip) Close() error {
	return s.conn.Close()
}

// newFrame allocates the "Ada" header followed by 3 bytes per LED. The header
// encodes count-1 big endian plus a checksum of hi^lo^0x55.
func newFrame(ledCount int) []byte {
	n := ledCount - 1
	hi, lo := byte(n>>8), byte(n)

	frame := make([]byte, 6+3*ledCount)
	copy(frame, "Ada")
	frame[3] = hi
	frame[4] = lo
	frame[5] = hi ^ lo ^ 0x55
	return frame
}

func fill(frame []byte, color lights.Color) {
	for i := 6; i+2 < len(frame); i += 3 {
		frame[i] = color.Red
		frame[i+1] = color.Green
		frame[i+2] = color.Blue
	}
}

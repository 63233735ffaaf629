package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"

	"github.com/kbinani/screenshot"
	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/source"
	"github.com/scheerer/ambient-bridge/lights"
)

var logger = logging.New("screen")

var ErrNoDisplays = errors.New("no active displays")

const devicePrefix = "display-"

// Capturer abstracts the screenshot library so sessions can run headless.
type Capturer interface {
	NumActiveDisplays() int
	GetDisplayBounds(displayIndex int) image.Rectangle
	CaptureRect(rect image.Rectangle) (*image.RGBA, error)
}

type screenshotCapturer struct{}

func (screenshotCapturer) NumActiveDisplays() int { return screenshot.NumActiveDisplays() }

func (screenshotCapturer) GetDisplayBounds(i int) image.Rectangle {
	return screenshot.GetDisplayBounds(i)
}

func (screenshotCapturer) CaptureRect(rect image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(rect)
}

// Session treats each display as a source device whose LEDs are the points of
// a pixel grid. PixelGridSize trades accuracy for speed, 1 being every pixel.
type Session struct {
	capturer      Capturer
	pixelGridSize int

	mu        sync.Mutex
	connected bool
	grids     map[string][]image.Point
}

var _ source.Session = (*Session)(nil)

func New(pixelGridSize int) *Session {
	return NewWithCapturer(screenshotCapturer{}, pixelGridSize)
}

func NewWithCapturer(capturer Capturer, pixelGridSize int) *Session {
	if pixelGridSize < 1 {
		pixelGridSize = 1
	}
	return &Session{
		capturer:      capturer,
		pixelGridSize: pixelGridSize,
		grids:         make(map[string][]image.Point),
	}
}

func DeviceID(displayIndex int) string {
	return devicePrefix + strconv.Itoa(displayIndex)
}

func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capturer.NumActiveDisplays() == 0 {
		return ErrNoDisplays
	}
	s.connected = true
	return nil
}

func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	s.grids = make(map[string][]image.Point)
	return nil
}

func (s *Session) Devices(ctx context.Context) ([]source.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, fmt.Errorf("screen session not connected")
	}

	n := s.capturer.NumActiveDisplays()
	devices := make([]source.DeviceInfo, 0, n)
	for i := 0; i < n; i++ {
		bounds := s.capturer.GetDisplayBounds(i)
		devices = append(devices, source.DeviceInfo{
			ID:    DeviceID(i),
			Model: fmt.Sprintf("%dx%d display", bounds.Dx(), bounds.Dy()),
		})
	}
	return devices, nil
}

func (s *Session) LEDs(ctx context.Context, deviceID string) ([]source.LEDID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.displayIndex(deviceID)
	if err != nil {
		return nil, err
	}

	bounds := s.capturer.GetDisplayBounds(index)
	grid := make([]image.Point, 0)
	for y := 0; y < bounds.Dy(); y += s.pixelGridSize {
		for x := 0; x < bounds.Dx(); x += s.pixelGridSize {
			grid = append(grid, image.Pt(x, y))
		}
	}
	s.grids[deviceID] = grid

	leds := make([]source.LEDID, len(grid))
	for i := range grid {
		leds[i] = source.LEDID(i)
	}

	logger.With(zap.String("deviceID", deviceID),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
		zap.Int("pixelGridSize", s.pixelGridSize)).
		Debug("Screen grid computed")
	return leds, nil
}

func (s *Session) LEDColors(ctx context.Context, deviceID string, leds []source.LEDID) ([]lights.Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.displayIndex(deviceID)
	if err != nil {
		return nil, err
	}
	grid, ok := s.grids[deviceID]
	if !ok {
		return nil, fmt.Errorf("no LEDs discovered for %v", deviceID)
	}

	img, err := s.capturer.CaptureRect(s.capturer.GetDisplayBounds(index))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}

	origin := img.Bounds().Min
	colors := make([]lights.Color, 0, len(leds))
	for _, id := range leds {
		if int(id) < 0 || int(id) >= len(grid) {
			return nil, fmt.Errorf("unknown LED %d on %v", id, deviceID)
		}
		p := grid[id].Add(origin)
		c := img.RGBAAt(p.X, p.Y)
		colors = append(colors, lights.Color{Red: c.R, Green: c.G, Blue: c.B})
	}
	return colors, nil
}

func (s *Session) displayIndex(deviceID string) (int, error) {
	if !s.connected {
		return 0, fmt.Errorf("screen session not connected")
	}

	index, err := strconv.Atoi(strings.TrimPrefix(deviceID, devicePrefix))
	if err != nil || !strings.HasPrefix(deviceID, devicePrefix) {
		return 0, fmt.Errorf("%w: %v", source.ErrDeviceNotFound, deviceID)
	}
	if index < 0 || index >= s.capturer.NumActiveDisplays() {
		return 0, fmt.Errorf("%w: %v", source.ErrDeviceNotFound, deviceID)
	}
	return index, nil
}

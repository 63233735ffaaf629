package ledcube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/source"
	"github.com/scheerer/ambient-bridge/lights"
)

var logger = logging.New("ledcube")

// DeviceID is the only device a ledcube frame stream offers.
const DeviceID = "ledcube"

var ErrNoFrame = errors.New("no frame received")

// frame is one message of the ledcube /ws/frames stream. The first message on
// a connection is the topology, which carries no rgb payload.
type frame struct {
	T       int64  `json:"t"`
	FrameID uint64 `json:"frame_id"`
	RGB     []byte `json:"rgb"`
	Driver  string `json:"driver"`
}

// Session follows a ledcube frame stream and serves its most recent frame.
type Session struct {
	url        string
	frameWait  time.Duration
	staleAfter time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	latest   frame
	received time.Time
	driver   string
	readErr  error
	updated  chan struct{}
}

var _ source.Session = (*Session)(nil)

func New(url string, frameWait time.Duration) *Session {
	if frameWait <= 0 {
		frameWait = time.Second
	}
	return &Session{
		url:        url,
		frameWait:  frameWait,
		staleAfter: 5 * frameWait,
	}
}

func (s *Session) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %v: %w", s.url, err)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.latest = frame{}
	s.received = time.Time{}
	s.readErr = nil
	s.updated = make(chan struct{})
	s.mu.Unlock()

	go s.pump(conn)

	logger.With(zap.String("url", s.url)).Info("Connected to ledcube frame stream")
	return nil
}

func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Session) Devices(ctx context.Context) ([]source.DeviceInfo, error) {
	if _, err := s.waitFrame(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	model := "ledcube"
	if s.driver != "" {
		model = fmt.Sprintf("ledcube (%v)", s.driver)
	}
	return []source.DeviceInfo{{ID: DeviceID, Model: model}}, nil
}

func (s *Session) LEDs(ctx context.Context, deviceID string) ([]source.LEDID, error) {
	if deviceID != DeviceID {
		return nil, fmt.Errorf("%w: %v", source.ErrDeviceNotFound, deviceID)
	}

	f, err := s.waitFrame(ctx)
	if err != nil {
		return nil, err
	}

	leds := make([]source.LEDID, len(f.RGB)/3)
	for i := range leds {
		leds[i] = source.LEDID(i)
	}
	return leds, nil
}

func (s *Session) LEDColors(ctx context.Context, deviceID string, leds []source.LEDID) ([]lights.Color, error) {
	if deviceID != DeviceID {
		return nil, fmt.Errorf("%w: %v", source.ErrDeviceNotFound, deviceID)
	}

	f, err := s.waitFrame(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	age := time.Since(s.received)
	s.mu.Unlock()
	if age > s.staleAfter {
		return nil, fmt.Errorf("frame %d is stale (%v old)", f.FrameID, age)
	}

	colors := make([]lights.Color, 0, len(leds))
	for _, id := range leds {
		i := int(id) * 3
		if i < 0 || i+2 >= len(f.RGB) {
			return nil, fmt.Errorf("LED %d not present in frame %d", id, f.FrameID)
		}
		colors = append(colors, lights.Color{Red: f.RGB[i], Green: f.RGB[i+1], Blue: f.RGB[i+2]})
	}
	return colors, nil
}

// waitFrame returns the latest frame, waiting up to frameWait for the first one.
func (s *Session) waitFrame(ctx context.Context) (frame, error) {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return frame{}, fmt.Errorf("ledcube session not connected")
	}
	if s.readErr != nil {
		err := s.readErr
		s.mu.Unlock()
		return frame{}, err
	}
	if !s.received.IsZero() {
		f := s.latest
		s.mu.Unlock()
		return f, nil
	}
	updated := s.updated
	s.mu.Unlock()

	timer := time.NewTimer(s.frameWait)
	defer timer.Stop()

	select {
	case <-updated:
	case <-timer.C:
		return frame{}, ErrNoFrame
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return frame{}, s.readErr
	}
	return s.latest, nil
}

func (s *Session) pump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()

		s.mu.Lock()
		if s.conn != conn {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.readErr = fmt.Errorf("frame stream closed: %w", err)
			s.signal()
			s.mu.Unlock()
			logger.With(zap.Error(err)).Debug("Frame stream read failed")
			return
		}

		var f frame
		if jsonErr := json.Unmarshal(data, &f); jsonErr != nil {
			s.mu.Unlock()
			logger.With(zap.Error(jsonErr)).Debug("Ignoring malformed frame")
			continue
		}
		if f.Driver != "" {
			s.driver = f.Driver
		}
		if len(f.RGB) > 0 {
			s.latest = f
			s.received = time.Now()
			s.signal()
		}
		s.mu.Unlock()
	}
}

// signal wakes waiters for the first frame. Callers hold mu.
func (s *Session) signal() {
	select {
	case <-s.updated:
	default:
		close(s.updated)
	}
}

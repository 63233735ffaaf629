package screen

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/ambient-bridge/internal/source"
	"github.com/scheerer/ambient-bridge/lights"
)

type fakeCapturer struct {
	displays []image.Rectangle
	fill     color.RGBA
	err      error
}

func (f *fakeCapturer) NumActiveDisplays() int { return len(f.displays) }

func (f *fakeCapturer) GetDisplayBounds(i int) image.Rectangle { return f.displays[i] }

func (f *fakeCapturer) CaptureRect(rect image.Rectangle) (*image.RGBA, error) {
	if f.err != nil {
		return nil, f.err
	}
	img := image.NewRGBA(rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetRGBA(x, y, f.fill)
		}
	}
	// mark the top-left pixel so grid sampling is observable
	img.SetRGBA(rect.Min.X, rect.Min.Y, color.RGBA{R: 255, A: 255})
	return img, nil
}

func TestSession_Devices(t *testing.T) {
	f := &fakeCapturer{displays: []image.Rectangle{image.Rect(0, 0, 8, 4), image.Rect(8, 0, 12, 2)}}
	s := NewWithCapturer(f, 2)

	require.NoError(t, s.Connect(context.Background()))
	devices, err := s.Devices(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []source.DeviceInfo{
		{ID: "display-0", Model: "8x4 display"},
		{ID: "display-1", Model: "4x2 display"},
	}, devices)
}

func TestSession_ConnectWithoutDisplays(t *testing.T) {
	s := NewWithCapturer(&fakeCapturer{}, 1)
	assert.ErrorIs(t, s.Connect(context.Background()), ErrNoDisplays)
}

func TestSession_GridColors(t *testing.T) {
	f := &fakeCapturer{
		displays: []image.Rectangle{image.Rect(0, 0, 4, 4), image.Rect(4, 0, 8, 4)},
		fill:     color.RGBA{G: 100, B: 50, A: 255},
	}
	s := NewWithCapturer(f, 2)
	require.NoError(t, s.Connect(context.Background()))

	leds, err := s.LEDs(context.Background(), "display-1")
	require.NoError(t, err)
	assert.Len(t, leds, 4)

	colors, err := s.LEDColors(context.Background(), "display-1", leds)
	require.NoError(t, err)
	assert.Equal(t, []lights.Color{
		{Red: 255, Green: 0, Blue: 0},
		{Red: 0, Green: 100, Blue: 50},
		{Red: 0, Green: 100, Blue: 50},
		{Red: 0, Green: 100, Blue: 50},
	}, colors)
}

func TestSession_CaptureError(t *testing.T) {
	f := &fakeCapturer{displays: []image.Rectangle{image.Rect(0, 0, 2, 2)}}
	s := NewWithCapturer(f, 1)
	require.NoError(t, s.Connect(context.Background()))
	leds, err := s.LEDs(context.Background(), "display-0")
	require.NoError(t, err)

	f.err = errors.New("capture failed")
	_, err = s.LEDColors(context.Background(), "display-0", leds)
	assert.Error(t, err)
}

func TestSession_UnknownDisplay(t *testing.T) {
	f := &fakeCapturer{displays: []image.Rectangle{image.Rect(0, 0, 2, 2)}}
	s := NewWithCapturer(f, 1)
	require.NoError(t, s.Connect(context.Background()))

	_, err := s.LEDs(context.Background(), "display-3")
	assert.ErrorIs(t, err, source.ErrDeviceNotFound)

	_, err = s.LEDs(context.Background(), "keyboard")
	assert.ErrorIs(t, err, source.ErrDeviceNotFound)
}

func TestSession_WithReader(t *testing.T) {
	f := &fakeCapturer{
		displays: []image.Rectangle{image.Rect(0, 0, 2, 1)},
		fill:     color.RGBA{R: 1, G: 200, B: 3, A: 255},
	}
	s := NewWithCapturer(f, 1)

	r, err := source.NewReader(context.Background(), s, source.Config{DeviceID: DeviceID(0)})
	require.NoError(t, err)

	c, ok, err := r.Sample(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	// (255,0,0) and (1,200,3)
	assert.Equal(t, lights.Color{Red: 128, Green: 100, Blue: 1}, c)
}

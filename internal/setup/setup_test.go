package setup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scheerer/ambient-bridge/internal/config"
	"github.com/scheerer/ambient-bridge/internal/ledcube"
	"github.com/scheerer/ambient-bridge/internal/lights/magichome"
	"github.com/scheerer/ambient-bridge/internal/screen"
	"github.com/scheerer/ambient-bridge/internal/source"
	"github.com/scheerer/ambient-bridge/lights"
)

type fakeSession struct {
	devices      []source.DeviceInfo
	connectErr   error
	disconnected bool
}

func (f *fakeSession) Connect(ctx context.Context) error { return f.connectErr }

func (f *fakeSession) Disconnect() error {
	f.disconnected = true
	return nil
}

func (f *fakeSession) Devices(ctx context.Context) ([]source.DeviceInfo, error) {
	return f.devices, nil
}

func (f *fakeSession) LEDs(ctx context.Context, deviceID string) ([]source.LEDID, error) {
	return nil, nil
}

func (f *fakeSession) LEDColors(ctx context.Context, deviceID string, leds []source.LEDID) ([]lights.Color, error) {
	return nil, nil
}

var twoControllers = []magichome.Found{
	{IP: "192.168.1.10", MAC: "A", Model: "m"},
	{IP: "192.168.1.11", MAC: "B", Model: "m"},
}

func TestChooseSourceDevice_PicksFirst(t *testing.T) {
	var out bytes.Buffer
	s := &fakeSession{devices: []source.DeviceInfo{{ID: "display-0", Model: "display 0"}, {ID: "display-1", Model: "display 1"}}}

	id, err := Wizard{Out: &out}.ChooseSourceDevice(context.Background(), s, 0)
	require.NoError(t, err)
	assert.Equal(t, "display-0", id)
	assert.True(t, s.disconnected)
	assert.Contains(t, out.String(), "Automatically selected: display 0")
}

func TestChooseSourceDevice_NoDevices(t *testing.T) {
	_, err := Wizard{Out: &bytes.Buffer{}}.ChooseSourceDevice(context.Background(), &fakeSession{}, 0)
	assert.ErrorIs(t, err, ErrNoSourceDevices)
}

func TestChooseSourceDevice_ConnectFailure(t *testing.T) {
	boom := errors.New("no sdk")
	_, err := Wizard{Out: &bytes.Buffer{}}.ChooseSourceDevice(context.Background(), &fakeSession{connectErr: boom}, 0)
	assert.ErrorIs(t, err, boom)
}

func TestChooseController(t *testing.T) {
	tests := []struct {
		name    string
		found   []magichome.Found
		input   string
		want    string
		wantErr error
	}{
		{name: "none", found: nil, wantErr: ErrNoControllers},
		{name: "single is automatic", found: twoControllers[:1], want: "192.168.1.10"},
		{name: "valid index", found: twoControllers, input: "1\n", want: "192.168.1.11"},
		{name: "retries until valid", found: twoControllers, input: "x\n5\n-1\n0\n", want: "192.168.1.10"},
		{name: "input closed", found: twoControllers, input: "7\n", wantErr: ErrNoChoice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := Wizard{In: strings.NewReader(tt.input), Out: &out}.ChooseController(tt.found)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChooseController_RepromptsOnInvalid(t *testing.T) {
	var out bytes.Buffer
	_, err := Wizard{In: strings.NewReader("9\n1\n"), Out: &out}.ChooseController(twoControllers)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out.String(), "Choose a controller [0-1]: "))
	assert.Equal(t, 1, strings.Count(out.String(), "Invalid choice. Try again."))
}

func TestRun_FillsMissingValues(t *testing.T) {
	cfg := config.Config{TargetType: config.TargetMagicHome}
	s := &fakeSession{devices: []source.DeviceInfo{{ID: "ledcube", Model: "ledcube (sim)"}}}
	scanned := false
	w := Wizard{
		In:  strings.NewReader(""),
		Out: &bytes.Buffer{},
		Scan: func(ctx context.Context) ([]magichome.Found, error) {
			scanned = true
			return twoControllers[1:], nil
		},
	}

	require.NoError(t, w.Run(context.Background(), &cfg, s))
	assert.True(t, scanned)
	assert.Equal(t, "ledcube", cfg.SourceDeviceID)
	assert.Equal(t, "192.168.1.11", cfg.TargetAddress)
	assert.Equal(t, "ERROR", cfg.LogLevel)
	assert.True(t, cfg.Complete())
}

func TestRun_KeepsConfiguredValues(t *testing.T) {
	cfg := config.Config{TargetType: config.TargetMagicHome, SourceDeviceID: "display-1", TargetAddress: "10.0.0.2", LogLevel: "DEBUG"}
	w := Wizard{
		Out: &bytes.Buffer{},
		Scan: func(ctx context.Context) ([]magichome.Found, error) {
			t.Fatal("scan should not run")
			return nil, nil
		},
	}

	require.NoError(t, w.Run(context.Background(), &cfg, &fakeSession{}))
	assert.Equal(t, "display-1", cfg.SourceDeviceID)
	assert.Equal(t, "10.0.0.2", cfg.TargetAddress)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestRun_NonMagicHomeTargetNeedsAddress(t *testing.T) {
	cfg := config.Config{TargetType: config.TargetAdalight, SourceDeviceID: "display-0"}
	err := Wizard{Out: &bytes.Buffer{}}.Run(context.Background(), &cfg, &fakeSession{})
	assert.ErrorContains(t, err, "TARGET_ADDRESS")
}

func TestRun_ScanError(t *testing.T) {
	boom := errors.New("no network")
	cfg := config.Config{TargetType: config.TargetMagicHome, SourceDeviceID: "display-0"}
	w := Wizard{
		Out:  &bytes.Buffer{},
		Scan: func(ctx context.Context) ([]magichome.Found, error) { return nil, boom },
	}
	assert.ErrorIs(t, w.Run(context.Background(), &cfg, &fakeSession{}), boom)
}

func TestNewSession(t *testing.T) {
	s, err := NewSession(config.Config{SourceType: config.SourceScreen, PixelGridSize: 5})
	require.NoError(t, err)
	assert.IsType(t, &screen.Session{}, s)

	s, err = NewSession(config.Config{SourceType: config.SourceLedcube, SourceAddress: "ws://localhost:8080/ws/frames"})
	require.NoError(t, err)
	assert.IsType(t, &ledcube.Session{}, s)

	_, err = NewSession(config.Config{SourceType: "ICUE"})
	assert.ErrorIs(t, err, config.ErrUnknownSourceType)
}

package setup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/config"
	"github.com/scheerer/ambient-bridge/internal/ledcube"
	"github.com/scheerer/ambient-bridge/internal/lights/magichome"
	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/screen"
	"github.com/scheerer/ambient-bridge/internal/source"
	"github.com/scheerer/ambient-bridge/internal/util"
)

var logger = logging.New("setup")

var (
	ErrNoSourceDevices = errors.New("no source devices found")
	ErrNoControllers   = errors.New("no Magic Home controllers found, make sure the controller is powered on and on the same network")
	ErrNoChoice        = errors.New("no controller chosen")
)

// ScanFunc finds Magic Home controllers on the LAN.
type ScanFunc func(ctx context.Context) ([]magichome.Found, error)

// Wizard fills in the source device and target address a config is missing.
type Wizard struct {
	In   io.Reader
	Out  io.Writer
	Scan ScanFunc
}

// Run completes cfg. The source device is picked from session, the target
// address from a Magic Home scan. Other target types must be configured
// explicitly. An unset log level becomes config.DefaultFileLogLevel.
func (w Wizard) Run(ctx context.Context, cfg *config.Config, session source.Session) error {
	fmt.Fprintln(w.Out, "Welcome to the ambient bridge setup wizard!")

	if cfg.SourceDeviceID == "" {
		id, err := w.ChooseSourceDevice(ctx, session, cfg.ConnectSettle)
		if err != nil {
			return err
		}
		cfg.SourceDeviceID = id
	}

	if cfg.TargetAddress == "" {
		if cfg.TargetType != config.TargetMagicHome {
			return fmt.Errorf("TARGET_ADDRESS must be set for target type %v", cfg.TargetType)
		}
		if w.Scan == nil {
			return ErrNoControllers
		}

		fmt.Fprintln(w.Out, "Scanning for Magic Home controllers on the network...")
		found, err := w.Scan(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan for Magic Home controllers: %w", err)
		}
		ip, err := w.ChooseController(found)
		if err != nil {
			return err
		}
		cfg.TargetAddress = ip
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = config.DefaultFileLogLevel
	}

	logger.With(zap.String("sourceDeviceID", cfg.SourceDeviceID),
		zap.String("targetAddress", cfg.TargetAddress)).
		Info("Setup complete")
	return nil
}

// ChooseSourceDevice lists the devices session offers and picks the first.
func (w Wizard) ChooseSourceDevice(ctx context.Context, session source.Session, settle time.Duration) (string, error) {
	fmt.Fprintln(w.Out, "Scanning for source devices...")

	if err := session.Connect(ctx); err != nil {
		return "", fmt.Errorf("failed to connect to source: %w", err)
	}
	defer session.Disconnect()

	if err := util.Sleep(ctx, settle); err != nil {
		return "", err
	}

	devices, err := session.Devices(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list source devices: %w", err)
	}
	if len(devices) == 0 {
		return "", ErrNoSourceDevices
	}

	fmt.Fprintln(w.Out, "\nFound source devices:")
	for i, d := range devices {
		fmt.Fprintf(w.Out, "[%d] Model: %s\n    ID: %s\n", i, d.Model, d.ID)
	}

	device := devices[0]
	fmt.Fprintf(w.Out, "\nAutomatically selected: %s\n", device.Model)
	return device.ID, nil
}

// ChooseController picks the only controller found, or prompts for an index
// until a valid one is entered.
func (w Wizard) ChooseController(found []magichome.Found) (string, error) {
	if len(found) == 0 {
		return "", ErrNoControllers
	}

	fmt.Fprintln(w.Out, "\nFound Magic Home controllers:")
	for i, f := range found {
		fmt.Fprintf(w.Out, "[%d] IP: %s\n", i, f.IP)
	}

	if len(found) == 1 {
		fmt.Fprintf(w.Out, "\nAutomatically selected: %s\n", found[0].IP)
		return found[0].IP, nil
	}

	scanner := bufio.NewScanner(w.In)
	for {
		fmt.Fprintf(w.Out, "Choose a controller [0-%d]: ", len(found)-1)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("failed to read choice: %w", err)
			}
			return "", ErrNoChoice
		}

		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && choice >= 0 && choice < len(found) {
			return found[choice].IP, nil
		}
		fmt.Fprintln(w.Out, "Invalid choice. Try again.")
	}
}

// NewSession builds the source session cfg.SourceType names.
func NewSession(cfg config.Config) (source.Session, error) {
	switch cfg.SourceType {
	case config.SourceScreen:
		return screen.New(cfg.PixelGridSize), nil
	case config.SourceLedcube:
		return ledcube.New(cfg.SourceAddress, cfg.IOTimeout), nil
	default:
		return nil, fmt.Errorf("%w: %v", config.ErrUnknownSourceType, cfg.SourceType)
	}
}

// NewScanner scans the LAN broadcast address for cfg.ScanTimeout.
func NewScanner(cfg config.Config) ScanFunc {
	return func(ctx context.Context) ([]magichome.Found, error) {
		return magichome.Scan(ctx, magichome.DiscoveryAddress, cfg.ScanTimeout)
	}
}

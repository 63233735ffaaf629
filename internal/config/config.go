package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v3"
)

const (
	SourceScreen  = "SCREEN"
	SourceLedcube = "LEDCUBE"

	TargetMagicHome = "MAGICHOME"
	TargetLifx      = "LIFX"
	TargetAdalight  = "ADALIGHT"
	TargetSPI       = "SPI"
)

// DefaultFileLogLevel applies when a selection file carries no log_level, and
// is what the setup wizard writes.
const DefaultFileLogLevel = "ERROR"

var (
	ErrUnknownSourceType = errors.New("unknown source type")
	ErrUnknownTargetType = errors.New("unknown target type")
)

type Config struct {
	SourceType     string        `env:"SOURCE_TYPE" envDefault:"SCREEN"`
	SourceDeviceID string        `env:"SOURCE_DEVICE_ID"`
	SourceAddress  string        `env:"SOURCE_ADDRESS" envDefault:"ws://localhost:8080/ws/frames"`
	ColorAlgo      string        `env:"COLOR_ALGO" envDefault:"AVERAGE"`
	PixelGridSize  int           `env:"PIXEL_GRID_SIZE" envDefault:"5"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"100ms"`
	ReconnectDelay time.Duration `env:"RECONNECT_DELAY" envDefault:"2s"`
	ConnectSettle  time.Duration `env:"CONNECT_SETTLE" envDefault:"1s"`

	TargetType     string        `env:"TARGET_TYPE" envDefault:"MAGICHOME"`
	TargetAddress  string        `env:"TARGET_ADDRESS"`
	FadeSteps      int           `env:"FADE_STEPS" envDefault:"10"`
	FadeStepDelay  time.Duration `env:"FADE_STEP_DELAY" envDefault:"20ms"`
	IOTimeout      time.Duration `env:"IO_TIMEOUT" envDefault:"2s"`
	TurnOffTimeout time.Duration `env:"TURN_OFF_TIMEOUT" envDefault:"3s"`
	MinBrightness  float64       `env:"MIN_BRIGHTNESS" envDefault:"0"`
	MaxBrightness  float64       `env:"MAX_BRIGHTNESS" envDefault:"1"`
	LEDCount       int           `env:"LED_COUNT" envDefault:"30"`
	BaudRate       int           `env:"BAUD_RATE" envDefault:"115200"`
	ScanTimeout    time.Duration `env:"SCAN_TIMEOUT" envDefault:"5s"`

	LogLevel   string `env:"LOG_LEVEL"`
	ConfigFile string `env:"CONFIG_FILE" envDefault:"bridge.yaml"`
}

// Selection is the device choice persisted by the setup wizard.
type Selection struct {
	// The ID of the source device (e.g. display-0, ledcube)
	SourceDeviceID string `yaml:"source_device_id"`
	// The address of the target (IP for Magic Home, label for LIFX, port for Adalight/SPI)
	TargetAddress string `yaml:"target_address"`
	// ERROR, WARNING, INFO or DEBUG
	LogLevel string `yaml:"log_level,omitempty"`
}

// FromEnv parses the process environment.
func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return c, nil
}

// Apply fills values the environment left empty from the persisted selection.
func (c *Config) Apply(sel Selection) {
	if c.SourceDeviceID == "" {
		c.SourceDeviceID = sel.SourceDeviceID
	}
	if c.TargetAddress == "" {
		c.TargetAddress = sel.TargetAddress
	}
	if c.LogLevel == "" {
		c.LogLevel = sel.LogLevel
	}
}

// Complete reports whether both endpoints are identified.
func (c Config) Complete() bool {
	return c.SourceDeviceID != "" && c.TargetAddress != ""
}

func (c Config) Selection() Selection {
	return Selection{
		SourceDeviceID: c.SourceDeviceID,
		TargetAddress:  c.TargetAddress,
		LogLevel:       c.LogLevel,
	}
}

func (c Config) Validate() error {
	switch c.SourceType {
	case SourceScreen, SourceLedcube:
	default:
		return fmt.Errorf("%w: %v", ErrUnknownSourceType, c.SourceType)
	}

	switch c.TargetType {
	case TargetMagicHome, TargetLifx, TargetAdalight, TargetSPI:
	default:
		return fmt.Errorf("%w: %v", ErrUnknownTargetType, c.TargetType)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval)
	}
	if c.FadeSteps < 1 {
		return fmt.Errorf("FADE_STEPS must be at least 1, got %d", c.FadeSteps)
	}
	if c.FadeStepDelay < 0 {
		return fmt.Errorf("FADE_STEP_DELAY must not be negative, got %v", c.FadeStepDelay)
	}
	if c.IOTimeout <= 0 {
		return fmt.Errorf("IO_TIMEOUT must be positive, got %v", c.IOTimeout)
	}
	if c.PixelGridSize < 1 {
		return fmt.Errorf("PIXEL_GRID_SIZE must be at least 1, got %d", c.PixelGridSize)
	}
	if c.MinBrightness < 0 || c.MaxBrightness > 1 || c.MinBrightness > c.MaxBrightness {
		return fmt.Errorf("brightness range [%v, %v] must lie within [0, 1]", c.MinBrightness, c.MaxBrightness)
	}
	if (c.TargetType == TargetAdalight || c.TargetType == TargetSPI) && c.LEDCount < 1 {
		return fmt.Errorf("LED_COUNT must be at least 1 for %v, got %d", c.TargetType, c.LEDCount)
	}

	return nil
}

// Load reads the selection file. A missing file yields an empty selection; a
// file without log_level yields DefaultFileLogLevel.
func Load(filename string) (Selection, error) {
	var sel Selection

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return sel, nil
		}
		return sel, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &sel); err != nil {
		return sel, fmt.Errorf("failed to parse config file: %w", err)
	}
	if sel.LogLevel == "" {
		sel.LogLevel = DefaultFileLogLevel
	}

	return sel, nil
}

// Save writes the selection file.
func (s Selection) Save(filename string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

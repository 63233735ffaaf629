package magichome

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/scheerer/ambient-bridge/internal/logging"
	"github.com/scheerer/ambient-bridge/internal/target"
	"github.com/scheerer/ambient-bridge/lights"
)

var logger = logging.New("magichome")

const (
	DefaultPort = "5577"

	stateResponseLen = 14
	powerOn          = 0x23
	powerOff         = 0x24
)

var ErrBadResponse = errors.New("unexpected response from Magic Home controller")

// Controller is a TCP connection to a Magic Home (LEDENET) WiFi controller.
type Controller struct {
	address string
	conn    net.Conn
	// on is the power state last reported or commanded.
	on bool
}

var _ target.Device = (*Controller)(nil)

// Dialer returns a target.Dialer for the controller at address. A missing port
// defaults to 5577.
func Dialer(address string) target.Dialer {
	return func(ctx context.Context) (target.Device, error) {
		return Dial(ctx, address)
	}
}

// Dial connects and queries the controller state. It never changes the power
// state; the strip is powered on by the first SetRGB that finds it off.
func Dial(ctx context.Context, address string) (*Controller, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, DefaultPort)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Magic Home controller %v: %w", address, err)
	}

	c := &Controller{address: address, conn: conn}

	on, err := c.queryPower(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.on = on

	logger.With(zap.String("address", address)).Info("Magic Home controller connected")
	return c, nil
}

func (c *Controller) SetRGB(ctx context.Context, color lights.Color) error {
	if !c.on {
		logger.With(zap.String("address", c.address)).Info("LED strip is off, turning it on")
		if err := c.send(ctx, powerCommand(true)); err != nil {
			return err
		}
		c.on = true
	}
	return c.send(ctx, colorCommand(color))
}

func (c *Controller) TurnOff(ctx context.Context) error {
	if err := c.send(ctx, powerCommand(false)); err != nil {
		return err
	}
	c.on = false
	return nil
}

func (c *Controller) Close() error {
	return c.conn.Close()
}

func (c *Controller) queryPower(ctx context.Context) (bool, error) {
	if err := c.send(ctx, withChecksum(0x81, 0x8a, 0x8b)); err != nil {
		return false, err
	}

	c.applyDeadline(ctx)
	resp := make([]byte, stateResponseLen)
	if _, err := io.ReadFull(c.conn, resp); err != nil {
		return false, fmt.Errorf("failed to read controller state: %w", err)
	}

	if resp[0] != 0x81 || checksum(resp[:stateResponseLen-1]) != resp[stateResponseLen-1] {
		return false, fmt.Errorf("%w: % x", ErrBadResponse, resp)
	}

	logger.With(zap.String("address", c.address),
		zap.Uint8("model", resp[1]),
		zap.Bool("on", resp[2] == powerOn),
		zap.Stringer("color", lights.Color{Red: resp[6], Green: resp[7], Blue: resp[8]})).
		Debug("Magic Home controller state")
	return resp[2] == powerOn, nil
}

func (c *Controller) send(ctx context.Context, msg []byte) error {
	c.applyDeadline(ctx)
	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("failed to write to %v: %w", c.address, err)
	}
	return nil
}

func (c *Controller) applyDeadline(ctx context.Context) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = c.conn.SetDeadline(deadline)
}

// colorCommand sets RGB and leaves warm white untouched (0xf0: color only).
func colorCommand(color lights.Color) []byte {
	return withChecksum(0x31, color.Red, color.Green, color.Blue, 0x00, 0xf0, 0x0f)
}

func powerCommand(on bool) []byte {
	state := byte(powerOff)
	if on {
		state = powerOn
	}
	return withChecksum(0x71, state, 0x0f)
}

func withChecksum(msg ...byte) []byte {
	return append(msg, checksum(msg))
}

func checksum(msg []byte) byte {
	var sum byte
	for _, b := range msg {
		sum += b
	}
	return sum
}

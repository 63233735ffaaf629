package lights

import (
	"context"
	"fmt"
)

type Color struct {
	Red   uint8
	Green uint8
	Blue  uint8
}

func (c Color) String() string {
	return fmt.Sprintf("R=%d, G=%d, B=%d", c.Red, c.Green, c.Blue)
}

// ColorSource yields the aggregate color of a source device. ok is false when
// there is nothing new to forward this tick.
type ColorSource interface {
	Sample(ctx context.Context) (color Color, ok bool, err error)
}

// ColorTarget drives a target device. SetColor never fails from the caller's
// point of view; TurnOff reports its error for logging only.
type ColorTarget interface {
	SetColor(ctx context.Context, color Color)
	TurnOff(ctx context.Context) error
}

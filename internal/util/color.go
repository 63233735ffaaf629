package util

import (
	"fmt"
	"math"
	"sort"

	"github.com/scheerer/ambient-bridge/lights"
)

// Aggregate reduces the colors of many LEDs to a single color.
type Aggregate func(colors []lights.Color) lights.Color

// AggregateByName resolves a COLOR_ALGO value.
func AggregateByName(name string) (Aggregate, error) {
	switch name {
	case "AVERAGE":
		return AverageColor, nil
	case "SQUARED_AVERAGE":
		return SquaredAverageColor, nil
	case "MEDIAN":
		return MedianColor, nil
	case "MODE":
		return ModeColor, nil
	default:
		return nil, fmt.Errorf("unknown color algorithm: %v", name)
	}
}

func RgbToHsb(r, g, b uint8) (uint16, uint16, uint16) {
	red := float64(r) / 255.0
	green := float64(g) / 255.0
	blue := float64(b) / 255.0

	max := math.Max(red, math.Max(green, blue))
	min := math.Min(red, math.Min(green, blue))
	delta := max - min

	var h, s, v float64
	v = max // Brightness is the max of RGB

	if delta == 0 {
		h = 0
		s = 0
	} else { // Chromatic data...
		s = delta / max // Saturation is degree of variation from grey.

		deltaR := (((max - red) / 6) + (delta / 2)) / delta
		deltaG := (((max - green) / 6) + (delta / 2)) / delta
		deltaB := (((max - blue) / 6) + (delta / 2)) / delta

		if red == max {
			h = deltaB - deltaG
		} else if green == max {
			h = (1.0 / 3.0) + deltaR - deltaB
		} else if blue == max {
			h = (2.0 / 3.0) + deltaG - deltaR
		}

		if h < 0 {
			h += 1
		}
		if h > 1 {
			h -= 1
		}
	}

	hue := uint16(math.Round(h * 0xFFFF))
	saturation := uint16(math.Round(s * 0xFFFF))
	brightness := uint16(math.Round(v * 0xFFFF))

	return hue, saturation, brightness
}

// AverageColor is the per-channel arithmetic mean, truncated toward zero.
func AverageColor(colors []lights.Color) lights.Color {
	if len(colors) == 0 {
		return lights.Color{}
	}

	var sumR, sumG, sumB uint64
	for _, c := range colors {
		sumR += uint64(c.Red)
		sumG += uint64(c.Green)
		sumB += uint64(c.Blue)
	}

	n := uint64(len(colors))
	return lights.Color{
		Red:   uint8(sumR / n),
		Green: uint8(sumG / n),
		Blue:  uint8(sumB / n),
	}
}

// SquaredAverageColor is the root of the mean of squared channel values.
func SquaredAverageColor(colors []lights.Color) lights.Color {
	if len(colors) == 0 {
		return lights.Color{}
	}

	var sumR, sumG, sumB uint64
	for _, c := range colors {
		sumR += uint64(c.Red) * uint64(c.Red)
		sumG += uint64(c.Green) * uint64(c.Green)
		sumB += uint64(c.Blue) * uint64(c.Blue)
	}

	n := uint64(len(colors))
	return lights.Color{
		Red:   uint8(math.Sqrt(float64(sumR / n))),
		Green: uint8(math.Sqrt(float64(sumG / n))),
		Blue:  uint8(math.Sqrt(float64(sumB / n))),
	}
}

// MedianColor calculates the per-channel median.
func MedianColor(colors []lights.Color) lights.Color {
	if len(colors) == 0 {
		return lights.Color{}
	}

	reds := make([]uint8, 0, len(colors))
	greens := make([]uint8, 0, len(colors))
	blues := make([]uint8, 0, len(colors))
	for _, c := range colors {
		reds = append(reds, c.Red)
		greens = append(greens, c.Green)
		blues = append(blues, c.Blue)
	}

	sort.Slice(reds, func(i, j int) bool { return reds[i] < reds[j] })
	sort.Slice(greens, func(i, j int) bool { return greens[i] < greens[j] })
	sort.Slice(blues, func(i, j int) bool { return blues[i] < blues[j] })

	median := func(values []uint8) uint8 {
		n := len(values)
		if n%2 == 0 {
			return uint8((int(values[n/2-1]) + int(values[n/2])) / 2)
		}
		return values[n/2]
	}

	return lights.Color{
		Red:   median(reds),
		Green: median(greens),
		Blue:  median(blues),
	}
}

// ModeColor returns the most frequent color. Ties go to the color seen first.
func ModeColor(colors []lights.Color) lights.Color {
	colorCount := make(map[lights.Color]int, len(colors))

	var modeColor lights.Color
	maxCount := 0
	for _, c := range colors {
		colorCount[c]++
		if colorCount[c] > maxCount {
			maxCount = colorCount[c]
			modeColor = c
		}
	}

	return modeColor
}

// Interpolate returns start + (end-start)*progress per channel, truncated.
func Interpolate(start, end lights.Color, progress float64) lights.Color {
	lerp := func(s, e uint8) uint8 {
		return uint8(float64(s) + (float64(e)-float64(s))*progress)
	}
	return lights.Color{
		Red:   lerp(start.Red, end.Red),
		Green: lerp(start.Green, end.Green),
		Blue:  lerp(start.Blue, end.Blue),
	}
}

// FadeSteps returns the intermediate colors i=1..steps between from and to.
// The start color is not included and the last element is always to.
func FadeSteps(from, to lights.Color, steps int) []lights.Color {
	if steps < 1 {
		steps = 1
	}

	out := make([]lights.Color, 0, steps)
	for step := 1; step <= steps; step++ {
		progress := float64(step) / float64(steps)
		out = append(out, Interpolate(from, to, progress))
	}
	return out
}

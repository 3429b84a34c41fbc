// Package joystick maps drags on a circular on-screen stick to normalized drive commands.
package joystick

import (
	"fmt"
	"math"
)

// DefaultMaxRadius is the stick travel in pixels used when none is configured.
const DefaultMaxRadius = 50.0

// Point is a screen-space position in pixels.
type Point struct {
	X float64
	Y float64
}

// Rect is a widget bounding box in screen space.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Center returns the middle of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.Left + r.Width/2, Y: r.Top + r.Height/2}
}

// Command is the normalized deflection sent to the car, both axes in [-1, 1].
// Y is positive when the stick is pushed up.
type Command struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// String formats the command the way the readout shows it.
func (c Command) String() string {
	return fmt.Sprintf("X: %.2f | Y: %.2f", c.X, c.Y)
}

// Clamp scales (dx, dy) down onto the circle of radius maxRadius when it lies
// outside it. Vectors already inside the circle are returned unchanged.
func Clamp(dx, dy, maxRadius float64) (float64, float64) {
	distance := math.Hypot(dx, dy)
	if distance > maxRadius {
		dx = dx / distance * maxRadius
		dy = dy / distance * maxRadius
	}
	return dx, dy
}

// Normalize converts a clamped pixel offset into a Command. The vertical axis
// is inverted so that up is positive.
func Normalize(dx, dy, maxRadius float64) Command {
	return Command{
		X: clampUnit(dx / maxRadius),
		Y: clampUnit(-dy / maxRadius),
	}
}

// clampUnit bounds v to [-1, 1]; it only matters for rounding noise after Clamp.
func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Package drive turns joystick commands into wheel speeds for a four-motor car.
package drive

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/frudas24/raspacar/internal/calib"
)

// MotorName identifies one of the four wheels.
type MotorName string

const (
	// FrontLeft is the front left wheel.
	FrontLeft MotorName = "front_left"
	// FrontRight is the front right wheel.
	FrontRight MotorName = "front_right"
	// RearLeft is the rear left wheel.
	RearLeft MotorName = "rear_left"
	// RearRight is the rear right wheel.
	RearRight MotorName = "rear_right"
)

// AllMotors lists every wheel in the order they are updated.
var AllMotors = []MotorName{FrontLeft, RearLeft, FrontRight, RearRight}

// ErrUnknownMotor is returned for a motor name the backend does not drive.
var ErrUnknownMotor = errors.New("unknown motor")

// Driver is what the control channel needs from the car.
type Driver interface {
	Move(x, y float64) error
	Stop() error
}

// Motors is a hardware backend. Throttle is in [-1, 1].
type Motors interface {
	SetThrottle(name MotorName, throttle float64) error
}

// Controller mixes joystick commands into per-wheel speeds.
type Controller struct {
	mu       sync.Mutex
	motors   Motors
	reversed bool
	trim     calib.Calib
	closer   io.Closer
	kind     string
}

var _ Driver = (*Controller)(nil)

// NewController wraps a backend. When reversed is set every speed is negated
// before it reaches the hardware, for motors wired backwards.
func NewController(motors Motors, reversed bool, closer io.Closer) *Controller {
	return &Controller{
		motors:   motors,
		reversed: reversed,
		trim:     calib.Default(),
		closer:   closer,
	}
}

// Kind returns the backend name chosen by New, if any.
func (c *Controller) Kind() string {
	return c.kind
}

// SetCalib replaces the trim applied after mixing.
func (c *Controller) SetCalib(t calib.Calib) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trim = t
}

// Calib returns the active trim.
func (c *Controller) Calib() calib.Calib {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trim
}

// Mix converts x (right positive) and y (forward positive), both in [-1, 1],
// into left and right wheel speeds in [-100, 100] using differential steering.
func Mix(x, y float64) (left, right float64) {
	forward := y * 100
	turn := x * -100
	left = clampSpeed(forward - turn)
	right = clampSpeed(forward + turn)
	return left, right
}

// Move drives the car from a joystick command.
func (c *Controller) Move(x, y float64) error {
	left, right := Mix(x, y)
	left, right = c.Calib().Apply(left, right)

	var errs []error
	for _, name := range AllMotors {
		speed := right
		if name == FrontLeft || name == RearLeft {
			speed = left
		}
		if err := c.SetMotor(name, speed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetMotor sets a single wheel speed in [-100, 100].
func (c *Controller) SetMotor(name MotorName, speed float64) error {
	if !knownMotor(name) {
		return fmt.Errorf("%w %q", ErrUnknownMotor, name)
	}
	if c.reversed {
		speed = -speed
	}
	speed = clampSpeed(speed)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.motors.SetThrottle(name, speed/100); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// Stop sets every wheel to zero.
func (c *Controller) Stop() error {
	var errs []error
	for _, name := range AllMotors {
		if err := c.SetMotor(name, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the motors and releases the hardware.
func (c *Controller) Close() error {
	err := c.Stop()
	if c.closer != nil {
		err = errors.Join(err, c.closer.Close())
	}
	return err
}

func knownMotor(name MotorName) bool {
	for _, m := range AllMotors {
		if m == name {
			return true
		}
	}
	return false
}

func clampSpeed(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}

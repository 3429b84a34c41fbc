// Package drive turns joystick commands into wheel speeds for a four-motor car.
package drive

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
)

// Backend kinds accepted by New.
const (
	KindMotorHAT = "motor_hat"
	KindPWMHat   = "pwm_hat"
	KindAuto     = "auto"
	KindNone     = "none"
)

// Default I2C addresses for the supported boards.
const (
	DefaultMotorHATAddr uint16 = 0x60
	DefaultPWMHatAddr   uint16 = 0x40
)

// OpenFunc opens a PWM chip; tests replace it.
type OpenFunc func(bus string, addr uint16) (PWM, io.Closer, error)

// Options selects and configures the motor backend.
type Options struct {
	Kind     string
	I2CBus   string
	I2CAddr  uint16
	Reversed bool
	Quiet    bool
	Open     OpenFunc
}

// New builds a Controller for the requested backend. "auto" tries the Motor
// HAT, then the PWM HAT, and finally runs without motor control.
func New(opts Options) (*Controller, error) {
	if opts.Open == nil {
		opts.Open = OpenPCA9685
	}
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	if kind == "" {
		kind = KindMotorHAT
	}

	switch kind {
	case KindMotorHAT, KindPWMHat:
		return newHardware(kind, opts)
	case KindNone:
		return newNone(opts), nil
	case KindAuto:
		c, err := newHardware(KindMotorHAT, opts)
		if err == nil {
			return c, nil
		}
		log.Printf("motors: motor hat not found (%v), trying pwm hat", err)
		c, err = newHardware(KindPWMHat, opts)
		if err == nil {
			return c, nil
		}
		log.Printf("motors: pwm hat not found (%v), running without motor control", err)
		return newNone(opts), nil
	default:
		return nil, fmt.Errorf("unknown motor driver %q", opts.Kind)
	}
}

// newHardware opens the PCA9685 and wraps it in the backend for kind.
func newHardware(kind string, opts Options) (*Controller, error) {
	addr := opts.I2CAddr
	if addr == 0 {
		addr = DefaultMotorHATAddr
		if kind == KindPWMHat {
			addr = DefaultPWMHatAddr
		}
	}
	pwm, closer, err := opts.Open(opts.I2CBus, addr)
	if err != nil {
		return nil, err
	}

	var motors Motors
	if kind == KindPWMHat {
		motors, err = NewPWMHat(pwm)
	} else {
		motors, err = NewMotorHAT(pwm)
	}
	if err != nil {
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}
		return nil, err
	}

	c := NewController(motors, opts.Reversed, closer)
	c.kind = kind
	log.Printf("motors: using %s at 0x%02x", kind, addr)
	return c, nil
}

func newNone(opts Options) *Controller {
	c := NewController(NewLogMotors(opts.Quiet), opts.Reversed, nil)
	c.kind = KindNone
	return c
}

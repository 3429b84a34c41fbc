// Package drive turns joystick commands into wheel speeds for a four-motor car.
package drive

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// PCA9685 register values: bit 12 of the ON or OFF count forces the output
// fully on or fully off.
const (
	pcaFull     gpio.Duty = 0x1000
	pcaMaxCount           = 4095

	motorHATFreq = 1600 * physic.Hertz
	servoFreq    = 50 * physic.Hertz

	servoPeriodUs   = 20000.0
	servoMinPulseUs = 750.0
	servoMaxPulseUs = 2250.0
)

// PWM is the subset of a PCA9685 the backends need.
type PWM interface {
	SetPwm(channel int, on, off gpio.Duty) error
	SetPwmFreq(freq physic.Frequency) error
}

// hBridge holds the PCA9685 channels wired to one TB6612 motor driver.
type hBridge struct {
	pwm int
	in1 int
	in2 int
}

// motorHATChannels follows the Adafruit Motor HAT layout (M1..M4) and the car's wiring:
// M1 front right, M2 rear right, M3 front left, M4 rear left.
var motorHATChannels = map[MotorName]hBridge{
	FrontRight: {pwm: 8, in1: 9, in2: 10},
	RearRight:  {pwm: 13, in1: 11, in2: 12},
	FrontLeft:  {pwm: 2, in1: 3, in2: 4},
	RearLeft:   {pwm: 7, in1: 5, in2: 6},
}

// MotorHAT drives DC motors through the TB6612 bridges on an Adafruit Motor HAT.
type MotorHAT struct {
	pwm PWM
}

// NewMotorHAT configures the PCA9685 for motor PWM.
func NewMotorHAT(pwm PWM) (*MotorHAT, error) {
	if err := pwm.SetPwmFreq(motorHATFreq); err != nil {
		return nil, fmt.Errorf("motor hat: set frequency: %w", err)
	}
	return &MotorHAT{pwm: pwm}, nil
}

// SetThrottle sets direction pins and duty for one motor. Zero brakes.
func (h *MotorHAT) SetThrottle(name MotorName, throttle float64) error {
	ch, ok := motorHATChannels[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownMotor, name)
	}
	throttle = clampUnit(throttle)

	in1, in2 := false, false
	switch {
	case throttle > 0:
		in1 = true
	case throttle < 0:
		in2 = true
	default:
		in1, in2 = true, true
	}
	if err := setLevel(h.pwm, ch.in1, in1); err != nil {
		return err
	}
	if err := setLevel(h.pwm, ch.in2, in2); err != nil {
		return err
	}
	return setDuty(h.pwm, ch.pwm, math.Abs(throttle))
}

// servoPair holds the two channels an external driver needs per motor.
type servoPair struct {
	pwm int
	dir int
}

var pwmHatChannels = map[MotorName]servoPair{
	FrontLeft:  {pwm: 0, dir: 1},
	FrontRight: {pwm: 2, dir: 3},
	RearLeft:   {pwm: 4, dir: 5},
	RearRight:  {pwm: 6, dir: 7},
}

// PWMHat drives external motor drivers from a 16-channel PCA9685 servo HAT,
// treating each channel as a continuous servo signal.
type PWMHat struct {
	pwm PWM
}

// NewPWMHat configures the PCA9685 for 50 Hz servo pulses.
func NewPWMHat(pwm PWM) (*PWMHat, error) {
	if err := pwm.SetPwmFreq(servoFreq); err != nil {
		return nil, fmt.Errorf("pwm hat: set frequency: %w", err)
	}
	return &PWMHat{pwm: pwm}, nil
}

// SetThrottle drives the speed channel with |throttle| and the direction channel with its sign.
func (h *PWMHat) SetThrottle(name MotorName, throttle float64) error {
	ch, ok := pwmHatChannels[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownMotor, name)
	}
	throttle = clampUnit(throttle)

	speed, dir := 0.0, 0.0
	switch {
	case throttle > 0:
		speed, dir = throttle, 1
	case throttle < 0:
		speed, dir = -throttle, -1
	}
	if err := h.pwm.SetPwm(ch.pwm, 0, servoCount(speed)); err != nil {
		return err
	}
	return h.pwm.SetPwm(ch.dir, 0, servoCount(dir))
}

// servoCount converts a continuous-servo throttle into a PCA9685 off count.
func servoCount(throttle float64) gpio.Duty {
	pulse := servoMinPulseUs + (clampUnit(throttle)+1)/2*(servoMaxPulseUs-servoMinPulseUs)
	return gpio.Duty(math.Round(pulse / servoPeriodUs * (pcaMaxCount + 1)))
}

// setLevel drives a channel fully on or fully off.
func setLevel(pwm PWM, channel int, high bool) error {
	if high {
		return pwm.SetPwm(channel, pcaFull, 0)
	}
	return pwm.SetPwm(channel, 0, pcaFull)
}

// setDuty drives a channel with a duty cycle in [0, 1].
func setDuty(pwm PWM, channel int, duty float64) error {
	switch {
	case duty >= 1:
		return setLevel(pwm, channel, true)
	case duty <= 0:
		return setLevel(pwm, channel, false)
	}
	return pwm.SetPwm(channel, 0, gpio.Duty(math.Round(duty*pcaMaxCount)))
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

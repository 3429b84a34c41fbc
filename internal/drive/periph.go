// Package drive turns joystick commands into wheel speeds for a four-motor car.
package drive

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"
)

// ErrNoHardware is returned when the I2C bus or PWM chip cannot be opened.
var ErrNoHardware = errors.New("motor hardware not available")

// OpenPCA9685 opens an I2C bus (empty name picks the first one) and the
// PCA9685 at addr. The returned closer releases the bus.
func OpenPCA9685(busName string, addr uint16) (PWM, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("%w: periph init: %v", ErrNoHardware, err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open i2c bus %q: %v", ErrNoHardware, busName, err)
	}
	dev, err := pca9685.NewI2C(bus, addr)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("%w: pca9685 at 0x%02x: %v", ErrNoHardware, addr, err)
	}
	return dev, bus, nil
}

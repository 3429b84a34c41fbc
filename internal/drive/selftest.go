// Package drive turns joystick commands into wheel speeds for a four-motor car.
package drive

import (
	"context"
	"errors"
	"log"
	"time"
)

// SelfTestStep is one manoeuvre of the motor self test.
type SelfTestStep struct {
	Name string
	X    float64
	Y    float64
}

// SelfTestSteps is the sequence run by SelfTest.
var SelfTestSteps = []SelfTestStep{
	{Name: "forward", X: 0, Y: 0.8},
	{Name: "backward", X: 0, Y: -0.8},
	{Name: "left turn", X: -0.8, Y: 0.8},
	{Name: "right turn", X: 0.8, Y: 0.8},
}

// SelfTest runs each step for hold, then stops. The motors are stopped even
// when ctx is cancelled part way.
func SelfTest(ctx context.Context, d Driver, hold time.Duration) (err error) {
	defer func() {
		err = errors.Join(err, d.Stop())
	}()

	for i, step := range SelfTestSteps {
		log.Printf("selftest: %d. %s", i+1, step.Name)
		if err := d.Move(step.X, step.Y); err != nil {
			return err
		}
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	log.Printf("selftest: stopping")
	return nil
}

package drive

import (
	"errors"
	"testing"

	"github.com/frudas24/raspacar/internal/calib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMotors struct {
	set map[MotorName]float64
	err error
}

func newRecordingMotors() *recordingMotors {
	return &recordingMotors{set: make(map[MotorName]float64)}
}

func (r *recordingMotors) SetThrottle(name MotorName, throttle float64) error {
	if r.err != nil {
		return r.err
	}
	r.set[name] = throttle
	return nil
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error {
	c.n++
	return nil
}

// TestMix covers straight, turning and saturated inputs.
func TestMix(t *testing.T) {
	cases := []struct {
		name        string
		x, y        float64
		left, right float64
	}{
		{"idle", 0, 0, 0, 0},
		{"forward", 0, 0.8, 80, 80},
		{"backward", 0, -0.8, -80, -80},
		{"spin right", 1, 0, 100, -100},
		{"spin left", -1, 0, -100, 100},
		{"forward left saturates", -0.8, 0.8, 0, 100},
		{"forward right saturates", 0.8, 0.8, 100, 0},
		{"full diagonal", 1, 1, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			left, right := Mix(tc.x, tc.y)
			assert.InDelta(t, tc.left, left, 1e-9)
			assert.InDelta(t, tc.right, right, 1e-9)
		})
	}
}

// TestMove_ReversedWiring verifies speeds are negated and sent to the right wheels.
func TestMove_ReversedWiring(t *testing.T) {
	motors := newRecordingMotors()
	c := NewController(motors, true, nil)

	require.NoError(t, c.Move(0.5, 0.5))

	assert.InDelta(t, -1.0, motors.set[FrontLeft], 1e-9)
	assert.InDelta(t, -1.0, motors.set[RearLeft], 1e-9)
	assert.InDelta(t, 0.0, motors.set[FrontRight], 1e-9)
	assert.InDelta(t, 0.0, motors.set[RearRight], 1e-9)
}

// TestMove_NotReversed verifies throttles keep their sign when wiring is straight.
func TestMove_NotReversed(t *testing.T) {
	motors := newRecordingMotors()
	c := NewController(motors, false, nil)

	require.NoError(t, c.Move(0, 0.25))

	for _, name := range AllMotors {
		assert.InDelta(t, 0.25, motors.set[name], 1e-9, string(name))
	}
}

// TestMove_AppliesCalib verifies trim gains are applied after mixing.
func TestMove_AppliesCalib(t *testing.T) {
	motors := newRecordingMotors()
	c := NewController(motors, false, nil)
	c.SetCalib(calib.Calib{LeftGain: 0.5, RightGain: 1})

	require.NoError(t, c.Move(0, 1))

	assert.InDelta(t, 0.5, motors.set[FrontLeft], 1e-9)
	assert.InDelta(t, 1.0, motors.set[FrontRight], 1e-9)
}

// TestSetMotor_ClampsAndRejectsUnknown verifies range clamping and unknown names.
func TestSetMotor_ClampsAndRejectsUnknown(t *testing.T) {
	motors := newRecordingMotors()
	c := NewController(motors, false, nil)

	require.NoError(t, c.SetMotor(FrontLeft, 250))
	assert.Equal(t, 1.0, motors.set[FrontLeft])

	err := c.SetMotor("middle", 10)
	require.ErrorIs(t, err, ErrUnknownMotor)
}

// TestStop_ZeroesAllWheels verifies Stop sets every wheel to zero.
func TestStop_ZeroesAllWheels(t *testing.T) {
	motors := newRecordingMotors()
	c := NewController(motors, true, nil)
	require.NoError(t, c.Move(0, 1))

	require.NoError(t, c.Stop())

	for _, name := range AllMotors {
		assert.Zero(t, motors.set[name], string(name))
	}
}

// TestMove_JoinsBackendErrors verifies backend failures surface.
func TestMove_JoinsBackendErrors(t *testing.T) {
	boom := errors.New("i2c write failed")
	motors := newRecordingMotors()
	motors.err = boom
	c := NewController(motors, false, nil)

	require.ErrorIs(t, c.Move(0, 1), boom)
}

// TestClose_StopsAndReleases verifies Close stops motors and closes the bus once.
func TestClose_StopsAndReleases(t *testing.T) {
	motors := newRecordingMotors()
	closer := &closeCounter{}
	c := NewController(motors, false, closer)

	require.NoError(t, c.Close())

	assert.Equal(t, 1, closer.n)
	assert.Len(t, motors.set, len(AllMotors))
}

// Package calib stores per-side drive trim for cars whose motors do not match.
package calib

// Calib scales each side after mixing and ignores tiny speeds that only make
// the motors whine. Gains are in [0, 1]; Deadzone is a fraction of full speed.
type Calib struct {
	LeftGain  float64 `json:"leftGain"`
	RightGain float64 `json:"rightGain"`
	Deadzone  float64 `json:"deadzone"`
}

// Default returns neutral trim.
func Default() Calib {
	return Calib{LeftGain: 1, RightGain: 1}
}

// Normalize returns c with values pulled into their valid ranges. A zero gain
// is treated as unset and becomes 1.
func Normalize(c Calib) Calib {
	c.LeftGain = normalizeGain(c.LeftGain)
	c.RightGain = normalizeGain(c.RightGain)
	if c.Deadzone < 0 {
		c.Deadzone = 0
	}
	if c.Deadzone > 1 {
		c.Deadzone = 1
	}
	return c
}

// Apply trims left and right speeds in [-100, 100].
func (c Calib) Apply(left, right float64) (float64, float64) {
	c = Normalize(c)
	return c.trim(left, c.LeftGain), c.trim(right, c.RightGain)
}

func (c Calib) trim(speed, gain float64) float64 {
	if speed < c.Deadzone*100 && speed > -c.Deadzone*100 {
		return 0
	}
	speed *= gain
	if speed > 100 {
		return 100
	}
	if speed < -100 {
		return -100
	}
	return speed
}

func normalizeGain(g float64) float64 {
	if g <= 0 {
		return 1
	}
	if g > 1 {
		return 1
	}
	return g
}

// Package drive turns joystick commands into wheel speeds for a four-motor car.
package drive

import (
	"log"
	"sync"
)

// LogMotors is the backend used when no motor hardware is present. It keeps
// the last throttle per wheel and logs changes.
type LogMotors struct {
	mu    sync.Mutex
	last  map[MotorName]float64
	quiet bool
}

// NewLogMotors returns a hardware-free backend. Quiet suppresses the change log.
func NewLogMotors(quiet bool) *LogMotors {
	return &LogMotors{last: make(map[MotorName]float64), quiet: quiet}
}

// SetThrottle records the throttle.
func (l *LogMotors) SetThrottle(name MotorName, throttle float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, seen := l.last[name]
	l.last[name] = throttle
	if !l.quiet && (!seen || prev != throttle) {
		log.Printf("motors: %s=%.2f (no hardware)", name, throttle)
	}
	return nil
}

// Throttle returns the last throttle set for a wheel.
func (l *LogMotors) Throttle(name MotorName) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last[name]
}

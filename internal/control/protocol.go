// Package control receives joystick commands over a websocket and drives the car.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/frudas24/raspacar/internal/joystick"
)

// TypeStop asks the server to stop every motor.
const TypeStop = "stop"

// TypeMove carries a joystick command. It is also assumed when t is absent.
const TypeMove = "move"

// ErrInvalidCommand reports a frame that could not be turned into a command.
var ErrInvalidCommand = errors.New("invalid command")

// Message is a control websocket payload. Axis values stay raw so numbers
// and numeric strings can both be accepted.
type Message struct {
	T string          `json:"t,omitempty"`
	X json.RawMessage `json:"x,omitempty"`
	Y json.RawMessage `json:"y,omitempty"`
}

// Frame is a decoded control message.
type Frame struct {
	Stop    bool
	Command joystick.Command
}

// Decode parses a text frame. Missing axes default to 0 and values are
// clamped to [-1, 1].
func Decode(data []byte) (Frame, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	switch msg.T {
	case TypeStop:
		return Frame{Stop: true}, nil
	case "", TypeMove:
	default:
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, msg.T)
	}
	x, err := parseAxis(msg.X)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: x: %v", ErrInvalidCommand, err)
	}
	y, err := parseAxis(msg.Y)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: y: %v", ErrInvalidCommand, err)
	}
	return Frame{Command: joystick.Command{X: clampAxis(x), Y: clampAxis(y)}}, nil
}

// parseAxis accepts a JSON number, a numeric string, or nothing.
func parseAxis(raw json.RawMessage) (float64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("not a number: %s", text)
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %s", text)
	}
	return v, nil
}

// clampAxis bounds a command component to [-1, 1].
func clampAxis(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// Package joystick maps drags on a circular on-screen stick to normalized drive commands.
package joystick

import "errors"

// BoundsFunc reports the widget's current bounding box.
type BoundsFunc func() Rect

// Sender delivers commands to the car.
type Sender interface {
	// Open reports whether the transport can accept a message right now.
	Open() bool
	Send(cmd Command) error
}

// Indicator positions the visual stick relative to the widget centre.
type Indicator interface {
	MoveStick(dx, dy float64)
}

// Readout displays the last command that was actually sent.
type Readout interface {
	ShowCommand(cmd Command)
}

// Options configures a Mapper.
type Options struct {
	MaxRadius float64
	Bounds    BoundsFunc
	Sender    Sender
	Indicator Indicator
	Readout   Readout
}

// Mapper turns pointer positions into commands. It is driven from a single
// event loop and is not safe for concurrent use.
type Mapper struct {
	maxRadius float64
	bounds    BoundsFunc
	sender    Sender
	indicator Indicator
	readout   Readout
	dragging  bool
}

// New returns a Mapper. Bounds and Sender are required; a non-positive
// MaxRadius falls back to DefaultMaxRadius.
func New(opts Options) (*Mapper, error) {
	if opts.Bounds == nil {
		return nil, errors.New("joystick: bounds provider is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("joystick: sender is required")
	}
	radius := opts.MaxRadius
	if radius <= 0 {
		radius = DefaultMaxRadius
	}
	return &Mapper{
		maxRadius: radius,
		bounds:    opts.Bounds,
		sender:    opts.Sender,
		indicator: opts.Indicator,
		readout:   opts.Readout,
	}, nil
}

// MaxRadius returns the stick travel in pixels.
func (m *Mapper) MaxRadius() float64 {
	return m.maxRadius
}

// Dragging reports whether a drag is in progress.
func (m *Mapper) Dragging() bool {
	return m.dragging
}

// BeginDrag starts a drag at the pointer position and emits the first command.
func (m *Mapper) BeginDrag(x, y float64) {
	m.dragging = true
	m.update(x, y)
}

// UpdateDrag emits a command for the new pointer position. It does nothing
// when no drag is active.
func (m *Mapper) UpdateDrag(x, y float64) {
	if !m.dragging {
		return
	}
	m.update(x, y)
}

// EndDrag stops the drag, recentres the stick and emits (0, 0).
func (m *Mapper) EndDrag() {
	m.dragging = false
	if m.indicator != nil {
		m.indicator.MoveStick(0, 0)
	}
	m.emit(Command{})
}

// update clamps the pointer offset from the widget centre and emits it.
// The bounding box is read on every call so layout shifts mid-drag are honoured.
func (m *Mapper) update(x, y float64) {
	origin := m.bounds().Center()
	dx, dy := Clamp(x-origin.X, y-origin.Y, m.maxRadius)
	if m.indicator != nil {
		m.indicator.MoveStick(dx, dy)
	}
	m.emit(Normalize(dx, dy, m.maxRadius))
}

// emit sends cmd when the transport is open; otherwise the command is dropped.
func (m *Mapper) emit(cmd Command) bool {
	if !m.sender.Open() {
		return false
	}
	if err := m.sender.Send(cmd); err != nil {
		return false
	}
	if m.readout != nil {
		m.readout.ShowCommand(cmd)
	}
	return true
}

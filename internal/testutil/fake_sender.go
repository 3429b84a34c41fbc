package testutil

import "github.com/frudas24/raspacar/internal/joystick"

// FakeSender implements joystick.Sender and records sent commands.
type FakeSender struct {
	Closed bool
	Sent   []joystick.Command
}

var _ joystick.Sender = (*FakeSender)(nil)

// Open reports whether the fake transport is open.
func (f *FakeSender) Open() bool {
	return !f.Closed
}

// Send records the command.
func (f *FakeSender) Send(cmd joystick.Command) error {
	f.Sent = append(f.Sent, cmd)
	return nil
}

// Last returns the most recent command, or the zero command when nothing was sent.
func (f *FakeSender) Last() joystick.Command {
	if len(f.Sent) == 0 {
		return joystick.Command{}
	}
	return f.Sent[len(f.Sent)-1]
}

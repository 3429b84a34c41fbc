package joystick

// ConnState is the transport status shown next to the stick.
type ConnState int32

const (
	// Disconnected means commands are being dropped.
	Disconnected ConnState = iota
	// Connected means the transport accepts commands.
	Connected
)

// String returns the label shown to the user.
func (s ConnState) String() string {
	if s == Connected {
		return "Connected"
	}
	return "Disconnected"
}

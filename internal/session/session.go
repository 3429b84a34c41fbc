// Package session holds runtime state for the car's single operator.
package session

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/frudas24/raspacar/internal/joystick"
	"golang.org/x/crypto/bcrypt"
)

// VideoWebRTC streams the camera as H264 over WebRTC.
const VideoWebRTC = "webrtc"

// VideoMJPEG streams the camera as multipart JPEG.
const VideoMJPEG = "mjpeg"

// VideoOff disables the camera.
const VideoOff = "off"

// Snapshot represents a read-only view of the current session state.
type Snapshot struct {
	Authenticated   bool
	PasswordMode    bool
	DriveEnabled    bool
	DriverConnected bool
	VideoMode       string
	LastCommand     joystick.Command
	LastCommandAt   time.Time
	StartedAt       time.Time
}

// Session holds runtime state for the active operator.
type Session struct {
	mu              sync.RWMutex
	password        string
	authenticated   bool
	driveEnabled    bool
	driverConnected bool
	videoMode       string
	lastCommand     joystick.Command
	lastCommandAt   time.Time
	startedAt       time.Time
	now             func() time.Time
}

// New returns an initialized session. An empty password disables
// authentication, matching an open access point setup.
func New(password string) *Session {
	s := &Session{
		password:     strings.TrimSpace(password),
		driveEnabled: true,
		videoMode:    VideoMJPEG,
		now:          time.Now,
	}
	s.startedAt = s.now()
	return s
}

// SetNowFunc overrides the clock.
func (s *Session) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
	s.startedAt = fn()
}

// PasswordMode reports whether a password is required.
func (s *Session) PasswordMode() bool {
	return s.password != ""
}

// Authenticate validates the password and marks the session as authenticated.
// The configured password may be a bcrypt hash.
func (s *Session) Authenticate(pass string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.password == "" {
		s.authenticated = true
		return true
	}
	s.authenticated = pass != "" && matchPassword(s.password, pass)
	return s.authenticated
}

// Logout clears authentication state.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
}

// IsAuthenticated reports whether requests may drive the car.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password == "" || s.authenticated
}

// SetDriveEnabled toggles whether commands reach the motors.
func (s *Session) SetDriveEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driveEnabled = enabled
}

// DriveEnabled reports whether commands reach the motors.
func (s *Session) DriveEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.driveEnabled
}

// SetDriverConnected records whether a control socket is attached.
func (s *Session) SetDriverConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driverConnected = connected
	if !connected {
		s.lastCommand = joystick.Command{}
	}
}

// RecordCommand stores the most recent command received from the driver.
func (s *Session) RecordCommand(cmd joystick.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommand = cmd
	s.lastCommandAt = s.now()
}

// LastCommand returns the most recent command.
func (s *Session) LastCommand() joystick.Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCommand
}

// SetVideoMode sets which video pipeline the server should run.
func (s *Session) SetVideoMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoMode = NormalizeVideoMode(mode)
}

// VideoMode returns the active video pipeline mode.
func (s *Session) VideoMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.videoMode
}

// Uptime returns how long the session has existed.
func (s *Session) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().Sub(s.startedAt)
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Authenticated:   s.password == "" || s.authenticated,
		PasswordMode:    s.password != "",
		DriveEnabled:    s.driveEnabled,
		DriverConnected: s.driverConnected,
		VideoMode:       s.videoMode,
		LastCommand:     s.lastCommand,
		LastCommandAt:   s.lastCommandAt,
		StartedAt:       s.startedAt,
	}
}

// NormalizeVideoMode maps user input onto a supported video mode.
func NormalizeVideoMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case VideoWebRTC:
		return VideoWebRTC
	case VideoOff, "none", "disabled":
		return VideoOff
	default:
		return VideoMJPEG
	}
}

// matchPassword compares against a bcrypt hash or a plain secret.
func matchPassword(stored, given string) bool {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

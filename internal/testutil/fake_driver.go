package testutil

import (
	"sync"

	"github.com/frudas24/raspacar/internal/drive"
)

// DriveCall records a single driver invocation.
type DriveCall struct {
	Name string
	X    float64
	Y    float64
}

// FakeDriver implements drive.Driver and records calls for tests.
type FakeDriver struct {
	mu    sync.Mutex
	Calls []DriveCall
	Err   error
}

// Ensure FakeDriver implements the interface.
var _ drive.Driver = (*FakeDriver)(nil)

// Move records a move.
func (f *FakeDriver) Move(x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, DriveCall{Name: "Move", X: x, Y: y})
	return f.Err
}

// Stop records a stop.
func (f *FakeDriver) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, DriveCall{Name: "Stop"})
	return nil
}

// Snapshot returns a copy of the recorded calls.
func (f *FakeDriver) Snapshot() []DriveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DriveCall(nil), f.Calls...)
}

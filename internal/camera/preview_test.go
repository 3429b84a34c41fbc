package camera

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/frudas24/raspacar/internal/mjpeg"
)

// fakeFFmpeg writes a script that counts its launches in a file and prints
// two JPEG frames before exiting.
func fakeFFmpeg(t *testing.T, frame []byte) (script, launches string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for ffmpeg")
	}
	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(framePath, frame, 0o600); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	launches = filepath.Join(dir, "launches")
	script = filepath.Join(dir, "ffmpeg")
	body := fmt.Sprintf("#!/bin/sh\necho run >> '%s'\ncat '%s' '%s'\n", launches, framePath, framePath)
	if err := os.WriteFile(script, []byte(body), 0o700); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return script, launches
}

// launchCount returns how many times the fake ffmpeg ran.
func launchCount(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return bytes.Count(data, []byte("run\n"))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestPreview_PublishesFramesAndRestarts runs the pipeline against a fake
// ffmpeg that exits after two frames.
func TestPreview_PublishesFramesAndRestarts(t *testing.T) {
	frame := mjpeg.Placeholder(16, 16, 60)
	script, launches := fakeFFmpeg(t, frame)

	stream := mjpeg.NewStream(0)
	p := NewPreview(stream)
	p.backoff = 20 * time.Millisecond

	if err := p.Start(Options{FFmpegPath: script, InputFormat: "lavfi", Device: "testsrc"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = p.Stop() })

	waitFor(t, "a restart", func() bool { return launchCount(launches) >= 2 })
	waitFor(t, "frames from both runs", func() bool { return stream.Stats().Frames >= 4 })
	if !bytes.Equal(stream.Last(), frame) {
		t.Fatalf("expected last frame to match the fake output")
	}
}

// TestPreview_StopEndsRestarts checks no ffmpeg is launched after Stop.
func TestPreview_StopEndsRestarts(t *testing.T) {
	script, launches := fakeFFmpeg(t, mjpeg.Placeholder(8, 8, 60))

	p := NewPreview(mjpeg.NewStream(0))
	p.backoff = 20 * time.Millisecond
	if err := p.Start(Options{FFmpegPath: script, InputFormat: "lavfi", Device: "testsrc"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "first launch", func() bool { return launchCount(launches) >= 1 })

	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.Running() {
		t.Fatalf("expected preview stopped")
	}
	// Let any restart that was already past its generation check finish.
	time.Sleep(50 * time.Millisecond)
	after := launchCount(launches)
	time.Sleep(10 * p.backoff)
	if got := launchCount(launches); got != after {
		t.Fatalf("expected no launches after stop, got %d more", got-after)
	}
}

// TestPreview_StartWithoutStream rejects a preview with no stream.
func TestPreview_StartWithoutStream(t *testing.T) {
	if err := NewPreview(nil).Start(Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

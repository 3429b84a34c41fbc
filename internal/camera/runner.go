package camera

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// earlyExitWindow is how long a freshly started encoder must survive before
// it is trusted.
const earlyExitWindow = 700 * time.Millisecond

// Runner manages the ffmpeg RTP process for the WebRTC pipeline.
type Runner struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	waitCh  chan error
	encoder string
}

// NewRunner returns a new Runner instance.
func NewRunner() *Runner {
	return &Runner{}
}

// Start launches ffmpeg sending RTP to a freshly allocated local port and
// returns that port. The hardware encoder is tried first.
func (r *Runner) Start(opts Options) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.stopLocked(); err != nil {
		return 0, err
	}
	opts = opts.withDefaults()

	port, err := allocatePort()
	if err != nil {
		return 0, err
	}
	cmd, waitCh, encoder, err := startWithFallback(opts, port, []string{EncoderV4L2M2M, EncoderX264})
	if err != nil {
		return 0, err
	}
	r.cmd = cmd
	r.waitCh = waitCh
	r.encoder = encoder
	log.Printf("camera: rtp on 127.0.0.1:%d using %s", port, encoder)
	return port, nil
}

// Encoder returns the encoder of the running process.
func (r *Runner) Encoder() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.encoder
}

// Stop terminates any running ffmpeg process.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

// stopLocked stops the current ffmpeg process without acquiring the lock.
func (r *Runner) stopLocked() error {
	if r.cmd == nil || r.cmd.Process == nil {
		return nil
	}
	if err := r.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	if r.waitCh != nil {
		<-r.waitCh
	}
	r.cmd = nil
	r.waitCh = nil
	r.encoder = ""
	return nil
}

// startCmd launches ffmpeg with the provided args.
func startCmd(path string, args []string) (*exec.Cmd, chan error, error) {
	cmd := exec.Command(path, args...)
	configureCmd(cmd)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()
	return cmd, waitCh, nil
}

// startWithFallback tries each encoder until one survives the early exit window.
func startWithFallback(opts Options, port int, encoders []string) (*exec.Cmd, chan error, string, error) {
	var lastErr error
	for _, encoder := range encoders {
		args := append([]string{"-hide_banner", "-loglevel", "error"}, BuildRTPArgs(opts, port, encoder)...)
		cmd, waitCh, err := startCmd(opts.FFmpegPath, args)
		if err != nil {
			return nil, nil, "", err
		}
		exited, exitErr := waitForExit(waitCh, earlyExitWindow)
		if !exited {
			return cmd, waitCh, encoder, nil
		}
		lastErr = fmt.Errorf("%s exited early: %v", encoder, exitErr)
		log.Printf("camera: %v", lastErr)
	}
	return nil, nil, "", fmt.Errorf("no working h264 encoder (%s): %w", strings.Join(encoders, ", "), lastErr)
}

// waitForExit waits for a process to exit or times out.
func waitForExit(waitCh <-chan error, timeout time.Duration) (bool, error) {
	select {
	case err := <-waitCh:
		return true, err
	case <-time.After(timeout):
		return false, nil
	}
}

// allocatePort reserves a local UDP port and returns it.
func allocatePort() (int, error) {
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return 0, err
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	if err := conn.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

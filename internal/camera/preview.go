package camera

import (
	"errors"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/frudas24/raspacar/internal/mjpeg"
	"github.com/hako/durafmt"
)

const previewRestartBackoff = 2 * time.Second

// Preview runs the MJPEG capture pipeline and publishes frames to a stream,
// restarting ffmpeg whenever it exits.
type Preview struct {
	mu      sync.Mutex
	stream  *mjpeg.Stream
	opts    Options
	cmd     *exec.Cmd
	gen     int
	quit    chan struct{}
	backoff time.Duration
}

// NewPreview returns a preview pipeline bound to the given MJPEG stream.
func NewPreview(stream *mjpeg.Stream) *Preview {
	return &Preview{
		stream:  stream,
		backoff: previewRestartBackoff,
	}
}

// Start launches ffmpeg, replacing any running pipeline.
func (p *Preview) Start(opts Options) error {
	if p.stream == nil {
		return errors.New("camera: preview has no stream")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	p.opts = opts.withDefaults()
	p.gen++
	p.quit = make(chan struct{})
	cmd, stdout, err := p.launchLocked()
	if err != nil {
		return err
	}
	go p.loop(p.gen, p.quit, cmd, stdout)
	return nil
}

// Stop terminates the pipeline.
func (p *Preview) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// Running reports whether an ffmpeg process is attached.
func (p *Preview) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// stopLocked invalidates the current loop and kills ffmpeg.
func (p *Preview) stopLocked() {
	if p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
	p.gen++
	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Printf("camera: kill preview: %v", err)
		}
	}
	p.cmd = nil
}

// launchLocked starts ffmpeg with stdout piped back to us.
func (p *Preview) launchLocked() (*exec.Cmd, io.Reader, error) {
	args := append([]string{"-hide_banner", "-loglevel", "error"}, BuildMJPEGArgs(p.opts)...)
	log.Printf("camera: preview %s %s", p.opts.FFmpegPath, strings.Join(args, " "))
	cmd := exec.Command(p.opts.FFmpegPath, args...)
	configureCmd(cmd)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	p.cmd = cmd
	return cmd, stdout, nil
}

// loop splits ffmpeg output into frames and restarts ffmpeg after it exits.
func (p *Preview) loop(gen int, quit <-chan struct{}, cmd *exec.Cmd, stdout io.Reader) {
	for {
		if cmd != nil {
			started := time.Now()
			split := mjpeg.NewSplitter(p.stream.Publish)
			n, copyErr := io.Copy(split, stdout)
			waitErr := cmd.Wait()
			if !p.current(gen) {
				return
			}
			err := waitErr
			if err == nil {
				err = copyErr
			}
			log.Printf("camera: preview exited after %s, %s read: %v (restart in %s)",
				durafmt.Parse(time.Since(started)).LimitFirstN(2),
				humanize.Bytes(uint64(n)), err, p.backoff)
		}

		select {
		case <-quit:
			return
		case <-time.After(p.backoff):
		}

		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		var (
			out io.Reader
			err error
		)
		cmd, out, err = p.launchLocked()
		p.mu.Unlock()
		if err != nil {
			log.Printf("camera: preview restart: %v", err)
			cmd = nil
			continue
		}
		stdout = out
	}
}

// current reports whether gen is still the active pipeline.
func (p *Preview) current(gen int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen
}

// Package app wires HTTP, the control socket, motors and the video pipelines together.
package app

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/frudas24/raspacar/internal/calib"
	"github.com/frudas24/raspacar/internal/camera"
	"github.com/frudas24/raspacar/internal/config"
	"github.com/frudas24/raspacar/internal/control"
	"github.com/frudas24/raspacar/internal/drive"
	"github.com/frudas24/raspacar/internal/mjpeg"
	"github.com/frudas24/raspacar/internal/session"
	"github.com/frudas24/raspacar/internal/signaling"
	"github.com/frudas24/raspacar/internal/webrtc"
)

// Motors is what the app needs from the drive controller.
type Motors interface {
	drive.Driver
	SetCalib(calib.Calib)
	Calib() calib.Calib
}

// Preview runs the MJPEG capture pipeline.
type Preview interface {
	Start(opts camera.Options) error
	Stop() error
}

// RTPSource runs the H264 encoder feeding WebRTC.
type RTPSource interface {
	Start(opts camera.Options) (int, error)
	Stop() error
}

// Deps are the collaborators the app drives.
type Deps struct {
	Session   *session.Session
	Motors    Motors
	Stream    *mjpeg.Stream
	Preview   Preview
	Runner    RTPSource
	Publisher *webrtc.Publisher
}

// mjpegDefaults are the startup MJPEG settings restored by a config reset.
type mjpegDefaults struct {
	intervalMs int
	quality    int
}

// App coordinates the HTTP API, websocket servers, motors and video.
type App struct {
	mu            sync.Mutex
	cfg           config.Config
	defaultMJPEG  mjpegDefaults
	session       *session.Session
	motors        Motors
	previewStream *mjpeg.Stream
	preview       Preview
	runner        RTPSource
	publisher     *webrtc.Publisher
	signaling     *signaling.Server
	control       *control.Server
	placeholder   []byte
}

// New creates the application with its dependencies wired.
func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.Session == nil {
		return nil, errors.New("session is required")
	}
	if deps.Motors == nil {
		return nil, errors.New("motors are required")
	}
	if deps.Stream == nil {
		return nil, errors.New("mjpeg stream is required")
	}

	app := &App{
		cfg: cfg,
		defaultMJPEG: mjpegDefaults{
			intervalMs: cfg.MJPEGIntervalMs,
			quality:    cfg.MJPEGQuality,
		},
		session:       deps.Session,
		motors:        deps.Motors,
		previewStream: deps.Stream,
		preview:       deps.Preview,
		runner:        deps.Runner,
		publisher:     deps.Publisher,
		placeholder:   mjpeg.Placeholder(cfg.CameraWidth, cfg.CameraHeight, cfg.MJPEGQuality),
	}

	policy := control.PolicyReplace
	if cfg.DriverPolicy == "reject" {
		policy = control.PolicyReject
	}
	app.control = control.NewServer(deps.Session, deps.Motors, policy)
	app.control.SetDebugLogging(cfg.Debug)
	if deps.Publisher != nil {
		app.signaling = signaling.NewServer(deps.Publisher, signaling.ViewerReplace, deps.Session.IsAuthenticated)
	}
	return app, nil
}

// Start restores drive calibration and starts the configured video pipeline.
func (a *App) Start() error {
	c, err := calib.Load(a.cfg.CalibPath)
	if err != nil {
		return fmt.Errorf("load calib: %w", err)
	}
	a.motors.SetCalib(c)

	mode := a.cfg.VideoMode
	if !a.cfg.CameraEnabled {
		mode = session.VideoOff
	}
	a.session.SetVideoMode(mode)
	return a.RestartVideo("startup")
}

// SetVideoMode switches the video pipeline.
func (a *App) SetVideoMode(mode string) error {
	a.session.SetVideoMode(mode)
	return a.RestartVideo("mode")
}

// RestartVideo stops both pipelines and starts the one the session selects.
// A failed start leaves the placeholder frame on the MJPEG stream.
func (a *App) RestartVideo(reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopVideoLocked()
	mode := a.session.VideoMode()
	log.Printf("app: video %s (%s)", mode, reason)

	switch mode {
	case session.VideoMJPEG:
		if a.preview == nil {
			a.previewStream.Publish(a.placeholder)
			return errors.New("mjpeg preview not available")
		}
		if err := a.preview.Start(a.cameraOptions()); err != nil {
			a.previewStream.Publish(a.placeholder)
			return fmt.Errorf("start mjpeg: %w", err)
		}
		return nil
	case session.VideoWebRTC:
		a.previewStream.Publish(a.placeholder)
		if a.runner == nil || a.publisher == nil {
			return errors.New("webrtc pipeline not available")
		}
		port, err := a.runner.Start(a.cameraOptions())
		if err != nil {
			return fmt.Errorf("start encoder: %w", err)
		}
		if err := a.publisher.AttachRTP(port); err != nil {
			return err
		}
		if err := a.publisher.StartForwarding(); err != nil {
			return err
		}
		if a.signaling != nil {
			a.signaling.NotifyRestart()
		}
		return nil
	default:
		a.previewStream.Publish(a.placeholder)
		return nil
	}
}

// Stop drops clients, stops video and brings the car to rest.
func (a *App) Stop() error {
	a.control.Close()
	if a.signaling != nil {
		a.signaling.Close()
	}
	a.mu.Lock()
	a.stopVideoLocked()
	a.mu.Unlock()
	if a.publisher != nil {
		a.publisher.Close()
	}
	return a.motors.Stop()
}

// stopVideoLocked stops both pipelines.
func (a *App) stopVideoLocked() {
	if a.preview != nil {
		if err := a.preview.Stop(); err != nil {
			log.Printf("app: stop preview: %v", err)
		}
	}
	if a.publisher != nil {
		a.publisher.StopForwarding()
	}
	if a.runner != nil {
		if err := a.runner.Stop(); err != nil {
			log.Printf("app: stop encoder: %v", err)
		}
	}
}

// cameraOptions builds capture options from the config.
func (a *App) cameraOptions() camera.Options {
	return camera.Options{
		FFmpegPath:  a.cfg.FFmpegPath,
		Device:      a.cfg.CameraDevice,
		InputFormat: a.cfg.CameraInputFormat,
		Width:       a.cfg.CameraWidth,
		Height:      a.cfg.CameraHeight,
		FPS:         a.cfg.FPS,
		Rotation:    a.cfg.CameraRotation,
		BitrateKbps: a.cfg.BitrateKbps,
		Quality:     a.cfg.MJPEGQuality,
	}
}

// Signaling returns the signaling websocket handler, nil without WebRTC.
func (a *App) Signaling() *signaling.Server {
	return a.signaling
}

// Control returns the control websocket handler.
func (a *App) Control() *control.Server {
	return a.control
}

// mjpegInterval converts the configured interval.
func mjpegInterval(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

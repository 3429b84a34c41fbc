package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/frudas24/raspacar/internal/app"
	"github.com/frudas24/raspacar/internal/camera"
	"github.com/frudas24/raspacar/internal/config"
	"github.com/frudas24/raspacar/internal/drive"
	"github.com/frudas24/raspacar/internal/mjpeg"
	"github.com/frudas24/raspacar/internal/session"
	"github.com/frudas24/raspacar/internal/webrtc"
)

// ServeCmd runs the car server.
type ServeCmd struct {
	Static string `help:"Serve page assets from this directory instead of the embedded copy." type:"path"`
}

// Run wires the application and blocks until shutdown.
func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Debug = cfg.Debug || g.Debug
	webrtc.SetDebugLogging(cfg.Debug)
	if cfg.Debug {
		log.Printf("debug: enabled")
	}
	logStartup(cfg)

	motors, err := drive.New(motorOptions(cfg, cfg.Debug))
	if err != nil {
		return err
	}
	log.Printf("motors: %s", motors.Kind())

	stream := mjpeg.NewStream(time.Duration(cfg.MJPEGIntervalMs) * time.Millisecond)
	deps := app.Deps{
		Session: session.New(cfg.Password()),
		Motors:  motors,
		Stream:  stream,
		Preview: camera.NewPreview(stream),
		Runner:  camera.NewRunner(),
	}
	publisher, err := webrtc.NewPublisher(cfg.FPS)
	if err != nil {
		log.Printf("webrtc: disabled: %v", err)
	} else {
		deps.Publisher = publisher
	}

	appInstance, err := app.New(cfg, deps)
	if err != nil {
		return errors.Join(err, motors.Close())
	}
	if err := appInstance.Start(); err != nil {
		// Video failures leave the placeholder frame up.
		log.Printf("video: %v", err)
	}
	defer func() {
		if err := appInstance.Stop(); err != nil {
			log.Printf("shutdown: %v", err)
		}
		if err := motors.Close(); err != nil {
			log.Printf("shutdown: motors: %v", err)
		}
	}()

	mux := http.NewServeMux()
	appInstance.RegisterRoutes(mux, c.Static)
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// logStartup prints startup checks and connection info.
func logStartup(cfg config.Config) {
	log.Printf("raspacar starting")
	logEnvStatus(cfg)
	logFFmpegStatus(cfg)
	logListenStatus(cfg.ListenAddr)
}

// logEnvStatus reports whether a .env file was found and required values are set.
func logEnvStatus(cfg config.Config) {
	envPath := filepath.Join(cfg.DataDir, ".env")
	if fileExists(envPath) {
		log.Printf("env check: ok (%s)", envPath)
	} else {
		log.Printf("env check: missing (%s)", envPath)
	}
	if fileExists(cfg.ConfigFile) {
		log.Printf("config file: %s", cfg.ConfigFile)
	}
	if cfg.PasswordMode {
		if strings.TrimSpace(cfg.UIPassword) == "" {
			log.Printf("env UI_PASSWORD: missing")
		} else {
			log.Printf("env UI_PASSWORD: set")
		}
	} else {
		log.Printf("env PASSWORD_MODE: disabled (open page)")
	}
}

// logFFmpegStatus reports ffmpeg and camera availability.
func logFFmpegStatus(cfg config.Config) {
	if !cfg.CameraEnabled {
		log.Printf("camera: disabled")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	version, err := camera.Check(ctx, cfg.FFmpegPath)
	if err != nil {
		log.Printf("ffmpeg check: missing (%v)", err)
	} else {
		log.Printf("ffmpeg check: ok (%s)", version)
	}
	opts := camera.Options{Device: cfg.CameraDevice, InputFormat: cfg.CameraInputFormat}
	if camera.DeviceExists(opts) {
		log.Printf("camera device: ok (%s)", cfg.CameraDevice)
	} else {
		log.Printf("camera device: missing (%s)", cfg.CameraDevice)
	}
}

// logListenStatus reports the listen address and a local URL helper.
func logListenStatus(addr string) {
	log.Printf("listen addr: %s", addr)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	log.Printf("local url: http://%s", net.JoinHostPort(host, port))
}

// fileExists reports whether a path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

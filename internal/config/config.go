// Package config loads runtime configuration for the car server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr      = "0.0.0.0:5000"
	defaultDataDir         = "./data"
	defaultFFmpegPath      = "ffmpeg"
	defaultMotorDriver     = "auto"
	defaultMotorI2CBus     = ""
	defaultJoystickRadius  = 50
	defaultCameraDevice    = "/dev/video0"
	defaultCameraFormat    = "v4l2"
	defaultCameraWidth     = 640
	defaultCameraHeight    = 480
	defaultCameraRotation  = 180
	defaultFPS             = 24
	defaultBitrateKbps     = 1500
	defaultVideoMode       = "mjpeg"
	defaultMJPEGIntervalMs = 33
	defaultMJPEGQuality    = 70
	defaultDriverPolicy    = "replace"
)

// Config holds runtime configuration values.
type Config struct {
	ListenAddr        string  `yaml:"listen_addr"`
	DataDir           string  `yaml:"-"`
	ConfigFile        string  `yaml:"-"`
	CalibPath         string  `yaml:"calib_path"`
	PasswordMode      bool    `yaml:"password_mode"`
	UIPassword        string  `yaml:"ui_password"`
	DriverPolicy      string  `yaml:"driver_policy"`
	MotorDriver       string  `yaml:"motor_driver"`
	MotorI2CBus       string  `yaml:"motor_i2c_bus"`
	MotorI2CAddr      uint16  `yaml:"motor_i2c_addr"`
	MotorReversed     bool    `yaml:"motor_reversed"`
	JoystickRadius    float64 `yaml:"joystick_radius"`
	CameraEnabled     bool    `yaml:"camera_enabled"`
	CameraDevice      string  `yaml:"camera_device"`
	CameraInputFormat string  `yaml:"camera_input_format"`
	CameraWidth       int     `yaml:"camera_width"`
	CameraHeight      int     `yaml:"camera_height"`
	CameraRotation    int     `yaml:"camera_rotation"`
	FPS               int     `yaml:"fps"`
	BitrateKbps       int     `yaml:"bitrate_kbps"`
	VideoMode         string  `yaml:"video_mode"`
	MJPEGIntervalMs   int     `yaml:"mjpeg_interval_ms"`
	MJPEGQuality      int     `yaml:"mjpeg_quality"`
	FFmpegPath        string  `yaml:"ffmpeg_path"`
	Debug             bool    `yaml:"debug"`
}

// Defaults returns the stock configuration.
func Defaults() Config {
	return Config{
		ListenAddr:        defaultListenAddr,
		DataDir:           defaultDataDir,
		ConfigFile:        filepath.Join(defaultDataDir, "config.yaml"),
		CalibPath:         filepath.Join(defaultDataDir, "calib.json"),
		DriverPolicy:      defaultDriverPolicy,
		MotorDriver:       defaultMotorDriver,
		MotorI2CBus:       defaultMotorI2CBus,
		MotorReversed:     true,
		JoystickRadius:    defaultJoystickRadius,
		CameraEnabled:     true,
		CameraDevice:      defaultCameraDevice,
		CameraInputFormat: defaultCameraFormat,
		CameraWidth:       defaultCameraWidth,
		CameraHeight:      defaultCameraHeight,
		CameraRotation:    defaultCameraRotation,
		FPS:               defaultFPS,
		BitrateKbps:       defaultBitrateKbps,
		VideoMode:         defaultVideoMode,
		MJPEGIntervalMs:   defaultMJPEGIntervalMs,
		MJPEGQuality:      defaultMJPEGQuality,
		FFmpegPath:        defaultFFmpegPath,
	}
}

// Load reads configuration from defaults, then <DATA_DIR>/config.yaml, then
// <DATA_DIR>/.env, then environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	cfg.DataDir = envString("DATA_DIR", cfg.DataDir)

	if err := loadEnvFile(filepath.Join(cfg.DataDir, ".env")); err != nil {
		return Config{}, err
	}
	cfg.DataDir = envString("DATA_DIR", cfg.DataDir)
	cfg.ConfigFile = envString("CONFIG_FILE", filepath.Join(cfg.DataDir, "config.yaml"))
	cfg.CalibPath = filepath.Join(cfg.DataDir, "calib.json")

	if err := loadYAML(cfg.ConfigFile, &cfg); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Password returns the password sessions should require, empty when open.
func (c Config) Password() string {
	if !c.PasswordMode {
		return ""
	}
	return c.UIPassword
}

// Validate checks value ranges and names the offending key.
func (c Config) Validate() error {
	switch c.MotorDriver {
	case "auto", "motor_hat", "pwm_hat", "none":
	default:
		return fmt.Errorf("MOTOR_DRIVER must be auto, motor_hat, pwm_hat or none, got %q", c.MotorDriver)
	}
	switch c.VideoMode {
	case "mjpeg", "webrtc", "off":
	default:
		return fmt.Errorf("VIDEO_MODE must be mjpeg, webrtc or off, got %q", c.VideoMode)
	}
	switch c.DriverPolicy {
	case "replace", "reject":
	default:
		return fmt.Errorf("DRIVER_POLICY must be replace or reject, got %q", c.DriverPolicy)
	}
	switch c.CameraRotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("CAMERA_ROTATION must be 0, 90, 180 or 270, got %d", c.CameraRotation)
	}
	if c.JoystickRadius <= 0 {
		return errors.New("JOYSTICK_RADIUS must be > 0")
	}
	if c.FPS <= 0 {
		return errors.New("FPS must be > 0")
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return errors.New("CAMERA_WIDTH and CAMERA_HEIGHT must be > 0")
	}
	if c.BitrateKbps <= 0 {
		return errors.New("BITRATE_KBPS must be > 0")
	}
	if c.MJPEGIntervalMs < 0 {
		return errors.New("MJPEG_INTERVAL_MS must be >= 0")
	}
	if c.MJPEGQuality <= 0 || c.MJPEGQuality > 100 {
		return errors.New("MJPEG_QUALITY must be 1-100")
	}
	if c.PasswordMode && strings.TrimSpace(c.UIPassword) == "" {
		return errors.New("UI_PASSWORD is required when PASSWORD_MODE is on")
	}
	return nil
}

// loadYAML overlays a YAML config file. A missing file is not an error.
func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables.
func applyEnv(cfg *Config) error {
	cfg.ListenAddr = envString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.CalibPath = envString("CALIB_PATH", cfg.CalibPath)
	cfg.UIPassword = envString("UI_PASSWORD", cfg.UIPassword)
	cfg.DriverPolicy = strings.ToLower(envString("DRIVER_POLICY", cfg.DriverPolicy))
	cfg.MotorDriver = strings.ToLower(envString("MOTOR_DRIVER", cfg.MotorDriver))
	cfg.MotorI2CBus = envString("MOTOR_I2C_BUS", cfg.MotorI2CBus)
	cfg.CameraDevice = envString("CAMERA_DEVICE", cfg.CameraDevice)
	cfg.CameraInputFormat = envString("CAMERA_INPUT_FORMAT", cfg.CameraInputFormat)
	cfg.VideoMode = strings.ToLower(envString("VIDEO_MODE", cfg.VideoMode))
	cfg.FFmpegPath = envString("FFMPEG_PATH", cfg.FFmpegPath)

	bools := []struct {
		key string
		dst *bool
	}{
		{"PASSWORD_MODE", &cfg.PasswordMode},
		{"MOTOR_REVERSED", &cfg.MotorReversed},
		{"CAMERA_ENABLED", &cfg.CameraEnabled},
		{"DEBUG", &cfg.Debug},
	}
	for _, b := range bools {
		v, err := envBool(b.key, *b.dst)
		if err != nil {
			return err
		}
		*b.dst = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CAMERA_WIDTH", &cfg.CameraWidth},
		{"CAMERA_HEIGHT", &cfg.CameraHeight},
		{"CAMERA_ROTATION", &cfg.CameraRotation},
		{"FPS", &cfg.FPS},
		{"BITRATE_KBPS", &cfg.BitrateKbps},
		{"MJPEG_INTERVAL_MS", &cfg.MJPEGIntervalMs},
		{"MJPEG_QUALITY", &cfg.MJPEGQuality},
	}
	for _, i := range ints {
		v, err := envInt(i.key, *i.dst)
		if err != nil {
			return err
		}
		*i.dst = v
	}

	if raw := strings.TrimSpace(os.Getenv("MOTOR_I2C_ADDR")); raw != "" {
		addr, err := strconv.ParseUint(raw, 0, 16)
		if err != nil {
			return fmt.Errorf("MOTOR_I2C_ADDR must be an address like 0x60: %w", err)
		}
		cfg.MotorI2CAddr = uint16(addr)
	}
	if raw := strings.TrimSpace(os.Getenv("JOYSTICK_RADIUS")); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("JOYSTICK_RADIUS must be a number: %w", err)
		}
		cfg.JoystickRadius = r
	}
	return nil
}

// envString returns an env override when present, otherwise a default.
func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt returns an int env override when present, otherwise a default.
func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return value, nil
}

// envBool returns a bool env override when present, otherwise a default.
func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return def, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
}

// loadEnvFile loads KEY=VALUE pairs from a .env file without overriding
// variables already set in the process.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			if err := os.Setenv(key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseEnvLine parses a single .env line into key/value.
func parseEnvLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", false
	}
	return key, strings.Trim(strings.TrimSpace(value), `"'`), true
}

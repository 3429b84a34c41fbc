package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points DATA_DIR at a temp dir and clears keys a .env might set.
func isolate(t *testing.T, keys ...string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	for _, k := range keys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unsetenv %s: %v", k, err)
		}
	}
	return dir
}

// writeFile writes content into dir/name.
func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// TestLoad_Defaults verifies the stock configuration.
func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t, "LISTEN_ADDR", "PASSWORD_MODE", "UI_PASSWORD", "VIDEO_MODE", "FPS", "CAMERA_ROTATION")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:5000" || cfg.Password() != "" || !cfg.MotorReversed {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.CalibPath != filepath.Join(dir, "calib.json") || cfg.ConfigFile != filepath.Join(dir, "config.yaml") {
		t.Fatalf("unexpected paths: %+v", cfg)
	}
	if cfg.CameraRotation != 180 || cfg.FPS != 24 || cfg.JoystickRadius != 50 || cfg.VideoMode != "mjpeg" {
		t.Fatalf("unexpected camera defaults: %+v", cfg)
	}
}

// TestLoad_YAMLThenEnv verifies env vars win over the YAML file.
func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t, "VIDEO_MODE", "MOTOR_I2C_ADDR", "MOTOR_DRIVER", "CAMERA_ROTATION")
	writeFile(t, dir, "config.yaml", "video_mode: webrtc\nfps: 30\nmotor_i2c_addr: 0x60\nmotor_driver: motor_hat\ncamera_rotation: 0\n")
	t.Setenv("FPS", "15")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VideoMode != "webrtc" || cfg.MotorDriver != "motor_hat" || cfg.MotorI2CAddr != 0x60 || cfg.CameraRotation != 0 {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	if cfg.FPS != 15 {
		t.Fatalf("expected env FPS 15, got %d", cfg.FPS)
	}
}

// TestLoad_YAMLUnknownKey verifies typos are reported.
func TestLoad_YAMLUnknownKey(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, "config.yaml", "vidoe_mode: webrtc\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "config.yaml") {
		t.Fatalf("expected parse error naming the file, got %v", err)
	}
}

// TestLoad_EnvFilePassword verifies .env values and the password mode check.
func TestLoad_EnvFilePassword(t *testing.T) {
	dir := isolate(t, "PASSWORD_MODE", "UI_PASSWORD")
	t.Cleanup(func() {
		_ = os.Unsetenv("PASSWORD_MODE")
		_ = os.Unsetenv("UI_PASSWORD")
	})

	writeFile(t, dir, ".env", "# car\nexport PASSWORD_MODE=on\n")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "UI_PASSWORD") {
		t.Fatalf("expected UI_PASSWORD error, got %v", err)
	}

	writeFile(t, dir, ".env", "PASSWORD_MODE=on\nUI_PASSWORD=\"vroom\"\n")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Password() != "vroom" {
		t.Fatalf("expected password from .env, got %q", cfg.Password())
	}
}

// TestLoad_InvalidValues verifies errors name the key.
func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"MOTOR_DRIVER":    "warp",
		"MOTOR_I2C_ADDR":  "zz",
		"CAMERA_ROTATION": "45",
		"PASSWORD_MODE":   "maybe",
		"FPS":             "fast",
		"MJPEG_QUALITY":   "0",
		"JOYSTICK_RADIUS": "-5",
		"VIDEO_MODE":      "vhs",
		"DRIVER_POLICY":   "share",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			isolate(t)
			t.Setenv(key, value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), key) {
				t.Fatalf("expected error naming %s, got %v", key, err)
			}
		})
	}
}

// TestParseEnvLine verifies .env parsing rules.
func TestParseEnvLine(t *testing.T) {
	cases := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{"FPS=24", "FPS", "24", true},
		{"  export UI_PASSWORD = 'a=b' ", "UI_PASSWORD", "a=b", true},
		{"# comment", "", "", false},
		{"novalue", "", "", false},
		{"=x", "", "", false},
	}
	for _, tc := range cases {
		k, v, ok := parseEnvLine(tc.line)
		if k != tc.key || v != tc.value || ok != tc.ok {
			t.Fatalf("%q: got (%q, %q, %t)", tc.line, k, v, ok)
		}
	}
}

package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Check resolves the ffmpeg binary and returns its version line.
func Check(ctx context.Context, path string) (string, error) {
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, resolved, "-hide_banner", "-version").Output()
	if err != nil {
		return "", fmt.Errorf("run %s -version: %w", resolved, err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// DeviceExists reports whether a capture device node is present. Synthetic
// inputs such as lavfi sources always pass.
func DeviceExists(opts Options) bool {
	if strings.EqualFold(opts.InputFormat, "lavfi") {
		return true
	}
	opts = opts.withDefaults()
	_, err := os.Stat(opts.Device)
	return err == nil
}

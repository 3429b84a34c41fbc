// Package camera runs ffmpeg against the car camera and feeds the video pipelines.
package camera

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoders tried in order for the WebRTC pipeline.
const (
	EncoderV4L2M2M = "h264_v4l2m2m"
	EncoderX264    = "libx264"
)

// Options describes the capture device and encode parameters.
type Options struct {
	FFmpegPath  string
	Device      string
	InputFormat string
	Width       int
	Height      int
	FPS         int
	Rotation    int
	BitrateKbps int
	Quality     int
}

// withDefaults fills zero values with the car's stock camera settings.
func (o Options) withDefaults() Options {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.Device == "" {
		o.Device = "/dev/video0"
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 640, 480
	}
	if o.FPS <= 0 {
		o.FPS = 24
	}
	if o.BitrateKbps <= 0 {
		o.BitrateKbps = 1500
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 70
	}
	return o
}

// BuildMJPEGArgs returns ffmpeg args that write an MJPEG stream to stdout.
func BuildMJPEGArgs(opts Options) []string {
	opts = opts.withDefaults()
	args := buildInputArgs(opts)
	args = append(args, "-an")
	if vf := rotationFilter(opts.Rotation); vf != "" {
		args = append(args, "-vf", vf)
	}
	return append(args,
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(qscale(opts.Quality)),
		"-f", "mjpeg",
		"-",
	)
}

// BuildRTPArgs returns ffmpeg args that send H264 RTP to a local UDP port.
func BuildRTPArgs(opts Options, port int, encoder string) []string {
	opts = opts.withDefaults()
	// Frequent keyframes let a late viewer start decoding quickly.
	keyint := opts.FPS
	if keyint < 15 {
		keyint = 15
	}
	args := buildInputArgs(opts)
	args = append(args, "-an")
	if vf := rotationFilter(opts.Rotation); vf != "" {
		args = append(args, "-vf", vf)
	}
	switch encoder {
	case EncoderV4L2M2M:
		args = append(args,
			"-c:v", EncoderV4L2M2M,
			"-pix_fmt", "yuv420p",
			"-g", strconv.Itoa(keyint),
			"-bsf:v", "dump_extra",
		)
	default:
		args = append(args,
			"-c:v", EncoderX264,
			"-preset", "ultrafast",
			"-tune", "zerolatency",
			"-profile:v", "baseline",
			"-g", strconv.Itoa(keyint),
			"-keyint_min", strconv.Itoa(keyint),
			"-bf", "0",
			"-x264-params", "scenecut=0:repeat-headers=1",
			"-pix_fmt", "yuv420p",
		)
	}
	return append(args,
		"-b:v", fmt.Sprintf("%dk", opts.BitrateKbps),
		"-payload_type", "96",
		"-f", "rtp",
		fmt.Sprintf("rtp://127.0.0.1:%d?pkt_size=1200", port),
	)
}

// buildInputArgs builds the capture side. Synthetic lavfi sources carry
// their own size and rate.
func buildInputArgs(opts Options) []string {
	args := []string{}
	if opts.InputFormat != "" {
		args = append(args, "-f", opts.InputFormat)
	}
	if !strings.EqualFold(opts.InputFormat, "lavfi") {
		args = append(args,
			"-framerate", strconv.Itoa(opts.FPS),
			"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		)
	}
	return append(args, "-i", opts.Device)
}

// rotationFilter maps a rotation in degrees to an ffmpeg filter.
func rotationFilter(deg int) string {
	switch ((deg % 360) + 360) % 360 {
	case 90:
		return "transpose=1"
	case 180:
		return "hflip,vflip"
	case 270:
		return "transpose=2"
	default:
		return ""
	}
}

// qscale maps a 1-100 JPEG quality onto ffmpeg's 2-31 scale, lower is better.
func qscale(quality int) int {
	if quality <= 0 || quality > 100 {
		quality = 70
	}
	return 2 + (100-quality)*29/99
}

package mjpeg

import "bytes"

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// maxFrameSize bounds a frame still waiting for its end marker.
const maxFrameSize = 4 << 20

// Splitter cuts a raw MJPEG byte stream, such as ffmpeg's "-f mjpeg" output,
// into individual JPEG frames. It implements io.Writer.
type Splitter struct {
	buf     []byte
	emit    func([]byte)
	dropped int
}

// NewSplitter returns a splitter that calls emit with each complete frame.
// The slice passed to emit is owned by the callee.
func NewSplitter(emit func([]byte)) *Splitter {
	return &Splitter{emit: emit}
}

// Write consumes stream bytes. It never fails.
func (s *Splitter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	for {
		start := bytes.Index(s.buf, soi)
		if start < 0 {
			// Keep a trailing 0xFF in case it starts the next marker.
			if n := len(s.buf); n > 0 && s.buf[n-1] == 0xFF {
				s.buf = append(s.buf[:0], 0xFF)
			} else {
				s.buf = s.buf[:0]
			}
			return len(p), nil
		}
		if start > 0 {
			s.buf = append(s.buf[:0], s.buf[start:]...)
		}
		end := bytes.Index(s.buf[len(soi):], eoi)
		if end < 0 {
			if len(s.buf) > maxFrameSize {
				s.dropped++
				s.buf = s.buf[:0]
			}
			return len(p), nil
		}
		end += len(soi) + len(eoi)
		frame := append([]byte(nil), s.buf[:end]...)
		s.buf = append(s.buf[:0], s.buf[end:]...)
		if s.emit != nil {
			s.emit(frame)
		}
	}
}

// Dropped reports how many oversized partial frames were discarded.
func (s *Splitter) Dropped() int {
	return s.dropped
}

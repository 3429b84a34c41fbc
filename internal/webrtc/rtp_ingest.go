package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// rtpListener receives ffmpeg's RTP output on a loopback UDP port.
type rtpListener struct {
	mu       sync.Mutex
	conn     *net.UDPConn
	cancel   context.CancelFunc
	done     chan struct{}
	running  bool
	rewriter rtpRewriter
	params   rtpWriteParams
	packets  atomic.Uint64
	bytes    atomic.Uint64
}

// newRTPListener binds a UDP port for RTP ingestion.
func newRTPListener(port int, fps int) (*rtpListener, error) {
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen rtp :%d: %w", port, err)
	}
	l := &rtpListener{conn: conn}
	if fps > 0 {
		l.params.frameDelta = uint32(h264ClockRate / fps)
	}
	return l, nil
}

// start begins forwarding RTP packets into the provided track.
func (l *rtpListener) start(track *webrtc.TrackLocalStaticRTP) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return errors.New("rtp listener not initialized")
	}
	if l.running {
		return nil
	}
	if err := l.conn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	go l.loop(ctx, l.conn, track, l.done)
	return nil
}

// stop cancels the forward loop and waits for it to exit.
func (l *rtpListener) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
		if l.conn != nil {
			_ = l.conn.SetReadDeadline(time.Now())
		}
		<-l.done
	}
	l.running = false
}

// close stops forwarding and closes the UDP socket.
func (l *rtpListener) close() {
	l.stop()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}

// loop reads RTP packets, rewrites them and forwards them to the track.
func (l *rtpListener) loop(ctx context.Context, conn *net.UDPConn, track *webrtc.TrackLocalStaticRTP, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 1600)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Printf("webrtc: rtp read: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			if debugRTPEnabled() {
				log.Printf("webrtc: drop malformed rtp (%d bytes): %v", n, err)
			}
			continue
		}
		l.rewriter.Apply(&pkt, l.params)
		count := l.packets.Add(1)
		l.bytes.Add(uint64(n))
		if debugRTPEnabled() && count%300 == 0 {
			log.Printf("webrtc: rtp seq=%d ts=%d marker=%t packets=%d", pkt.SequenceNumber, pkt.Timestamp, pkt.Marker, count)
		}
		if err := track.WriteRTP(&pkt); err != nil && debugRTPEnabled() && !errors.Is(err, io.ErrClosedPipe) {
			log.Printf("webrtc: write rtp: %v", err)
		}
	}
}

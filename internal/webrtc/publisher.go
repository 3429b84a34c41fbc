package webrtc

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
)

// Stats counts what the RTP ingest has forwarded.
type Stats struct {
	Packets uint64
	Bytes   uint64
	Peer    string
}

// Publisher manages the viewer peer connection and the camera track.
type Publisher struct {
	mu    sync.Mutex
	api   *webrtc.API
	peer  *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticRTP
	fps   int

	rtpListener *rtpListener
}

// NewPublisher initializes a publisher with default codecs and interceptors.
func NewPublisher(fps int) (*Publisher, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptors := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, interceptors); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(media),
		webrtc.WithInterceptorRegistry(interceptors),
	)

	return &Publisher{api: api, fps: fps}, nil
}

// Track returns the H264 RTP track, creating it if needed.
func (p *Publisher) Track() (*webrtc.TrackLocalStaticRTP, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureTrack()
}

// NewPeer replaces the viewer peer connection and attaches the camera track.
func (p *Publisher) NewPeer() (*webrtc.PeerConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peer != nil {
		_ = p.peer.Close()
		p.peer = nil
	}

	peer, err := p.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}

	track, err := p.ensureTrack()
	if err != nil {
		_ = peer.Close()
		return nil, err
	}

	sender, err := peer.AddTrack(track)
	if err != nil {
		_ = peer.Close()
		return nil, err
	}

	// RTCP has to be drained for the interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := sender.Read(buf); rtcpErr != nil {
				return
			}
		}
	}()

	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("webrtc: viewer %s", state)
	})

	p.peer = peer
	return peer, nil
}

// ClosePeer closes the current peer connection.
func (p *Publisher) ClosePeer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peer != nil {
		_ = p.peer.Close()
		p.peer = nil
	}
}

// AttachRTP binds a local UDP port for RTP ingest.
func (p *Publisher) AttachRTP(port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rtpListener != nil {
		p.rtpListener.close()
		p.rtpListener = nil
	}

	listener, err := newRTPListener(port, p.fps)
	if err != nil {
		return err
	}
	p.rtpListener = listener
	return nil
}

// StartForwarding begins forwarding RTP packets into the track.
func (p *Publisher) StartForwarding() error {
	p.mu.Lock()
	listener := p.rtpListener
	track, err := p.ensureTrack()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if listener == nil {
		return errors.New("rtp listener not attached")
	}
	return listener.start(track)
}

// StopForwarding stops RTP forwarding without closing the listener.
func (p *Publisher) StopForwarding() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rtpListener != nil {
		p.rtpListener.stop()
	}
}

// Close releases the listener and the viewer.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rtpListener != nil {
		p.rtpListener.close()
		p.rtpListener = nil
	}
	if p.peer != nil {
		_ = p.peer.Close()
		p.peer = nil
	}
}

// Stats returns forwarding counters and the viewer state.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var st Stats
	if p.rtpListener != nil {
		st.Packets = p.rtpListener.packets.Load()
		st.Bytes = p.rtpListener.bytes.Load()
	}
	st.Peer = "none"
	if p.peer != nil {
		st.Peer = p.peer.ConnectionState().String()
	}
	return st
}

// ensureTrack initializes the track if it does not already exist.
func (p *Publisher) ensureTrack() (*webrtc.TrackLocalStaticRTP, error) {
	if p.track != nil {
		return p.track, nil
	}
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: h264ClockRate},
		"camera",
		"raspacar",
	)
	if err != nil {
		return nil, err
	}
	p.track = track
	return track, nil
}

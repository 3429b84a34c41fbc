package webrtc

import (
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
)

// TestRTPRewriterSequence ensures outgoing sequence numbers are contiguous regardless of input sequence.
func TestRTPRewriterSequence(t *testing.T) {
	var rw rtpRewriter
	p := &rtp.Packet{Header: rtp.Header{SequenceNumber: 100, Timestamp: 10, PayloadType: 96, SSRC: 1}}
	rw.Apply(p, rtpWriteParams{})
	first := p.SequenceNumber

	p2 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Timestamp: 20, PayloadType: 96, SSRC: 1}}
	rw.Apply(p2, rtpWriteParams{})
	if p2.SequenceNumber != first+1 {
		t.Fatalf("expected contiguous sequence, got %d then %d", first, p2.SequenceNumber)
	}
}

// TestRTPRewriterTimestampGrouping keeps all packets with the same input timestamp on the same output timestamp.
func TestRTPRewriterTimestampGrouping(t *testing.T) {
	var rw rtpRewriter

	p1 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Timestamp: 1000}}
	rw.Apply(p1, rtpWriteParams{})
	base := p1.Timestamp

	p2 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 2, Timestamp: 1000}}
	rw.Apply(p2, rtpWriteParams{})
	if p2.Timestamp != base {
		t.Fatalf("expected same output timestamp for same input timestamp, got %d != %d", p2.Timestamp, base)
	}

	p3 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 3, Timestamp: 1300}}
	rw.Apply(p3, rtpWriteParams{})
	if p3.Timestamp <= base {
		t.Fatalf("expected output timestamp to advance, got %d <= %d", p3.Timestamp, base)
	}
}

// TestRTPRewriterLargeJump avoids forwarding a huge delta on discontinuities and stays monotonic.
func TestRTPRewriterLargeJump(t *testing.T) {
	var rw rtpRewriter

	p1 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Timestamp: 5000}}
	rw.Apply(p1, rtpWriteParams{})
	t1 := p1.Timestamp

	p2 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 2, Timestamp: 8000}}
	rw.Apply(p2, rtpWriteParams{})
	t2 := p2.Timestamp
	if t2 <= t1 {
		t.Fatalf("expected monotonic timestamp, got %d <= %d", t2, t1)
	}

	// Simulate ffmpeg restart: timestamp jumps far backwards, which would produce a huge unsigned delta.
	p3 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Timestamp: 10}}
	rw.Apply(p3, rtpWriteParams{})
	t3 := p3.Timestamp
	if t3 <= t2 {
		t.Fatalf("expected monotonic timestamp after jump, got %d <= %d", t3, t2)
	}

	// Another packet with same input TS should keep the same output TS.
	p4 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 2, Timestamp: 10}}
	rw.Apply(p4, rtpWriteParams{})
	if p4.Timestamp != t3 {
		t.Fatalf("expected grouped timestamp after restart, got %d != %d", p4.Timestamp, t3)
	}
}

// TestRTPRewriterOverridesHeader verifies payload type and SSRC overrides are applied when set.
func TestRTPRewriterOverridesHeader(t *testing.T) {
	var rw rtpRewriter
	p := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1, Timestamp: 1, PayloadType: 96, SSRC: 123}}
	rw.Apply(p, rtpWriteParams{payloadType: 120})
	if p.PayloadType != 120 {
		t.Fatalf("expected payload type override, got %d", p.PayloadType)
	}
}

// TestRTPRewriterFrameDeltaParam verifies the configured frame step is used after a restart.
func TestRTPRewriterFrameDeltaParam(t *testing.T) {
	var rw rtpRewriter
	params := rtpWriteParams{frameDelta: h264ClockRate / 24}

	p1 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 40000, Timestamp: 900000}}
	rw.Apply(p1, params)
	p2 := &rtp.Packet{Header: rtp.Header{SequenceNumber: 7, Timestamp: 3}}
	rw.Apply(p2, params)
	if p2.Timestamp-p1.Timestamp != h264ClockRate/24 {
		t.Fatalf("expected %d tick step, got %d", h264ClockRate/24, p2.Timestamp-p1.Timestamp)
	}
	if p2.SequenceNumber != 40001 {
		t.Fatalf("expected seq 40001, got %d", p2.SequenceNumber)
	}
}

// TestRTPListenerForwardsToTrack verifies packets sent to the port reach the counters.
func TestRTPListenerForwardsToTrack(t *testing.T) {
	pub, err := NewPublisher(24)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Close()

	probe, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	port := probe.LocalAddr().(*net.UDPAddr).Port
	_ = probe.Close()

	if err := pub.AttachRTP(port); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := pub.StartForwarding(); err != nil {
		t.Fatalf("forward: %v", err)
	}

	out, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer out.Close()
	pkt := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: 1, Timestamp: 1}, Payload: []byte{0x65, 0x00}}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, _ = out.Write(raw)
		if pub.Stats().Packets > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	st := pub.Stats()
	if st.Packets == 0 || st.Bytes == 0 {
		t.Fatalf("expected forwarded packets, got %+v", st)
	}
	if st.Peer != "none" {
		t.Fatalf("expected no viewer, got %q", st.Peer)
	}
	pub.StopForwarding()
}

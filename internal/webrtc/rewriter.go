package webrtc

import "github.com/pion/rtp"

const (
	// h264ClockRate is the RTP clock for video.
	h264ClockRate = 90000
	// defaultFrameDelta is used when the input timestamp jumps.
	defaultFrameDelta = h264ClockRate / 30
	// maxFrameDelta is the largest input step forwarded as-is.
	maxFrameDelta = 2 * h264ClockRate
)

// rtpWriteParams overrides header fields when non-zero.
type rtpWriteParams struct {
	payloadType uint8
	ssrc        uint32
	frameDelta  uint32
}

// rtpRewriter keeps the outgoing sequence numbers contiguous and timestamps
// increasing across ffmpeg restarts, which reset both counters.
type rtpRewriter struct {
	started  bool
	outSeq   uint16
	lastInTS uint32
	outTS    uint32
}

// Apply rewrites p in place.
func (r *rtpRewriter) Apply(p *rtp.Packet, params rtpWriteParams) {
	if !r.started {
		r.started = true
		r.outSeq = p.SequenceNumber
		r.lastInTS = p.Timestamp
		r.outTS = p.Timestamp
	} else {
		r.outSeq++
		if p.Timestamp != r.lastInTS {
			delta := p.Timestamp - r.lastInTS
			if delta == 0 || delta > maxFrameDelta {
				delta = params.frameDelta
				if delta == 0 {
					delta = defaultFrameDelta
				}
			}
			r.outTS += delta
			r.lastInTS = p.Timestamp
		}
	}
	p.SequenceNumber = r.outSeq
	p.Timestamp = r.outTS
	if params.payloadType != 0 {
		p.PayloadType = params.payloadType
	}
	if params.ssrc != 0 {
		p.SSRC = params.ssrc
	}
}

// Package signaling exchanges WebRTC offers, answers and candidates with the
// camera viewer over a websocket.
package signaling

import "github.com/pion/webrtc/v3"

// Message types.
const (
	TypeOffer   = "offer"
	TypeAnswer  = "answer"
	TypeICE     = "ice"
	TypeRestart = "restart"
	TypeError   = "error"
)

// Message is a websocket signaling payload.
type Message struct {
	T         string                   `json:"t"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// Package webrtc publishes the car camera to a single browser viewer.
package webrtc

import "sync/atomic"

// debugRTP controls whether verbose RTP packet logs are emitted.
var debugRTP atomic.Bool

// SetDebugLogging enables verbose RTP logs.
func SetDebugLogging(enabled bool) {
	debugRTP.Store(enabled)
}

func debugRTPEnabled() bool {
	return debugRTP.Load()
}

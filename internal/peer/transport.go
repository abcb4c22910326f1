// Package peer drives one two-party negotiation session: offer/answer/candidate
// exchange to an established transport, plus in-place track substitution for
// screen sharing. All inbound events are processed strictly in arrival order.
package peer

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/cowatch/internal/signaling"
)

// Sender is one outgoing track slot on the transport. Replacing its track
// changes what flows without touching the session description.
type Sender interface {
	Kind() webrtc.RTPCodecType
	Track() webrtc.TrackLocal
	ReplaceTrack(webrtc.TrackLocal) error
}

// Transport is the session's view of the peer connection. The pion adapter
// implements it; tests substitute a fake.
type Transport interface {
	SetRemoteDescription(webrtc.SessionDescription) error
	// CreateOffer/CreateAnswer also set the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) (Sender, error)

	// OnICECandidate fires for each locally gathered candidate (trickle).
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnStateChange reports underlying connection health transitions.
	OnStateChange(func(webrtc.PeerConnectionState))

	Close() error
}

// Signaler sends envelopes toward the relay. The WS client implements it.
type Signaler interface {
	Send(signaling.Envelope) error
}

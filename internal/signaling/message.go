// Package signaling defines the wire protocol shared by the relay server and
// the peer client: a JSON envelope for transport and a closed set of decoded
// events for the client state machine.
package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/cowatch/internal/domain"
)

type Type string

const (
	// client -> relay
	TypeJoinRoom  Type = "join-room"
	TypeLeaveRoom Type = "leave-room"
	TypeSignal    Type = "signal"
	TypePing      Type = "ping"

	// relay -> client
	TypeRoomJoined Type = "room-joined"
	TypeRoomFull   Type = "room-full"
	TypePeerJoined Type = "peer-joined"
	TypePeerLeft   Type = "peer-left"
	TypePong       Type = "pong"
	TypeError      Type = "error"
)

// Kind discriminates negotiation payloads inside a "signal" envelope.
// The relay routes on it for logging only, never for admission.
type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

// Envelope is the single message shape on the wire. Payload stays opaque to
// the relay; only the client decodes it.
type Envelope struct {
	Type    Type            `json:"type"`
	Room    domain.RoomID   `json:"room,omitempty"`
	From    domain.MemberID `json:"from,omitempty"`
	Kind    Kind            `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Count   int             `json:"count,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type sdpPayload struct {
	SDP string `json:"sdp"`
}

// Event is the decoded, client-facing form of a relay message. The set is
// closed so dispatch can be exhaustive; a misspelled type can no longer
// silently do nothing.
type Event interface{ isEvent() }

type (
	// Offer carries the remote session description proposal.
	Offer struct {
		From domain.MemberID
		SDP  webrtc.SessionDescription
	}
	// Answer completes a description exchange started by our offer.
	Answer struct {
		From domain.MemberID
		SDP  webrtc.SessionDescription
	}
	// Candidate is a connectivity probe from the remote peer.
	Candidate struct {
		From domain.MemberID
		Init webrtc.ICECandidateInit
	}
	// PeerJoined announces the other participant's arrival.
	PeerJoined struct{ Member domain.MemberID }
	// PeerLeft announces the other participant's departure.
	PeerLeft struct{ Member domain.MemberID }
	// RoomJoined confirms our own admission.
	RoomJoined struct {
		Room  domain.RoomID
		Count int
	}
	// RoomFull refuses our join attempt.
	RoomFull struct{ Room domain.RoomID }
)

func (Offer) isEvent()      {}
func (Answer) isEvent()     {}
func (Candidate) isEvent()  {}
func (PeerJoined) isEvent() {}
func (PeerLeft) isEvent()   {}
func (RoomJoined) isEvent() {}
func (RoomFull) isEvent()   {}

// Decode turns a relay envelope into its event variant.
// Ping/pong and error envelopes are transport concerns, not events.
func Decode(env Envelope) (Event, error) {
	switch env.Type {
	case TypeSignal:
		return decodeSignal(env)
	case TypePeerJoined:
		return PeerJoined{Member: env.From}, nil
	case TypePeerLeft:
		return PeerLeft{Member: env.From}, nil
	case TypeRoomJoined:
		return RoomJoined{Room: env.Room, Count: env.Count}, nil
	case TypeRoomFull:
		return RoomFull{Room: env.Room}, nil
	default:
		return nil, fmt.Errorf("signaling: unexpected envelope type %q", env.Type)
	}
}

func decodeSignal(env Envelope) (Event, error) {
	switch env.Kind {
	case KindOffer, KindAnswer:
		var p sdpPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("signaling: bad %s payload: %w", env.Kind, err)
		}
		desc := webrtc.SessionDescription{SDP: p.SDP}
		if env.Kind == KindOffer {
			desc.Type = webrtc.SDPTypeOffer
			return Offer{From: env.From, SDP: desc}, nil
		}
		desc.Type = webrtc.SDPTypeAnswer
		return Answer{From: env.From, SDP: desc}, nil
	case KindCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &init); err != nil {
			return nil, fmt.Errorf("signaling: bad candidate payload: %w", err)
		}
		return Candidate{From: env.From, Init: init}, nil
	default:
		return nil, fmt.Errorf("signaling: unexpected signal kind %q", env.Kind)
	}
}

// NewOffer builds a signal envelope carrying a local offer.
func NewOffer(room domain.RoomID, desc webrtc.SessionDescription) Envelope {
	return newSDP(room, KindOffer, desc)
}

// NewAnswer builds a signal envelope carrying a local answer.
func NewAnswer(room domain.RoomID, desc webrtc.SessionDescription) Envelope {
	return newSDP(room, KindAnswer, desc)
}

func newSDP(room domain.RoomID, kind Kind, desc webrtc.SessionDescription) Envelope {
	payload, _ := json.Marshal(sdpPayload{SDP: desc.SDP})
	return Envelope{Type: TypeSignal, Room: room, Kind: kind, Payload: payload}
}

// NewCandidate builds a signal envelope carrying a gathered local candidate.
func NewCandidate(room domain.RoomID, init webrtc.ICECandidateInit) Envelope {
	payload, _ := json.Marshal(init)
	return Envelope{Type: TypeSignal, Room: room, Kind: KindCandidate, Payload: payload}
}

// NewJoinRoom builds the join request for a caller-supplied room id.
func NewJoinRoom(room domain.RoomID) Envelope {
	return Envelope{Type: TypeJoinRoom, Room: room}
}

// NewLeaveRoom builds the explicit leave request.
func NewLeaveRoom(room domain.RoomID) Envelope {
	return Envelope{Type: TypeLeaveRoom, Room: room}
}

package domain

import "errors"

var (
	// ErrRoomFull means the room already holds two members. Recoverable: the
	// caller may retry with a different room id.
	ErrRoomFull = errors.New("room full")

	ErrInvalidRoomID = errors.New("invalid room id")
	ErrNotInRoom     = errors.New("member not in a room")

	// Local capability refusals. Surfaced to the caller, never retried here.
	ErrMediaAccessDenied  = errors.New("media access denied")
	ErrCaptureDenied      = errors.New("screen capture denied")
	ErrCaptureUnavailable = errors.New("screen capture unavailable")

	// ErrSignalingOrder marks an answer/candidate that arrived with no matching
	// prior offer or remote description. The message is dropped.
	ErrSignalingOrder = errors.New("signaling message out of order")

	// ErrTransportFailed is terminal for a session. No automatic reconnect.
	ErrTransportFailed = errors.New("peer transport failed")
)

// Package media models local capture for the peer client: camera+mic and
// screen sources expose pion local tracks plus a raw PCM tap used for mixing.
// Actual device access lives behind the Devices interface; the core only
// consumes the capability.
package media

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
)

// PCM is one frame of signed 16-bit mono audio.
type PCM struct {
	Data     []int16
	Duration time.Duration
}

// Source is a live capture. A camera source carries video+audio, a screen
// source carries video and, when the platform grants it, system audio.
type Source interface {
	// VideoTrack returns the outgoing video track, nil if the source has none.
	VideoTrack() webrtc.TrackLocal
	// AudioTrack returns the outgoing audio track, nil if the source has none.
	AudioTrack() webrtc.TrackLocal
	// AudioSamples is a fan-out tap of the raw PCM feeding AudioTrack,
	// consumed by the mixing graph. Nil when the source has no audio.
	AudioSamples() <-chan PCM

	// SetAudioEnabled / SetVideoEnabled mute in place: a disabled track keeps
	// its sender slot and carries silence/blank frames.
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	AudioEnabled() bool
	VideoEnabled() bool

	// OnEnded registers a hook fired when capture stops outside our control
	// (OS-level "stop sharing"). Screen sources call it once.
	OnEnded(func())

	// Stop releases the capture. Idempotent.
	Stop()
}

// Devices is the opaque capture capability the session consumes.
type Devices interface {
	// OpenUserMedia acquires camera + microphone.
	// Fails with domain.ErrMediaAccessDenied when refused.
	OpenUserMedia(ctx context.Context) (Source, error)
	// OpenDisplayMedia acquires screen video and optionally system audio.
	// Fails with domain.ErrCaptureDenied / domain.ErrCaptureUnavailable.
	OpenDisplayMedia(ctx context.Context) (Source, error)
}

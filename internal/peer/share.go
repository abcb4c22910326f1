package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/cowatch/internal/media"
)

// ShareController owns the transport's sender slots once negotiation has
// attached the camera/mic tracks. It swaps what flows through those slots
// without touching the session description.
type ShareController struct {
	devices media.Devices

	mu          sync.Mutex
	camera      media.Source // camera + microphone; owned by the session
	videoSender Sender
	audioSender Sender

	screen  media.Source // non-nil only while sharing
	mixer   *media.Mixer // non-nil only while sharing with system audio
	sharing bool
}

func newShareController(devices media.Devices, camera media.Source, video, audio Sender) *ShareController {
	return &ShareController{
		devices:     devices,
		camera:      camera,
		videoSender: video,
		audioSender: audio,
	}
}

// Sharing reports whether screen content currently occupies the video slot.
func (c *ShareController) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharing
}

// StartScreenShare swaps the outgoing video to captured screen content and,
// when the capture includes system audio, the outgoing audio to a mic+system
// mix. A capture failure leaves the previous tracks untouched. Starting while
// already sharing first tears down the old share, so at most one mixing graph
// ever exists.
func (c *ShareController) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sharing {
		c.stopLocked()
	}

	screen, err := c.devices.OpenDisplayMedia(ctx)
	if err != nil {
		return fmt.Errorf("open display media: %w", err)
	}

	if err := c.videoSender.ReplaceTrack(screen.VideoTrack()); err != nil {
		screen.Stop()
		return fmt.Errorf("replace video track: %w", err)
	}

	// Mix only when the platform actually granted a system-audio track;
	// otherwise outgoing audio stays the raw microphone.
	if tap := screen.AudioSamples(); tap != nil {
		mixer, err := media.NewMixer(c.camera.AudioSamples(), tap)
		if err != nil {
			c.revertVideoLocked()
			screen.Stop()
			return fmt.Errorf("build mixing graph: %w", err)
		}
		if err := c.audioSender.ReplaceTrack(mixer.Output()); err != nil {
			mixer.Close()
			c.revertVideoLocked()
			screen.Stop()
			return fmt.Errorf("replace audio track: %w", err)
		}
		c.mixer = mixer
	}

	// The user can also stop via the OS-level control; same cleanup applies.
	screen.OnEnded(func() {
		log.Info().Str("module", "peer.share").Msg("screen capture ended externally")
		c.StopScreenShare()
	})

	c.screen = screen
	c.sharing = true
	log.Info().Str("module", "peer.share").Bool("system_audio", c.mixer != nil).Msg("screen share started")
	return nil
}

// StopScreenShare restores the camera and raw microphone tracks and releases
// the mixing graph. Calling it when not sharing is a no-op.
func (c *ShareController) StopScreenShare() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sharing {
		return
	}
	c.stopLocked()
}

func (c *ShareController) stopLocked() {
	c.revertVideoLocked()
	if err := c.audioSender.ReplaceTrack(c.camera.AudioTrack()); err != nil {
		log.Error().Err(err).Str("module", "peer.share").Msg("restore audio track")
	}
	if c.mixer != nil {
		c.mixer.Close()
		c.mixer = nil
	}
	if c.screen != nil {
		c.screen.Stop()
		c.screen = nil
	}
	c.sharing = false
	log.Info().Str("module", "peer.share").Msg("screen share stopped")
}

func (c *ShareController) revertVideoLocked() {
	if err := c.videoSender.ReplaceTrack(c.camera.VideoTrack()); err != nil {
		log.Error().Err(err).Str("module", "peer.share").Msg("restore video track")
	}
}

// ToggleMic mutes/unmutes the local microphone in place. The sender slot is
// untouched; a muted track still occupies it and carries silence.
func (c *ShareController) ToggleMic() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	on := !c.camera.AudioEnabled()
	c.camera.SetAudioEnabled(on)
	log.Info().Str("module", "peer.share").Bool("enabled", on).Msg("mic toggled")
	return on
}

// ToggleCamera mutes/unmutes the local camera in place.
func (c *ShareController) ToggleCamera() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	on := !c.camera.VideoEnabled()
	c.camera.SetVideoEnabled(on)
	log.Info().Str("module", "peer.share").Bool("enabled", on).Msg("camera toggled")
	return on
}

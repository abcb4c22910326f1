package media

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const (
	synthSampleRate = 8000
	synthFrame      = 20 * time.Millisecond
	synthSamples    = synthSampleRate / 50 // samples per 20ms frame
)

// SynthDevices is a capture capability backed by generated media: a sine tone
// for audio and an idle video track. It stands in for platform capture in the
// demo CLI; real devices implement the same interface.
type SynthDevices struct {
	// SystemAudio controls whether display capture includes a system-audio track.
	SystemAudio bool
}

func (d *SynthDevices) OpenUserMedia(ctx context.Context) (Source, error) {
	return newSynthSource(ctx, "camera", 440, true)
}

func (d *SynthDevices) OpenDisplayMedia(ctx context.Context) (Source, error) {
	return newSynthSource(ctx, "screen", 660, d.SystemAudio)
}

type synthSource struct {
	video *webrtc.TrackLocalStaticSample
	audio *webrtc.TrackLocalStaticSample
	tap   chan PCM

	audioOn atomic.Bool
	videoOn atomic.Bool

	mu      sync.Mutex
	onEnded func()

	cancel   context.CancelFunc
	stopOnce sync.Once
}

func newSynthSource(ctx context.Context, name string, freq float64, withAudio bool) (*synthSource, error) {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		name+"-video", "cowatch",
	)
	if err != nil {
		return nil, err
	}
	s := &synthSource{video: video}
	s.audioOn.Store(true)
	s.videoOn.Store(true)

	ctx, s.cancel = context.WithCancel(ctx)
	if withAudio {
		s.audio, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: synthSampleRate, Channels: 1},
			name+"-audio", "cowatch",
		)
		if err != nil {
			return nil, err
		}
		s.tap = make(chan PCM, 8)
		go s.pump(ctx, freq)
	}
	log.Info().Str("module", "media.synth").Str("source", name).Bool("audio", withAudio).Msg("source opened")
	return s, nil
}

// pump generates one PCM frame per tick, feeding both the outgoing track and
// the mixer tap. A muted source keeps the cadence with silent frames.
func (s *synthSource) pump(ctx context.Context, freq float64) {
	ticker := time.NewTicker(synthFrame)
	defer ticker.Stop()
	defer close(s.tap)
	var phase float64
	step := 2 * math.Pi * freq / synthSampleRate

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame := PCM{Data: make([]int16, synthSamples), Duration: synthFrame}
		if s.audioOn.Load() {
			for i := range frame.Data {
				frame.Data[i] = int16(8000 * math.Sin(phase))
				phase += step
			}
		}
		if err := s.audio.WriteSample(media.Sample{Data: encodeMulaw(frame.Data), Duration: frame.Duration}); err != nil {
			log.Error().Err(err).Str("module", "media.synth").Msg("write audio sample, stopping")
			return
		}
		// Tap is best-effort: a stalled mixer must not block capture.
		select {
		case s.tap <- frame:
		default:
		}
	}
}

func (s *synthSource) VideoTrack() webrtc.TrackLocal { return s.video }

func (s *synthSource) AudioTrack() webrtc.TrackLocal {
	if s.audio == nil {
		return nil
	}
	return s.audio
}

func (s *synthSource) AudioSamples() <-chan PCM {
	if s.audio == nil {
		return nil
	}
	return s.tap
}

func (s *synthSource) SetAudioEnabled(on bool) { s.audioOn.Store(on) }
func (s *synthSource) SetVideoEnabled(on bool) { s.videoOn.Store(on) }
func (s *synthSource) AudioEnabled() bool      { return s.audioOn.Load() }
func (s *synthSource) VideoEnabled() bool      { return s.videoOn.Load() }

func (s *synthSource) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *synthSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		log.Info().Str("module", "media.synth").Msg("source stopped")
	})
}

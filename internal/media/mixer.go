package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// Mixer is the audio-mixing graph: two PCM inputs (microphone and system
// audio) feeding one combined output track. Its lifetime is scoped to a
// screen-share interval; at most one exists per session.
type Mixer struct {
	out    *webrtc.TrackLocalStaticSample
	sink   func(PCM) error
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

// NewMixer builds the graph and starts its pump. Both inputs must be non-nil;
// the caller only mixes when system audio is actually present.
func NewMixer(mic, system <-chan PCM) (*Mixer, error) {
	if mic == nil || system == nil {
		return nil, fmt.Errorf("mixer: both inputs required")
	}
	out, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
		"mixed-audio", "cowatch",
	)
	if err != nil {
		return nil, fmt.Errorf("mixer: create output track: %w", err)
	}
	m := newMixer(mic, system, func(f PCM) error {
		return out.WriteSample(media.Sample{Data: encodeMulaw(f.Data), Duration: f.Duration})
	})
	m.out = out
	return m, nil
}

// newMixer wires the pump to an arbitrary frame sink; tests capture frames here.
func newMixer(mic, system <-chan PCM, sink func(PCM) error) *Mixer {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mixer{sink: sink, cancel: cancel, done: make(chan struct{})}
	go m.loop(ctx, mic, system)
	return m
}

// Output is the combined track that replaces the raw microphone in the
// transport's audio sender slot.
func (m *Mixer) Output() webrtc.TrackLocal { return m.out }

// Close stops the pump. Idempotent.
func (m *Mixer) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		<-m.done
		log.Info().Str("module", "media.mixer").Msg("mixer released")
	})
}

// loop emits one combined frame per pair of input frames, so the output keeps
// the inputs' real-time cadence. A side that runs ahead flushes the pending
// pair using the slow side's last frame, so a momentarily silent input delays
// nothing; a closed input drops out of the mix entirely.
func (m *Mixer) loop(ctx context.Context, mic, system <-chan PCM) {
	defer close(m.done)
	var micFrame, sysFrame *PCM // pending since the last write
	var micLast, sysLast *PCM   // most recent frame seen per side
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-mic:
			if !ok {
				mic = nil
				if system == nil {
					return
				}
				continue
			}
			if micFrame != nil && system != nil {
				if !m.write(mixFrames(micFrame, sysLast)) {
					return
				}
			}
			micFrame, micLast = &f, &f
		case f, ok := <-system:
			if !ok {
				system = nil
				if mic == nil {
					return
				}
				continue
			}
			if sysFrame != nil && mic != nil {
				if !m.write(mixFrames(micLast, sysFrame)) {
					return
				}
			}
			sysFrame, sysLast = &f, &f
		}
		if (mic == nil || micFrame != nil) && (system == nil || sysFrame != nil) {
			if !m.write(mixFrames(micFrame, sysFrame)) {
				return
			}
			micFrame, sysFrame = nil, nil
		}
	}
}

func (m *Mixer) write(frame *PCM) bool {
	if frame == nil {
		return true
	}
	if err := m.sink(*frame); err != nil {
		log.Error().Err(err).Str("module", "media.mixer").Msg("write mixed sample, stopping")
		return false
	}
	return true
}

// mixFrames sums two PCM frames with clipping. Either side may be absent.
func mixFrames(a, b *PCM) *PCM {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return b
	case b == nil:
		return a
	}
	n := len(a.Data)
	if len(b.Data) < n {
		n = len(b.Data)
	}
	out := PCM{Data: make([]int16, n), Duration: a.Duration}
	for i := 0; i < n; i++ {
		s := int32(a.Data[i]) + int32(b.Data[i])
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		out.Data[i] = int16(s)
	}
	return &out
}

const mulawBias = 0x84

// encodeMulaw converts linear PCM16 to G.711 mu-law for the PCMU output track.
func encodeMulaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		sign := byte(0)
		v := int32(s)
		if v < 0 {
			v = -v
			sign = 0x80
		}
		v += mulawBias
		if v > 0x7FFF {
			v = 0x7FFF
		}
		exp := byte(7)
		for mask := int32(0x4000); mask != 0 && v&mask == 0; mask >>= 1 {
			exp--
		}
		mant := byte(v>>(exp+3)) & 0x0F
		out[i] = ^(sign | exp<<4 | mant)
	}
	return out
}

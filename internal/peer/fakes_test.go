package peer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/cowatch/internal/media"
	"github.com/dkeye/cowatch/internal/signaling"
)

// fakeTransport records calls, preserving operation order for assertions
// about description/track sequencing.
type fakeTransport struct {
	mu         sync.Mutex
	ops        []string
	remotes    []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	senders    []*fakeSender
	onICE      func(webrtc.ICECandidateInit)
	onState    func(webrtc.PeerConnectionState)
	remoteErr  error
	closed     bool
}

func (f *fakeTransport) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.ops = append(f.ops, "set-remote")
	f.remotes = append(f.remotes, d)
	return nil
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "create-offer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "fake-offer"}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (f *fakeTransport) AddICECandidate(init webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "add-candidate:"+init.Candidate)
	f.candidates = append(f.candidates, init)
	return nil
}

func (f *fakeTransport) AddTrack(t webrtc.TrackLocal) (Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "add-track")
	s := &fakeSender{current: t}
	f.senders = append(f.senders, s)
	return s, nil
}

func (f *fakeTransport) OnICECandidate(fn func(webrtc.ICECandidateInit)) { f.onICE = fn }

func (f *fakeTransport) OnStateChange(fn func(webrtc.PeerConnectionState)) { f.onState = fn }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) opLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeTransport) remoteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.remotes)
}

func (f *fakeTransport) candidateList() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), f.candidates...)
}

type fakeSender struct {
	mu         sync.Mutex
	current    webrtc.TrackLocal
	history    []webrtc.TrackLocal
	replaceErr error
}

func (s *fakeSender) Kind() webrtc.RTPCodecType {
	if s.current != nil {
		return s.current.Kind()
	}
	return webrtc.RTPCodecType(0)
}

func (s *fakeSender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.history = append(s.history, t)
	s.current = t
	return nil
}

func (s *fakeSender) replaceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []signaling.Envelope
}

func (f *fakeSignaler) Send(env signaling.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSignaler) envelopes() []signaling.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signaling.Envelope(nil), f.sent...)
}

func (f *fakeSignaler) byKind(kind signaling.Kind) []signaling.Envelope {
	var out []signaling.Envelope
	for _, env := range f.envelopes() {
		if env.Type == signaling.TypeSignal && env.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}

// fakeSource carries real pion local tracks so identity assertions are exact.
type fakeSource struct {
	video webrtc.TrackLocal
	audio webrtc.TrackLocal
	tap   chan media.PCM

	mu      sync.Mutex
	audioOn bool
	videoOn bool
	onEnded func()
	stopped bool
}

func newFakeSource(t *testing.T, name string, withAudio bool) *fakeSource {
	t.Helper()
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		name+"-video", "test",
	)
	if err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{video: video, audioOn: true, videoOn: true}
	if withAudio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1},
			name+"-audio", "test",
		)
		if err != nil {
			t.Fatal(err)
		}
		src.audio = audio
		src.tap = make(chan media.PCM, 4)
	}
	return src
}

func (s *fakeSource) VideoTrack() webrtc.TrackLocal { return s.video }
func (s *fakeSource) AudioTrack() webrtc.TrackLocal { return s.audio }

func (s *fakeSource) AudioSamples() <-chan media.PCM {
	if s.tap == nil {
		return nil
	}
	return s.tap
}

func (s *fakeSource) SetAudioEnabled(on bool) {
	s.mu.Lock()
	s.audioOn = on
	s.mu.Unlock()
}

func (s *fakeSource) SetVideoEnabled(on bool) {
	s.mu.Lock()
	s.videoOn = on
	s.mu.Unlock()
}

func (s *fakeSource) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioOn
}

func (s *fakeSource) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOn
}

func (s *fakeSource) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *fakeSource) fireEnded() {
	s.mu.Lock()
	fn := s.onEnded
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevices struct {
	user       *fakeSource
	display    *fakeSource
	userErr    error
	displayErr error
	userGate   chan struct{} // when set, OpenUserMedia blocks on it

	mu           sync.Mutex
	userOpens    int
	displayOpens int
}

func (d *fakeDevices) OpenUserMedia(ctx context.Context) (media.Source, error) {
	d.mu.Lock()
	d.userOpens++
	gate := d.userGate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	if d.userErr != nil {
		return nil, d.userErr
	}
	return d.user, nil
}

func (d *fakeDevices) userOpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.userOpens
}

func (d *fakeDevices) OpenDisplayMedia(ctx context.Context) (media.Source, error) {
	d.mu.Lock()
	d.displayOpens++
	d.mu.Unlock()
	if d.displayErr != nil {
		return nil, d.displayErr
	}
	return d.display, nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func candInit(n int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%d 1 udp 1 192.0.2.%d 4444 typ host", n, n)}
}

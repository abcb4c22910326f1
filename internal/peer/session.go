package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/cowatch/internal/domain"
	"github.com/dkeye/cowatch/internal/media"
	"github.com/dkeye/cowatch/internal/signaling"
)

// Role is fixed at session start: the participant who created the room
// initiates the offer.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	// StateFailed is terminal. No automatic reconnect; the embedding
	// application decides whether to start a fresh session.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "failed"
	}
}

// transportState is an internal queue item for connection health changes.
type transportState webrtc.PeerConnectionState

// Session is the client-side negotiation state machine. One instance exists
// per room membership. All inbound events go through a single queue consumed
// by one goroutine, so offer/answer/candidate ordering is deterministic no
// matter what the underlying transport does with its callbacks.
type Session struct {
	room      domain.RoomID
	role      Role
	transport Transport
	devices   media.Devices
	signaler  Signaler

	ctx    context.Context
	cancel context.CancelFunc

	events    chan any
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	state  State
	err    error
	share  *ShareController
	local  media.Source // written by the run loop, read by Close
	notify func(State, error)

	// owned by the run loop
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	attached  bool
}

type Option func(*Session)

// WithNotify registers a state-transition callback. It is invoked from the
// session's run loop; keep it fast.
func WithNotify(fn func(State, error)) Option {
	return func(s *Session) { s.notify = fn }
}

func NewSession(room domain.RoomID, role Role, tr Transport, dev media.Devices, sig Signaler, opts ...Option) *Session {
	s := &Session{
		room:      room,
		role:      role,
		transport: tr,
		devices:   dev,
		signaler:  sig,
		events:    make(chan any, 32),
		done:      make(chan struct{}),
		state:     StateIdle,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}

	// Locally gathered candidates go straight out, tagged with the room id;
	// inbound ordering is what the queue protects, not outbound trickle.
	tr.OnICECandidate(func(init webrtc.ICECandidateInit) {
		if err := s.signaler.Send(signaling.NewCandidate(s.room, init)); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("send candidate")
		}
	})
	tr.OnStateChange(func(st webrtc.PeerConnectionState) {
		s.enqueue(transportState(st))
	})

	go s.run()
	return s
}

func (s *Session) Role() Role { return s.role }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the terminal error once the session has failed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Share returns the track substitution controller, nil until local tracks
// have been attached during negotiation.
func (s *Session) Share() *ShareController {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.share
}

// Handle feeds one decoded relay event into the session queue.
// Events are processed strictly in arrival order.
func (s *Session) Handle(ev signaling.Event) {
	s.enqueue(ev)
}

func (s *Session) enqueue(ev any) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Close tears the whole session down: transport closed, local media stopped,
// mixing graph released. This is the only cancellation path mid-negotiation.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		s.mu.RLock()
		share := s.share
		local := s.local
		s.mu.RUnlock()
		if share != nil {
			share.StopScreenShare()
		}
		if local != nil {
			local.Stop()
		}
		if err := s.transport.Close(); err != nil {
			log.Error().Err(err).Str("module", "peer").Msg("transport close")
		}
		log.Info().Str("module", "peer").Str("room", string(s.room)).Msg("session closed")
	})
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

// dispatch is exhaustive over the event variants; anything else is a bug.
func (s *Session) dispatch(ev any) {
	switch ev := ev.(type) {
	case signaling.PeerJoined:
		s.onPeerJoined(ev)
	case signaling.Offer:
		s.onOffer(ev)
	case signaling.Answer:
		s.onAnswer(ev)
	case signaling.Candidate:
		s.onCandidate(ev)
	case signaling.PeerLeft:
		s.onPeerLeft(ev)
	case signaling.RoomJoined:
		log.Info().Str("module", "peer").Str("room", string(ev.Room)).Int("count", ev.Count).Msg("room joined")
	case signaling.RoomFull:
		s.fail(fmt.Errorf("join %s: %w", ev.Room, domain.ErrRoomFull))
	case transportState:
		s.onTransportState(webrtc.PeerConnectionState(ev))
	default:
		log.Error().Str("module", "peer").Type("event", ev).Msg("unhandled event variant")
	}
}

func (s *Session) onPeerJoined(ev signaling.PeerJoined) {
	log.Info().Str("module", "peer").Str("member", string(ev.Member)).Str("role", s.role.String()).Msg("peer joined")
	if s.role != RoleInitiator || s.State() == StateFailed {
		return
	}
	if err := s.ensureLocalMedia(); err != nil {
		s.fail(err)
		return
	}
	if err := s.attachTracks(); err != nil {
		s.fail(err)
		return
	}
	offer, err := s.transport.CreateOffer()
	if err != nil {
		s.fail(fmt.Errorf("create offer: %w", err))
		return
	}
	s.setState(StateConnecting)
	if err := s.signaler.Send(signaling.NewOffer(s.room, offer)); err != nil {
		s.fail(fmt.Errorf("send offer: %w", err))
	}
}

func (s *Session) onOffer(ev signaling.Offer) {
	reapply := s.State() == StateConnected
	if reapply {
		// Renegotiation: a second offer while connected is reapplied, not rejected.
		log.Info().Str("module", "peer").Msg("reapplying offer while connected")
	}
	if err := s.transport.SetRemoteDescription(ev.SDP); err != nil {
		s.fail(fmt.Errorf("apply offer: %w", err))
		return
	}
	s.markRemoteSet()

	// Local tracks must attach after the remote description is set and before
	// the answer is produced, or the answer can omit media sections.
	if err := s.ensureLocalMedia(); err != nil {
		s.fail(err)
		return
	}
	if err := s.attachTracks(); err != nil {
		s.fail(err)
		return
	}
	answer, err := s.transport.CreateAnswer()
	if err != nil {
		s.fail(fmt.Errorf("create answer: %w", err))
		return
	}
	if !reapply {
		s.setState(StateConnecting)
	}
	if err := s.signaler.Send(signaling.NewAnswer(s.room, answer)); err != nil {
		s.fail(fmt.Errorf("send answer: %w", err))
	}
}

func (s *Session) onAnswer(ev signaling.Answer) {
	if s.State() == StateIdle {
		// No offer of ours is outstanding; drop, state unchanged.
		log.Warn().Err(domain.ErrSignalingOrder).Str("module", "peer").Msg("answer without prior offer dropped")
		return
	}
	if err := s.transport.SetRemoteDescription(ev.SDP); err != nil {
		s.fail(fmt.Errorf("apply answer: %w", err))
		return
	}
	s.markRemoteSet()
}

func (s *Session) onCandidate(ev signaling.Candidate) {
	if !s.remoteSet {
		// Not applicable yet; buffer in arrival order, never drop.
		s.pending = append(s.pending, ev.Init)
		log.Debug().Str("module", "peer").Int("buffered", len(s.pending)).Msg("candidate buffered before remote description")
		return
	}
	if err := s.transport.AddICECandidate(ev.Init); err != nil {
		log.Warn().Err(err).Str("module", "peer").Msg("add candidate dropped")
	}
}

// markRemoteSet flushes buffered candidates in original arrival order the
// first time a remote description lands.
func (s *Session) markRemoteSet() {
	first := !s.remoteSet
	s.remoteSet = true
	if !first || len(s.pending) == 0 {
		return
	}
	log.Info().Str("module", "peer").Int("count", len(s.pending)).Msg("flushing buffered candidates")
	for _, init := range s.pending {
		if err := s.transport.AddICECandidate(init); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("flush candidate dropped")
		}
	}
	s.pending = nil
}

func (s *Session) onPeerLeft(ev signaling.PeerLeft) {
	log.Info().Str("module", "peer").Str("member", string(ev.Member)).Msg("peer left")
	if s.State() == StateIdle {
		return
	}
	s.fail(fmt.Errorf("%w: peer left", domain.ErrTransportFailed))
}

func (s *Session) onTransportState(st webrtc.PeerConnectionState) {
	log.Info().Str("module", "peer").Str("state", st.String()).Msg("transport state")
	switch st {
	case webrtc.PeerConnectionStateConnected:
		s.setState(StateConnected)
	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateClosed:
		s.fail(fmt.Errorf("%w: %s", domain.ErrTransportFailed, st))
	}
}

// ensureLocalMedia acquires camera+mic once per session.
func (s *Session) ensureLocalMedia() error {
	if s.local != nil {
		return nil
	}
	src, err := s.devices.OpenUserMedia(s.ctx)
	if err != nil {
		return fmt.Errorf("acquire local media: %w", err)
	}
	s.mu.Lock()
	select {
	case <-s.done:
		// Close ran while the capture grant was pending and cannot have seen
		// this source, so release it here.
		s.mu.Unlock()
		src.Stop()
		return fmt.Errorf("acquire local media: session closed")
	default:
	}
	s.local = src
	s.mu.Unlock()
	return nil
}

// attachTracks puts the local tracks into the transport's sender slots.
// Happens once; after this the ShareController owns the slots.
func (s *Session) attachTracks() error {
	if s.attached {
		return nil
	}
	videoSender, err := s.transport.AddTrack(s.local.VideoTrack())
	if err != nil {
		return fmt.Errorf("attach video: %w", err)
	}
	audioSender, err := s.transport.AddTrack(s.local.AudioTrack())
	if err != nil {
		return fmt.Errorf("attach audio: %w", err)
	}
	s.attached = true

	share := newShareController(s.devices, s.local, videoSender, audioSender)
	s.mu.Lock()
	s.share = share
	s.mu.Unlock()
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	if s.state == st || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = st
	notify := s.notify
	s.mu.Unlock()

	log.Info().Str("module", "peer").Str("from", prev.String()).Str("to", st.String()).Msg("session state")
	if notify != nil {
		notify(st, nil)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.err = err
	notify := s.notify
	s.mu.Unlock()

	log.Error().Err(err).Str("module", "peer").Str("room", string(s.room)).Msg("session failed")
	if notify != nil {
		notify(StateFailed, err)
	}
}

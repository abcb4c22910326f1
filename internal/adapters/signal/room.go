package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/cowatch/internal/core"
	"github.com/dkeye/cowatch/internal/domain"
	"github.com/dkeye/cowatch/internal/signaling"
)

func (ctl *WSController) handleJoin(mid domain.MemberID, sess core.MemberSession, c *wsConn, env signaling.Envelope) {
	roomID, err := domain.ParseRoomID(string(env.Room))
	if err != nil {
		log.Warn().Str("module", "signal").Str("member", string(mid)).Str("room", string(env.Room)).Msg("bad room id")
		ctl.sendJSON(c, signaling.Envelope{Type: signaling.TypeError, Error: "invalid room id"})
		return
	}

	count, err := ctl.Registry.Join(roomID, mid, sess)
	if errors.Is(err, domain.ErrRoomFull) {
		log.Info().Str("module", "signal").Str("member", string(mid)).Str("room", string(roomID)).Msg("join refused, room full")
		ctl.sendJSON(c, signaling.Envelope{Type: signaling.TypeRoomFull, Room: roomID})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("member", string(mid)).Msg("join")
		ctl.sendJSON(c, signaling.Envelope{Type: signaling.TypeError, Error: err.Error()})
		return
	}

	log.Info().Str("module", "signal").Str("member", string(mid)).Str("room", string(roomID)).Int("count", count).Msg("join")
	ctl.sendJSON(c, signaling.Envelope{Type: signaling.TypeRoomJoined, Room: roomID, Count: count})
	ctl.broadcast(roomID, mid, signaling.Envelope{Type: signaling.TypePeerJoined, Room: roomID, From: mid})
}

// handleLeave removes the member from its room; the connection stays open.
func (ctl *WSController) handleLeave(mid domain.MemberID, c *wsConn) {
	roomID, ok := ctl.Registry.RoomOf(mid)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("member", string(mid)).Str("room", string(roomID)).Msg("leave")
	if ctl.Registry.Leave(roomID, mid) {
		ctl.broadcast(roomID, mid, signaling.Envelope{Type: signaling.TypePeerLeft, Room: roomID, From: mid})
	}
}

// handleDisconnect is the implicit leave on transport loss.
func (ctl *WSController) handleDisconnect(mid domain.MemberID) {
	for _, roomID := range ctl.Registry.Disconnect(mid) {
		ctl.broadcast(roomID, mid, signaling.Envelope{Type: signaling.TypePeerLeft, Room: roomID, From: mid})
	}
}

// broadcast marshals once and relays to everyone in the room except from.
func (ctl *WSController) broadcast(roomID domain.RoomID, from domain.MemberID, env signaling.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	if _, err := ctl.Registry.Relay(roomID, from, data); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("broadcast skipped")
	}
}

package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/cowatch/internal/domain"
	"github.com/dkeye/cowatch/internal/signaling"
)

// handleRelay forwards a negotiation envelope to the other room member(s).
// The payload never gets decoded here; kind is logged for observability only.
func (ctl *WSController) handleRelay(mid domain.MemberID, env signaling.Envelope) {
	roomID, ok := ctl.Registry.RoomOf(mid)
	if !ok {
		log.Warn().Str("module", "signal").Str("member", string(mid)).Msg("relay from member without room")
		return
	}

	env.Room = roomID
	env.From = mid
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("relay marshal")
		return
	}

	res, err := ctl.Registry.Relay(roomID, mid, data)
	if err != nil {
		if !errors.Is(err, domain.ErrNotInRoom) {
			log.Error().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("relay")
		}
		return
	}
	log.Debug().
		Str("module", "signal").
		Str("room", string(roomID)).
		Str("from", string(mid)).
		Str("kind", string(env.Kind)).
		Int("sent_to", res.SentTo).
		Msg("relayed")
}

package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/cowatch/internal/core"
	"github.com/dkeye/cowatch/internal/domain"
	"github.com/dkeye/cowatch/internal/signaling"
)

func (ctl *WSController) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, cancel context.CancelFunc, mid domain.MemberID, sess core.MemberSession, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("member", string(mid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.handleDisconnect(mid)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("member", string(mid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("member", string(mid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(mid, sess, c, data)
		}
	}
}

// dispatch routes one inbound envelope. A malformed frame is dropped with a
// log line and never takes the registry or another room down with it.
func (ctl *WSController) dispatch(mid domain.MemberID, sess core.MemberSession, c *wsConn, data []byte) {
	var env signaling.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("member", string(mid)).Msg("bad json")
		return
	}

	switch env.Type {
	case signaling.TypeJoinRoom:
		ctl.handleJoin(mid, sess, c, env)
	case signaling.TypeLeaveRoom:
		ctl.handleLeave(mid, c)
	case signaling.TypeSignal:
		ctl.handleRelay(mid, env)
	case signaling.TypePing:
		ctl.sendJSON(c, signaling.Envelope{Type: signaling.TypePong})
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
	}
}

func (ctl *WSController) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

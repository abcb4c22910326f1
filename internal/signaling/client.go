package signaling

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is the peer's connection to the relay. It delivers decoded events in
// wire arrival order on a single channel; pings, pongs and generic error
// envelopes are handled here and never reach the session.
type Client struct {
	serverURL string
	conn      *websocket.Conn

	incoming chan Event
	outgoing chan Envelope
	done     chan struct{}

	closeOnce sync.Once
}

func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan Event, 32),
		outgoing:  make(chan Envelope, 32),
		done:      make(chan struct{}),
	}
}

// Connect dials the relay and starts the read/write pumps.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("dial signaling server: %w", err)
	}
	c.conn = conn

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	log.Info().Str("module", "signaling.client").Str("url", c.serverURL).Msg("connected")
	return nil
}

// Send queues an envelope toward the relay. Implements peer.Signaler.
func (c *Client) Send(env Envelope) error {
	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return errors.New("signaling client closed")
	}
}

// Events returns the ordered stream of decoded relay events.
// The channel closes when the connection is gone.
func (c *Client) Events() <-chan Event {
	return c.incoming
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			log.Info().Err(err).Str("module", "signaling.client").Msg("read pump done")
			return
		}
		switch env.Type {
		case TypePong:
			continue
		case TypeError:
			log.Warn().Str("module", "signaling.client").Str("error", env.Error).Msg("relay error")
			continue
		}
		ev, err := Decode(env)
		if err != nil {
			log.Warn().Err(err).Str("module", "signaling.client").Msg("undecodable envelope dropped")
			continue
		}
		// Blocking send keeps delivery in arrival order.
		select {
		case c.incoming <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Error().Err(err).Str("module", "signaling.client").Msg("write pump error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close shuts the connection down. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

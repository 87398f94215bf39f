package server

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/alimasry/go-collab-canvas/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
	sendBuffer = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	ID string

	relay *Relay
	conn  *websocket.Conn
	send  chan []byte

	// Owned by the relay goroutine.
	state          connState
	cursorLimiter  *rate.Limiter
	cursorFlushDue bool
}

func newClient(id string, relay *Relay, conn *websocket.Conn) *Client {
	return &Client{
		ID:    id,
		relay: relay,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
}

// ReadPump decodes inbound frames and submits them to the relay. Frames that
// fail to decode are logged and dropped. When the connection ends the client
// leaves the relay.
func (c *Client) ReadPump() {
	log := c.relay.log.WithField("participant", c.ID)
	defer func() {
		c.relay.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("client read error")
			}
			return
		}
		if mt != websocket.TextMessage {
			log.Debugf("non-text frame (type %d) ignored", mt)
			continue
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			reason := dropMalformed
			if errors.Is(err, protocol.ErrUnknownEvent) {
				reason = dropUnknownEvent
			}
			log.WithError(err).WithField("size", len(data)).Warn("inbound event dropped")
			c.relay.opts.Metrics.eventDropped(reason)
			continue
		}
		if !c.relay.Submit(c, ev) {
			return
		}
	}
}

// WritePump writes queued messages to the WebSocket and keeps it alive with
// pings. It exits when the relay closes the send queue.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.relay.log.WithField("participant", c.ID).WithError(err).Debug("client write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data without blocking. It reports false if the client is
// too slow and the message was dropped.
func (c *Client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendMsg(msg protocol.Message) bool {
	return c.trySend(msg.Encode())
}

// Package client is a small Go client for the canvas relay. It is used by
// the integration tests and by tools that script a participant.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alimasry/go-collab-canvas/protocol"
)

const writeWait = 10 * time.Second

// Conn is one participant connection to a relay.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

// Dial opens a websocket to url, e.g. ws://host:3001/ws?code=phrase.
// On a refused handshake the HTTP status is included in the error.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Send encodes data under event and writes it as one frame. Passing a nil
// data sends the event without a payload.
func (c *Conn) Send(event string, data any) error {
	return c.write(protocol.Message{Event: event, Data: data}.Encode())
}

// SendRaw writes a pre-encoded frame verbatim.
func (c *Conn) SendRaw(frame []byte) error {
	return c.write(frame)
}

func (c *Conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Next blocks until the next envelope arrives or the deadline of ctx passes.
// Only one goroutine may call Next at a time.
func (c *Conn) Next(ctx context.Context) (protocol.Envelope, error) {
	deadline, _ := ctx.Deadline()
	c.ws.SetReadDeadline(deadline)

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return protocol.Envelope{}, fmt.Errorf("client: decode frame: %w", err)
	}
	return env, nil
}

// NextEvent skips envelopes until one named event arrives.
func (c *Conn) NextEvent(ctx context.Context, event string) (protocol.Envelope, error) {
	for {
		env, err := c.Next(ctx)
		if err != nil {
			return env, err
		}
		if env.Event == event {
			return env, nil
		}
	}
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Package channel implements the client side of the session channel: one
// WebSocket per call carrying outbound binary audio frames and typed JSON
// control messages in both directions.
package channel

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Braham27/salesgpt/internal/call"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

type outFrame struct {
	binary  bool
	payload []byte
}

// Client is a call.DuplexChannel over gorilla/websocket. Writes are
// serialized through a single writer pump; decoded inbound messages and
// connection-state changes are delivered on Events. No reconnection is ever
// attempted: a broken transport surfaces as one terminal event.
type Client struct {
	conn   *websocket.Conn
	events chan call.ChannelEvent
	out    chan outFrame

	stopCh    chan struct{}
	closeOnce sync.Once

	// failMu guards writeErr, set by writePump before it triggers shutdown.
	// readPump is the only goroutine that sends the resulting error event and
	// the only one that closes events.
	failMu   sync.Mutex
	writeErr error
}

// Dial opens the session channel for one call. The bearer token travels as a
// query parameter; this endpoint takes no header auth. An HTTP 401/403 during
// the handshake maps to call.ErrAuthRequired, anything else to
// call.ErrConnect.
func Dial(ctx context.Context, baseURL, callID, token string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", call.ErrConnect, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/call/" + callID
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", call.ErrAuthRequired, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", call.ErrConnect, err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan call.ChannelEvent, 64),
		out:    make(chan outFrame, 128),
		stopCh: make(chan struct{}),
	}
	c.events <- call.ChannelEvent{Kind: call.EventConnected}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Events delivers decoded inbound messages and connection-state changes. The
// channel is closed after the terminal disconnect event.
func (c *Client) Events() <-chan call.ChannelEvent { return c.events }

// Send queues one JSON control message.
func (c *Client) Send(msgType string, data any) error {
	payload, err := encodeEnvelope(msgType, data)
	if err != nil {
		return err
	}
	return c.enqueue(outFrame{payload: payload})
}

// SendAudio queues one raw binary audio frame. Frames ride the same
// connection as control messages with no envelope.
func (c *Client) SendAudio(frame []byte) error {
	return c.enqueue(outFrame{binary: true, payload: frame})
}

func (c *Client) enqueue(f outFrame) error {
	select {
	case <-c.stopCh:
		return call.ErrTransport
	default:
	}
	select {
	case <-c.stopCh:
		return call.ErrTransport
	case c.out <- f:
		return nil
	default:
		// A full queue means the transport cannot keep up; dropping audio is
		// preferable to blocking the capture path.
		if f.binary {
			log.Println("channel send queue full, dropping audio frame")
			return nil
		}
		select {
		case <-c.stopCh:
			return call.ErrTransport
		case c.out <- f:
			return nil
		}
	}
}

// Close shuts the connection down. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
	return nil
}

// fail records a transport error and shuts the connection down. readPump
// reports the error when it emits the terminal events. A shutdown that is
// already underway wins.
func (c *Client) fail(err error) {
	select {
	case <-c.stopCh:
		return
	default:
	}
	c.failMu.Lock()
	if c.writeErr == nil {
		c.writeErr = err
	}
	c.failMu.Unlock()
	_ = c.Close()
}

func (c *Client) takeWriteErr() error {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	return c.writeErr
}

func (c *Client) readPump() {
	defer func() {
		werr := c.takeWriteErr()
		select {
		case <-c.stopCh:
			if werr != nil {
				c.events <- call.ChannelEvent{Kind: call.EventError, Err: werr}
				c.events <- call.ChannelEvent{Kind: call.EventDisconnected}
			}
			// otherwise an orderly close: no disconnect event
		default:
			c.events <- call.ChannelEvent{Kind: call.EventDisconnected}
		}
		close(c.events)
		_ = c.Close()
	}()
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := decodeInbound(data)
		if err != nil {
			log.Printf("dropping malformed channel message: %v", err)
			continue
		}
		select {
		case c.events <- call.ChannelEvent{Kind: call.EventMessage, Message: msg}:
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case f := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			mt := websocket.TextMessage
			if f.binary {
				mt = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(mt, f.payload); err != nil {
				c.fail(err)
				return
			}
		case <-ticker.C:
			payload, _ := encodeEnvelope(call.MsgPing, nil)
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

var _ call.DuplexChannel = (*Client)(nil)

package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Solutions are full source
	// files, so this is generous.
	maxMessageSize = 64 * 1024
)

// Client is a middleman between the websocket connection and the registry.
// It implements matchmaking.Conn so the pool and the match engine can push
// messages to the player without knowing about websockets.
type Client struct {
	Registry *Registry
	Conn     *websocket.Conn
	Send     chan []byte
	UserID   string
	Name     string
}

// Deliver queues data for the player. Never blocks: if the send buffer is
// full or the channel was closed by the registry, the message is dropped.
func (c *Client) Deliver(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("dropped message to closed connection", "tag", "ws", "user", c.UserID)
		}
	}()
	select {
	case c.Send <- data:
	default:
	}
}

// Close tears down the underlying connection. The read pump then unwinds
// and runs the normal disconnect path.
func (c *Client) Close() {
	c.Conn.Close()
}

// ReadPump pumps messages from the websocket connection to the engine.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Registry.drop(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "tag", "ws", "user", c.UserID, "err", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var envelope InboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.sendError("Invalid message format.")
		return
	}

	switch envelope.Type {
	case "VERIFY_SOLUTION":
		c.handleVerifySolution(envelope.Raw)
	case "SURRENDER":
		c.handleSurrender(envelope.Raw)
	default:
		c.sendError("Unknown message type: " + envelope.Type)
	}
}

func (c *Client) handleVerifySolution(raw json.RawMessage) {
	var msg VerifySolutionMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.MatchID == "" {
		c.sendError("Invalid VERIFY_SOLUTION message.")
		return
	}

	// Judging can take up to a minute; run it off the read pump so pings
	// keep flowing and a disconnect is still observed promptly.
	go func() {
		if err := c.Registry.Engine.HandleSolution(c.UserID, msg.MatchID, msg.Solution); err != nil {
			c.sendError(err.Error())
		}
	}()
}

func (c *Client) handleSurrender(raw json.RawMessage) {
	var msg SurrenderMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.MatchID == "" {
		c.sendError("Invalid SURRENDER message.")
		return
	}

	if err := c.Registry.Engine.HandleSurrender(c.UserID, msg.MatchID); err != nil {
		c.sendError(err.Error())
	}
}

func (c *Client) sendError(message string) {
	msg := ErrorMsg{Type: "ERROR", Message: message}
	data, _ := json.Marshal(msg)
	c.Deliver(data)
}

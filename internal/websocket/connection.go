package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/switchboardhq/switchboard/internal/cherr"
	"github.com/switchboardhq/switchboard/internal/hub"
	"github.com/switchboardhq/switchboard/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 512 * 1024
	closeGraceWait = time.Second
)

// Connection pairs one WebSocket with its hub connection. The read loop
// parses and dispatches client frames; the write loop drains the hub queue.
// Neither loop touches the other's side of the socket.
type Connection struct {
	ws     *websocket.Conn
	hc     *hub.Conn
	server *Server
}

// NewConnection wraps an upgraded socket for an authenticated user.
func NewConnection(ws *websocket.Conn, hc *hub.Conn, server *Server) *Connection {
	return &Connection{ws: ws, hc: hc, server: server}
}

// ReadLoop reads frames until the socket closes or ctx is done. Malformed
// and rejected frames produce an error frame for this client; the loop
// keeps going. Only transport failures end it.
func (c *Connection) ReadLoop(ctx context.Context) error {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.hc.Done():
			return nil
		default:
		}

		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				return fmt.Errorf("read: %w", err)
			}
			return nil
		}

		if err := c.server.limiter.Allow(string(c.hc.ID())); err != nil {
			c.sendError("rate limit exceeded, slow down")
			continue
		}

		var frame types.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("malformed frame")
			continue
		}

		c.dispatch(ctx, frame)
	}
}

// dispatch routes one parsed client frame. Every reject path answers with an
// error frame so the client is never left guessing.
func (c *Connection) dispatch(ctx context.Context, frame types.ClientFrame) {
	switch frame.Type {
	case types.ClientSubscribe:
		c.handleSubscribe(ctx, frame.ChatID)
	case types.ClientUnsubscribe:
		c.handleUnsubscribe(frame.ChatID)
	case types.ClientMessage:
		c.handleMessage(ctx, frame)
	case types.ClientTyping:
		c.handleTyping(frame)
	default:
		c.sendError(fmt.Sprintf("unknown frame type %q", frame.Type))
	}
}

// handleSubscribe attaches this connection to a chat's subscriber set.
// Membership is checked against the store; non-members get the same answer
// as a chat that does not exist.
func (c *Connection) handleSubscribe(ctx context.Context, chatID string) {
	if chatID == "" {
		c.sendError("subscribe requires chat_id")
		return
	}

	member, err := c.server.store.IsMember(ctx, chatID, c.hc.UserID())
	if err != nil {
		c.server.log.Error("membership check failed", "chat_id", chatID, "error", err)
		c.sendError("internal error")
		return
	}
	if !member {
		c.sendError(fmt.Sprintf("chat %s not found", chatID))
		return
	}

	if err := c.server.registry.Subscribe(c.hc.ID(), chatID); err != nil {
		// The router tore this connection down while the frame was in
		// flight; the read loop exits on the closed socket.
		return
	}
	_ = c.server.router.SendToConnection(c.hc.ID(), types.Subscribed(chatID))
}

// handleUnsubscribe detaches from a chat. Always acked, subscribed or not.
func (c *Connection) handleUnsubscribe(chatID string) {
	if chatID == "" {
		c.sendError("unsubscribe requires chat_id")
		return
	}
	c.server.index.Unsubscribe(c.hc.ID(), chatID)
	_ = c.server.router.SendToConnection(c.hc.ID(), types.Unsubscribed(chatID))
}

// handleMessage hands the prompt to the coordinator. Model completions
// arrive later through the hub; only rejects are reported here.
func (c *Connection) handleMessage(ctx context.Context, frame types.ClientFrame) {
	if frame.ChatID == "" {
		c.sendError("message requires chat_id")
		return
	}

	_, err := c.server.coord.Submit(ctx, c.hc.UserID(), frame.ChatID, frame.Content, frame.Models)
	if err != nil {
		if cherr.KindOf(err) == cherr.Internal {
			c.server.log.Error("submit failed", "chat_id", frame.ChatID, "user_id", c.hc.UserID(), "error", err)
		}
		c.sendError(cherr.Public(err))
	}
}

// handleTyping relays typing state to the chat's subscribers. Requires an
// active subscription; typing is ephemeral and never persisted.
func (c *Connection) handleTyping(frame types.ClientFrame) {
	if frame.ChatID == "" {
		c.sendError("typing requires chat_id")
		return
	}
	if !c.server.index.IsSubscribed(c.hc.ID(), frame.ChatID) {
		c.sendError(fmt.Sprintf("not subscribed to chat %s", frame.ChatID))
		return
	}
	_ = c.server.router.BroadcastToChat(frame.ChatID, types.Typing(frame.ChatID, c.hc.UserID(), frame.IsTyping))
}

// sendError queues an error frame for this client only.
func (c *Connection) sendError(message string) {
	_ = c.server.router.SendToConnection(c.hc.ID(), types.Error(message))
}

// WriteLoop drains the hub queue onto the socket and keeps the connection
// alive with pings. It owns all writes to the socket.
func (c *Connection) WriteLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-c.hc.Done():
			c.writeClose()
			return nil

		case data := <-c.hc.Outbound():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write: %w", err)
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// writeClose sends a close frame explaining the teardown. A connection
// dropped for queue overflow gets a policy violation close so the client
// knows a reconnect is wanted.
func (c *Connection) writeClose() {
	code := websocket.CloseNormalClosure
	text := ""
	if err := c.hc.Err(); err != nil && cherr.KindOf(err) == cherr.Backpressure {
		code = websocket.ClosePolicyViolation
		text = "outbound queue overflow"
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(closeGraceWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

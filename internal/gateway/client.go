package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/chat"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/presence"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/syncer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one attached device session.
type Client struct {
	hub     *Hub
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	lease   *presence.Lease

	userID      string
	displayName string
	sessionID   string
}

// inbound is a frame received from a device.
type inbound struct {
	Type        string `json:"type"`
	ChatID      string `json:"chat_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	Body        string `json:"body,omitempty"`
	MediaRef    string `json:"media_ref,omitempty"`
	Typing      bool   `json:"typing,omitempty"`
}

// readPump consumes frames from the device until the connection drops.
// The deferred lease release is the disconnect fallback: it runs for a
// clean close, a network fault, or a crashed device alike.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.lease.Release()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gateway.logger.Warn("websocket read failed",
					zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.gateway.logger.Warn("bad inbound frame",
				zap.String("user_id", c.userID), zap.Error(err))
			continue
		}
		c.handle(ctx, in)
	}
}

func (c *Client) handle(ctx context.Context, in inbound) {
	switch in.Type {
	case "send":
		_, err := c.gateway.syncer.OnSend(ctx, syncSendInput(c, in))
		if err != nil {
			c.gateway.logger.Warn("send failed",
				zap.String("user_id", c.userID), zap.Error(err))
			c.sendError("send_failed", in)
		}
	case "open":
		if err := c.gateway.syncer.OnChatOpened(ctx, c.userID, in.ChatID); err != nil {
			c.gateway.logger.Warn("open chat failed",
				zap.String("user_id", c.userID),
				zap.String("chat_id", in.ChatID), zap.Error(err))
		}
	case "read":
		if !c.memberOf(in.ChatID) {
			c.rejectFrame("read", in)
			return
		}
		msg, err := c.hub.db.GetMessage(in.ChatID, in.MessageID)
		if err != nil || msg.SenderID == c.userID {
			// A receipt only exists for the recipient's copy; the
			// sender cannot stamp their own message.
			c.rejectFrame("read", in)
			return
		}
		err = c.gateway.machine.MarkRead(ctx, in.ChatID, in.MessageID, c.userID, time.Now().UnixMilli())
		if err != nil {
			c.gateway.logger.Warn("read ack failed",
				zap.String("user_id", c.userID),
				zap.String("message_id", in.MessageID), zap.Error(err))
		}
	case "typing":
		if !c.memberOf(in.ChatID) {
			c.rejectFrame("typing", in)
			return
		}
		c.gateway.bus.Emit(bus.KindTyping, bus.TypingEvent{
			ChatID: in.ChatID,
			UserID: c.userID,
			Typing: in.Typing,
		})
	default:
		c.gateway.logger.Debug("unknown inbound frame type",
			zap.String("type", in.Type), zap.String("user_id", c.userID))
	}
}

// memberOf reports whether this client's user belongs to the chat.
// Frames naming chats the user is not in are dropped: a device must
// never move delivery state, or surface typing, in someone else's
// conversation.
func (c *Client) memberOf(chatID string) bool {
	ch, err := c.hub.db.GetChat(chatID)
	if err != nil {
		return false
	}
	return chat.IsParticipant(ch, c.userID)
}

func (c *Client) rejectFrame(frameType string, in inbound) {
	c.gateway.logger.Warn("inbound frame rejected",
		zap.String("type", frameType),
		zap.String("user_id", c.userID),
		zap.String("chat_id", in.ChatID))
}

func (c *Client) sendError(code string, in inbound) {
	payload, err := json.Marshal(Frame{
		Kind: "error",
		At:   time.Now().UnixMilli(),
		Data: map[string]string{"code": code, "chat_id": in.ChatID},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func syncSendInput(c *Client, in inbound) syncer.SendInput {
	return syncer.SendInput{
		SenderID:    c.userID,
		SenderName:  c.displayName,
		RecipientID: in.RecipientID,
		Body:        in.Body,
		MediaRef:    in.MediaRef,
	}
}

// writePump pushes queued frames and keepalive pings to the device.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

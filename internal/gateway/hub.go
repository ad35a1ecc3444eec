// Package gateway attaches device sessions over WebSocket. The
// connection doubles as the presence liveness channel: an upgrade
// takes a session lease, and the read pump releases it when the
// connection drops, clean sign-off or not.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

// Frame is the outbound wire envelope pushed to attached devices.
type Frame struct {
	Kind string `json:"kind"`
	At   int64  `json:"at"`
	Data any    `json:"data"`
}

// Hub tracks connected clients per user and fans bus events out to the
// devices that should see them.
type Hub struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	mu          sync.RWMutex
	userClients map[string]map[*Client]bool
}

// NewHub creates a hub.
func NewHub(db *store.DB, b *bus.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		db:          db,
		bus:         b,
		logger:      logger,
		userClients: make(map[string]map[*Client]bool),
	}
}

// Run subscribes to domain events and routes them until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	ch, unsub := h.bus.Subscribe("", 512)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				h.route(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops event routing.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Register attaches a client to its user's fan-out set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.userClients[c.userID] == nil {
		h.userClients[c.userID] = make(map[*Client]bool)
	}
	h.userClients[c.userID][c] = true
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Info("client registered",
			zap.String("user_id", c.userID), zap.String("session_id", c.sessionID))
	}
}

// Unregister detaches a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if clients, ok := h.userClients[c.userID]; ok {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
			if len(clients) == 0 {
				delete(h.userClients, c.userID)
			}
		}
	}
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Info("client unregistered",
			zap.String("user_id", c.userID), zap.String("session_id", c.sessionID))
	}
}

// route decides which users should see the event and pushes a frame to
// each of their connected devices.
func (h *Hub) route(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case bus.MessageEvent:
		h.sendToChatParticipants(evt, p.ChatID)
	case bus.ChatUpdatedEvent:
		h.sendToChatParticipants(evt, p.ChatID)
	case bus.TypingEvent:
		h.sendToChatParticipants(evt, p.ChatID)
	case bus.CounterEvent:
		h.sendToUser(p.UserID, evt)
	case bus.NotificationEvent:
		h.sendToUser(p.RecipientID, evt)
	case bus.PresenceEvent:
		h.broadcast(evt)
	}
}

func (h *Hub) sendToChatParticipants(evt bus.Event, chatID string) {
	c, err := h.db.GetChat(chatID)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("chat lookup for fan-out failed",
				zap.String("chat_id", chatID), zap.Error(err))
		}
		return
	}
	h.sendToUser(c.UserA, evt)
	h.sendToUser(c.UserB, evt)
}

func (h *Hub) sendToUser(userID string, evt bus.Event) {
	payload := marshalFrame(evt)
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.userClients[userID] {
		select {
		case client.send <- payload:
		default:
			// Slow consumer; drop the frame rather than block the hub.
		}
	}
}

func (h *Hub) broadcast(evt bus.Event) {
	payload := marshalFrame(evt)
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.userClients {
		for client := range clients {
			select {
			case client.send <- payload:
			default:
			}
		}
	}
}

func marshalFrame(evt bus.Event) []byte {
	at := evt.Timestamp.UnixMilli()
	if evt.Timestamp.IsZero() {
		at = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(Frame{Kind: evt.Kind, At: at, Data: evt.Payload})
	if err != nil {
		return nil
	}
	return payload
}

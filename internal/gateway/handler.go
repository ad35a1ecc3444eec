package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/auth"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/delivery"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/presence"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/syncer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway wires WebSocket sessions to the delivery core.
type Gateway struct {
	hub      *Hub
	syncer   *syncer.Synchronizer
	machine  *delivery.Machine
	presence *presence.Store
	tokens   *auth.Tokens
	bus      *bus.Bus
	logger   *zap.Logger
}

// New creates a gateway.
func New(hub *Hub, sync *syncer.Synchronizer, machine *delivery.Machine,
	pres *presence.Store, tokens *auth.Tokens, b *bus.Bus, logger *zap.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		syncer:   sync,
		machine:  machine,
		presence: pres,
		tokens:   tokens,
		bus:      b,
		logger:   logger,
	}
}

// ServeWS authenticates the request, upgrades it, and attaches the
// device session. Going online is tied to the upgrade succeeding.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := g.tokens.Validate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed",
			zap.String("user_id", claims.UserID), zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	client := &Client{
		hub:         g.hub,
		gateway:     g,
		conn:        conn,
		send:        make(chan []byte, 256),
		userID:      claims.UserID,
		displayName: claims.DisplayName,
		sessionID:   sessionID,
	}

	// Register before going online: presence.online triggers the
	// reconnect sweep, and the frames it produces must find this
	// device already attached.
	g.hub.Register(client)
	lease, err := g.presence.GoOnline(r.Context(), claims.UserID, sessionID)
	if err != nil {
		g.logger.Error("presence registration failed",
			zap.String("user_id", claims.UserID), zap.Error(err))
		g.hub.Unregister(client)
		conn.Close()
		return
	}
	client.lease = lease

	// The request context dies with this handler; the pumps outlive it.
	go client.writePump()
	go client.readPump(context.Background())
}

// bearerToken extracts the JWT from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

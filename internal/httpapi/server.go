// Package httpapi exposes the delivery core over REST. Devices use it
// for history, chat lists, privacy settings, and per-user deletion;
// the live path (sends, receipts, typing) normally rides the WebSocket
// gateway, but sending is mirrored here for clients without a socket.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/auth"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/delivery"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/gateway"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/presence"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/syncer"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/unread"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/visibility"
)

// Server holds the handlers' dependencies.
type Server struct {
	db       *store.DB
	syncer   *syncer.Synchronizer
	machine  *delivery.Machine
	presence *presence.Store
	counter  *unread.Counter
	overlay  *visibility.Overlay
	tokens   *auth.Tokens
	gateway  *gateway.Gateway
	logger   *zap.Logger
}

// New creates the API server.
func New(db *store.DB, sync *syncer.Synchronizer, machine *delivery.Machine,
	pres *presence.Store, counter *unread.Counter, overlay *visibility.Overlay,
	tokens *auth.Tokens, gw *gateway.Gateway, logger *zap.Logger) *Server {
	return &Server{
		db:       db,
		syncer:   sync,
		machine:  machine,
		presence: pres,
		counter:  counter,
		overlay:  overlay,
		tokens:   tokens,
		gateway:  gw,
		logger:   logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		if s.gateway != nil {
			r.Get("/ws", s.gateway.ServeWS)
		}

		r.Post("/api/messages", s.handleSend)
		r.Get("/api/chats", s.handleListChats)
		r.Get("/api/chats/{chatID}/messages", s.handleHistory)
		r.Post("/api/chats/{chatID}/open", s.handleOpenChat)
		r.Post("/api/chats/{chatID}/clear", s.handleClearChat)
		r.Delete("/api/chats/{chatID}", s.handleDeleteChat)
		r.Delete("/api/chats/{chatID}/messages/{messageID}", s.handleDeleteMessage)
		r.Get("/api/users/{userID}/presence", s.handlePresence)
		r.Get("/api/privacy", s.handleGetPrivacy)
		r.Put("/api/privacy", s.handlePutPrivacy)
		r.Post("/api/blocks/{userID}", s.handleBlock)
		r.Delete("/api/blocks/{userID}", s.handleUnblock)
	})

	return r
}

type ctxKey int

const claimsKey ctxKey = 0

// authenticate validates the bearer token and stashes the claims.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); h != "" {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := s.tokens.Validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func callerClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return claims
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

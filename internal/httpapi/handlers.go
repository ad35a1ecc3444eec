package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/chat"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/syncer"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/unread"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type tokenRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}
	token, err := s.tokens.Generate(req.UserID, req.DisplayName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type sendRequest struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
	MediaRef    string `json:"media_ref,omitempty"`
}

type messageView struct {
	ChatID    string `json:"chat_id"`
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Body      string `json:"body"`
	MediaRef  string `json:"media_ref,omitempty"`
	CreatedAt int64  `json:"created_at"`
	Status    string `json:"status,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipientID == "" {
		writeError(w, http.StatusBadRequest, "recipient_id required")
		return
	}
	if req.RecipientID == claims.UserID {
		writeError(w, http.StatusBadRequest, "cannot message yourself")
		return
	}
	if req.Body == "" && req.MediaRef == "" {
		writeError(w, http.StatusBadRequest, "empty message")
		return
	}

	msg, err := s.syncer.OnSend(r.Context(), syncer.SendInput{
		SenderID:    claims.UserID,
		SenderName:  claims.DisplayName,
		RecipientID: req.RecipientID,
		Body:        req.Body,
		MediaRef:    req.MediaRef,
	})
	if err != nil {
		s.logger.Warn("send failed", zap.String("user_id", claims.UserID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "message not sent")
		return
	}
	writeJSON(w, http.StatusCreated, messageView{
		ChatID:    msg.ChatID,
		ID:        msg.ID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		MediaRef:  msg.MediaRef,
		CreatedAt: msg.CreatedAt,
	})
}

type chatView struct {
	ID                 string `json:"id"`
	PeerID             string `json:"peer_id"`
	LastMessageID      string `json:"last_message_id,omitempty"`
	LastMessageSender  string `json:"last_message_sender,omitempty"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
	LastMessageAt      int64  `json:"last_message_at,omitempty"`
	LastMessageStatus  string `json:"last_message_status,omitempty"`
	Unread             string `json:"unread,omitempty"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	chats, err := s.db.ListChatsFor(claims.UserID, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "chat list failed")
		return
	}

	views := make([]chatView, 0, len(chats))
	for i := range chats {
		c := &chats[i]
		peer, err := chat.Peer(c, claims.UserID)
		if err != nil {
			continue
		}
		if c.LastMessageID != "" {
			probe := &store.Message{ChatID: c.ID, ID: c.LastMessageID, CreatedAt: c.LastMessageAt}
			visible, err := s.overlay.IsVisible(claims.UserID, probe)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "chat list failed")
				return
			}
			if !visible {
				continue
			}
		}

		v := chatView{
			ID:                 c.ID,
			PeerID:             peer,
			LastMessageID:      c.LastMessageID,
			LastMessageSender:  c.LastMessageSender,
			LastMessagePreview: c.LastMessagePreview,
			LastMessageAt:      c.LastMessageAt,
		}
		if c.LastMessageSender == claims.UserID && c.LastMessageID != "" {
			msg, err := s.db.GetMessage(c.ID, c.LastMessageID)
			if err == nil {
				status, serr := s.machine.StatusFor(r.Context(), msg, claims.UserID, peer)
				if serr == nil {
					v.LastMessageStatus = string(status)
				}
			}
		}
		if count, err := s.counter.Get(claims.UserID, c.ID); err == nil && count > 0 {
			v.Unread = unread.Display(count)
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	c, ok := s.participantChat(w, r, claims.UserID)
	if !ok {
		return
	}

	before := int64(0)
	if raw := r.URL.Query().Get("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad before cursor")
			return
		}
		before = v
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "bad limit")
			return
		}
		limit = min(v, maxHistoryLimit)
	}

	msgs, err := s.db.ListMessages(c.ID, before, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history failed")
		return
	}
	msgs, err = s.overlay.FilterVisible(claims.UserID, c.ID, msgs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history failed")
		return
	}

	peer, _ := chat.Peer(c, claims.UserID)
	views := make([]messageView, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		v := messageView{
			ChatID:    m.ChatID,
			ID:        m.ID,
			SenderID:  m.SenderID,
			Body:      m.Body,
			MediaRef:  m.MediaRef,
			CreatedAt: m.CreatedAt,
		}
		if m.SenderID == claims.UserID {
			if status, err := s.machine.StatusFor(r.Context(), m, claims.UserID, peer); err == nil {
				v.Status = string(status)
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleOpenChat(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	if _, ok := s.participantChat(w, r, claims.UserID); !ok {
		return
	}
	if err := s.syncer.OnChatOpened(r.Context(), claims.UserID, chi.URLParam(r, "chatID")); err != nil {
		writeError(w, http.StatusInternalServerError, "open failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	c, ok := s.participantChat(w, r, claims.UserID)
	if !ok {
		return
	}
	if err := s.overlay.DeleteChatForUser(claims.UserID, c.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	c, ok := s.participantChat(w, r, claims.UserID)
	if !ok {
		return
	}
	if err := s.overlay.ClearForUser(claims.UserID, c.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	c, ok := s.participantChat(w, r, claims.UserID)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")
	if _, err := s.db.GetMessage(c.ID, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if err := s.overlay.DeleteMessageForUser(claims.UserID, c.ID, messageID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type presenceView struct {
	UserID     string `json:"user_id"`
	Online     bool   `json:"online"`
	LastSeenAt int64  `json:"last_seen_at,omitempty"`
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	target := chi.URLParam(r, "userID")

	blocked, err := s.overlay.Suppressed(r.Context(), claims.UserID, target)
	if err == nil && blocked {
		// Blocked pairs see each other as plain offline.
		writeJSON(w, http.StatusOK, presenceView{UserID: target, Online: false})
		return
	}

	settings, err := s.db.GetPrivacySettings(target)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "presence lookup failed")
		return
	}
	rec, err := s.presence.LastSeen(claims.UserID, target, settings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "presence lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, presenceView{
		UserID:     target,
		Online:     rec.IsOnline,
		LastSeenAt: rec.LastSeenAt,
	})
}

type privacyView struct {
	ReadReceiptsEnabled  bool `json:"read_receipts_enabled"`
	LastSeenEnabled      bool `json:"last_seen_enabled"`
	NotificationsEnabled bool `json:"notifications_enabled"`
}

func (s *Server) handleGetPrivacy(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	p, err := s.db.GetPrivacySettings(claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "privacy lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, privacyView{
		ReadReceiptsEnabled:  p.ReadReceiptsEnabled,
		LastSeenEnabled:      p.LastSeenEnabled,
		NotificationsEnabled: p.NotificationsEnabled,
	})
}

func (s *Server) handlePutPrivacy(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	var req privacyView
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	err := s.db.UpsertPrivacySettings(&store.PrivacySettings{
		UserID:               claims.UserID,
		ReadReceiptsEnabled:  req.ReadReceiptsEnabled,
		LastSeenEnabled:      req.LastSeenEnabled,
		NotificationsEnabled: req.NotificationsEnabled,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "privacy update failed")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	s.setBlock(w, r, true)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	s.setBlock(w, r, false)
}

func (s *Server) setBlock(w http.ResponseWriter, r *http.Request, blocked bool) {
	claims := callerClaims(r)
	target := chi.URLParam(r, "userID")
	if target == "" || target == claims.UserID {
		writeError(w, http.StatusBadRequest, "bad target user")
		return
	}
	if err := s.db.SetBlocked(claims.UserID, target, blocked); err != nil {
		writeError(w, http.StatusInternalServerError, "block update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// participantChat loads the chat from the URL and verifies the caller
// belongs to it. Non-participants get 404, not 403: the existence of a
// chat between two other users is not theirs to learn.
func (s *Server) participantChat(w http.ResponseWriter, r *http.Request, userID string) (*store.Chat, bool) {
	chatID := chi.URLParam(r, "chatID")
	c, err := s.db.GetChat(chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "chat lookup failed")
		return nil, false
	}
	if !chat.IsParticipant(c, userID) {
		writeError(w, http.StatusNotFound, "chat not found")
		return nil, false
	}
	return c, true
}

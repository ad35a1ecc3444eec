// Package syncer coordinates the delivery core: on send, on presence
// transitions and on read acknowledgement it drives the state machine,
// the unread counters and the notification queue. It keeps no state of
// its own beyond in-flight bookkeeping.
package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/chat"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/delivery"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/notify"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/presence"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/profile"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/unread"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/visibility"
)

// Synchronizer wires the delivery state machine, presence store,
// unread counters, notification queue and visibility overlay together.
type Synchronizer struct {
	db         *store.DB
	machine    *delivery.Machine
	presence   *presence.Store
	counter    *unread.Counter
	queue      *notify.Queue
	overlay    *visibility.Overlay
	profiles   profile.Source
	dispatcher notify.Dispatcher
	bus        *bus.Bus
	logger     *zap.Logger
	cancel     context.CancelFunc
}

// New creates a synchronizer.
func New(
	db *store.DB,
	machine *delivery.Machine,
	pres *presence.Store,
	counter *unread.Counter,
	queue *notify.Queue,
	overlay *visibility.Overlay,
	profiles profile.Source,
	dispatcher notify.Dispatcher,
	b *bus.Bus,
	logger *zap.Logger,
) *Synchronizer {
	return &Synchronizer{
		db:         db,
		machine:    machine,
		presence:   pres,
		counter:    counter,
		queue:      queue,
		overlay:    overlay,
		profiles:   profiles,
		dispatcher: dispatcher,
		bus:        b,
		logger:     logger,
	}
}

// Start subscribes to presence transitions: every offline -> online
// flip triggers the reconnect sweep for that user.
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe(bus.KindPresenceOnline, 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				p, ok := evt.Payload.(bus.PresenceEvent)
				if !ok {
					continue
				}
				if err := s.OnUserCameOnline(ctx, p.UserID); err != nil {
					s.logf("reconnect sweep failed", zap.String("user_id", p.UserID), zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the presence subscription.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// SendInput carries one outgoing message.
type SendInput struct {
	SenderID    string
	SenderName  string
	RecipientID string
	Body        string
	MediaRef    string
}

// OnSend records the message, refreshes the chat, checks the
// recipient's presence, and either marks the message delivered
// immediately or queues a notification. A send whose store write fails
// returns the error: the caller must show "not sent". Failures past
// that point (presence check, notification, counter) are logged and
// invisible to the sender; Sent is always a safe resting state.
func (s *Synchronizer) OnSend(ctx context.Context, in SendInput) (*store.Message, error) {
	if _, err := s.db.EnsureChat(chat.New(in.SenderID, in.RecipientID)); err != nil {
		return nil, err
	}
	chatID := chat.PairID(in.SenderID, in.RecipientID)

	msg := &store.Message{
		ChatID:   chatID,
		ID:       uuid.NewString(),
		SenderID: in.SenderID,
		Body:     in.Body,
		MediaRef: in.MediaRef,
	}
	if err := s.machine.RecordSent(ctx, msg); err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Emit(bus.KindChatUpdated, bus.ChatUpdatedEvent{
			ChatID:        chatID,
			LastMessageID: msg.ID,
			LastMessageAt: msg.CreatedAt,
		})
	}

	suppressed, err := s.overlay.Suppressed(ctx, in.SenderID, in.RecipientID)
	if err != nil {
		s.logf("block check failed", zap.String("chat_id", chatID), zap.Error(err))
	}
	if suppressed {
		// The message rests in the log; the blocked pair exchanges no
		// delivery marks, notifications or unread counts.
		return msg, nil
	}

	online, err := s.presence.IsOnline(ctx, in.RecipientID)
	if err != nil {
		// Includes ErrCheckTimeout: never assume online.
		s.logf("presence check failed, treating recipient offline",
			zap.String("recipient_id", in.RecipientID), zap.Error(err))
		online = false
	}

	if online {
		if err := s.machine.MarkDelivered(ctx, chatID, msg.ID, in.RecipientID, time.Now().UnixMilli()); err != nil {
			s.logf("immediate delivery mark failed",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
	} else {
		entry := &store.NotificationEntry{
			RecipientID: in.RecipientID,
			ChatID:      chatID,
			SenderID:    in.SenderID,
			SenderName:  in.SenderName,
			Preview:     store.Truncate(in.Body, 100),
		}
		if err := s.queue.Enqueue(ctx, entry); err != nil {
			// Best-effort: the message stays correctly tracked as Sent.
			s.logf("notification enqueue failed",
				zap.String("recipient_id", in.RecipientID), zap.Error(err))
		}
	}

	s.dispatchPush(ctx, in, msg)

	if _, err := s.counter.Increment(in.RecipientID, chatID, 1); err != nil {
		s.logf("unread increment failed",
			zap.String("recipient_id", in.RecipientID),
			zap.String("chat_id", chatID), zap.Error(err))
	}
	return msg, nil
}

// dispatchPush hands the message to the push collaborator when the
// recipient allows notifications, regardless of the online/offline
// path. Failures are logged only.
func (s *Synchronizer) dispatchPush(ctx context.Context, in SendInput, msg *store.Message) {
	settings, err := s.profiles.PrivacySettings(ctx, in.RecipientID)
	if err != nil {
		s.logf("privacy settings read failed",
			zap.String("recipient_id", in.RecipientID), zap.Error(err))
		return
	}
	if !settings.NotificationsEnabled {
		return
	}
	err = s.dispatcher.Dispatch(ctx, notify.Payload{
		RecipientID: in.RecipientID,
		ChatID:      msg.ChatID,
		SenderID:    in.SenderID,
		SenderName:  in.SenderName,
		Preview:     store.Truncate(in.Body, 100),
		CreatedAt:   msg.CreatedAt,
	})
	if err != nil {
		s.logf("push dispatch failed",
			zap.String("recipient_id", in.RecipientID), zap.Error(err))
	}
}

// OnUserCameOnline runs the reconnect sweep: every message addressed
// to the user still lacking a delivery stamp transitions to Delivered,
// in creation order per chat so the coarse chat status ends on the
// latest message's true state. Queued notifications are then drained.
// The sweep is idempotent and safe to re-drive if interrupted.
func (s *Synchronizer) OnUserCameOnline(ctx context.Context, userID string) error {
	msgs, err := s.db.UndeliveredForRecipient(userID)
	if err != nil {
		return err
	}

	blockedChats := make(map[string]bool)
	for _, m := range msgs {
		blocked, known := blockedChats[m.ChatID]
		if !known {
			var berr error
			blocked, berr = s.overlay.Suppressed(ctx, m.SenderID, userID)
			if berr != nil {
				s.logf("block check failed during sweep", zap.String("chat_id", m.ChatID), zap.Error(berr))
				blocked = false
			}
			blockedChats[m.ChatID] = blocked
		}
		if blocked {
			continue
		}
		if err := s.machine.MarkDelivered(ctx, m.ChatID, m.ID, userID, time.Now().UnixMilli()); err != nil {
			s.logf("sweep delivery mark failed",
				zap.String("message_id", m.ID), zap.Error(err))
		}
	}

	drained, err := s.queue.Drain(ctx, userID)
	if err != nil {
		return err
	}
	if drained > 0 {
		s.logf("notifications drained", zap.String("user_id", userID), zap.Int("count", drained))
	}
	return nil
}

// OnChatOpened resets the user's unread counter and marks the other
// participant's visible unread messages as read, subject to the
// user's read-receipt privacy gating inside the state machine.
func (s *Synchronizer) OnChatOpened(ctx context.Context, userID, chatID string) error {
	c, err := s.db.GetChat(chatID)
	if err != nil {
		return err
	}
	if !chat.IsParticipant(c, userID) {
		return errors.New("not a participant")
	}

	if err := s.counter.Reset(userID, chatID); err != nil {
		return err
	}

	msgs, err := s.db.UnreadFromPeer(chatID, userID)
	if err != nil {
		return err
	}
	msgs, err = s.overlay.FilterVisible(userID, chatID, msgs)
	if err != nil {
		return err
	}
	at := time.Now().UnixMilli()
	for _, m := range msgs {
		if err := s.machine.MarkRead(ctx, m.ChatID, m.ID, userID, at); err != nil {
			s.logf("read mark failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Synchronizer) logf(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Warn(msg, fields...)
	}
}

// Package visibility layers per-user delete/clear tombstones over the
// shared message log. The log itself is never mutated: hiding is a
// read-time join against the user's markers.
package visibility

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/profile"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

// Overlay answers "may this user see this message" from tombstones and
// block relationships.
type Overlay struct {
	db       *store.DB
	profiles profile.Source
	logger   *zap.Logger
}

// NewOverlay creates a visibility overlay.
func NewOverlay(db *store.DB, profiles profile.Source, logger *zap.Logger) *Overlay {
	return &Overlay{db: db, profiles: profiles, logger: logger}
}

// DeleteChatForUser hides the chat's current history for one user.
// Messages created after the stamp become visible again going forward.
func (o *Overlay) DeleteChatForUser(userID, chatID string) error {
	return o.db.StampTombstone(&store.Tombstone{
		UserID: userID, ChatID: chatID, Kind: store.TombstoneDelete,
		StampedAt: time.Now().UnixMilli(),
	})
}

// DeleteMessageForUser hides a single message for one user.
func (o *Overlay) DeleteMessageForUser(userID, chatID, messageID string) error {
	return o.db.StampTombstone(&store.Tombstone{
		UserID: userID, ChatID: chatID, MessageID: messageID,
		Kind: store.TombstoneDelete, StampedAt: time.Now().UnixMilli(),
	})
}

// ClearForUser hides everything in the chat up to the clear time for
// one user.
func (o *Overlay) ClearForUser(userID, chatID string) error {
	return o.db.StampTombstone(&store.Tombstone{
		UserID: userID, ChatID: chatID, Kind: store.TombstoneClear,
		StampedAt: time.Now().UnixMilli(),
	})
}

// FilterVisible returns the subset of msgs the user may see, loading
// the user's tombstones for the chat once.
func (o *Overlay) FilterVisible(userID, chatID string, msgs []store.Message) ([]store.Message, error) {
	stones, err := o.db.TombstonesFor(userID, chatID)
	if err != nil {
		return nil, err
	}
	visible := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		if Visible(&m, stones) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// IsVisible reports whether the user may see the message.
func (o *Overlay) IsVisible(userID string, msg *store.Message) (bool, error) {
	stones, err := o.db.TombstonesFor(userID, msg.ChatID)
	if err != nil {
		return false, err
	}
	return Visible(msg, stones), nil
}

// Visible applies the user's tombstones to one message: hidden when a
// marker exists with a timestamp at or after the message's creation
// (clear and chat-delete hide history up to the stamp; a per-message
// delete hides that message outright).
func Visible(msg *store.Message, stones []store.Tombstone) bool {
	for _, t := range stones {
		if t.MessageID != "" {
			if t.MessageID == msg.ID && t.Kind == store.TombstoneDelete {
				return false
			}
			continue
		}
		if t.StampedAt >= msg.CreatedAt {
			return false
		}
	}
	return true
}

// Suppressed reports whether new-message visibility and notifications
// between the pair must be suppressed because either side blocks the
// other. History is untouched either way; blocking lives in the
// account subsystem, this overlay only consults it.
func (o *Overlay) Suppressed(ctx context.Context, senderID, recipientID string) (bool, error) {
	return o.profiles.Blocked(ctx, senderID, recipientID)
}

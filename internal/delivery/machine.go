// Package delivery tracks per-message, per-recipient delivery state:
// Sent -> Delivered -> Read, forward-only, privacy-gated.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/profile"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

// Machine drives message delivery state. All stored transitions are
// idempotent and monotonic; the receiver's privacy settings gate what
// a read may record and what a sender may see.
type Machine struct {
	db       *store.DB
	profiles profile.Source
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewMachine creates a delivery state machine.
func NewMachine(db *store.DB, profiles profile.Source, b *bus.Bus, logger *zap.Logger) *Machine {
	return &Machine{db: db, profiles: profiles, bus: b, logger: logger}
}

// RecordSent persists a new message in the Sent state with no receipts
// yet and refreshes the chat's last-message fields. The write either
// commits fully or not at all; failures surface to the caller, who
// owns retry policy.
func (m *Machine) RecordSent(_ context.Context, msg *store.Message) error {
	if err := m.db.InsertMessage(msg); err != nil {
		return err
	}
	m.publish(bus.KindMessageSent, msg.ChatID, msg.ID, msg.SenderID, "", msg.CreatedAt)
	return nil
}

// MarkDelivered stamps delivery for (message, recipient). Idempotent;
// an existing stamp is never moved. Publishes message.delivered only
// when the stamp was new.
func (m *Machine) MarkDelivered(_ context.Context, chatID, messageID, recipientID string, at int64) error {
	changed, err := m.db.MarkDelivered(chatID, messageID, recipientID, at)
	if err != nil {
		return err
	}
	if changed {
		m.publish(bus.KindMessageDelivered, chatID, messageID, "", recipientID, at)
	}
	return nil
}

// MarkRead stamps the read receipt for (message, recipient),
// backfilling delivery in the same transition when missing. When the
// recipient has read receipts disabled, the call silently degrades to
// MarkDelivered: the reader's policy decides what is revealed, never
// the sender's. Idempotent on repeat calls.
func (m *Machine) MarkRead(ctx context.Context, chatID, messageID, recipientID string, at int64) error {
	settings, err := m.profiles.PrivacySettings(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("read privacy settings: %w", err)
	}
	if !settings.ReadReceiptsEnabled {
		return m.MarkDelivered(ctx, chatID, messageID, recipientID, at)
	}

	changed, err := m.db.MarkRead(chatID, messageID, recipientID, at)
	if err != nil {
		return err
	}
	if changed {
		m.publish(bus.KindMessageRead, chatID, messageID, "", recipientID, at)
	}
	return nil
}

// StatusFor returns the tri-state the viewer should see for the
// recipient's copy of the message. Only meaningful for the sender;
// other viewers see Sent.
//
// Read is reported only while the recipient currently allows read
// receipts: a later opt-out masks past reads at display time without
// erasing the stored fact.
func (m *Machine) StatusFor(ctx context.Context, msg *store.Message, viewerID, recipientID string) (Status, error) {
	if viewerID != msg.SenderID {
		return Sent, nil
	}
	r, err := m.db.GetReceipt(msg.ChatID, msg.ID, recipientID)
	if errors.Is(err, store.ErrNotFound) {
		return Sent, nil
	}
	if err != nil {
		return Sent, err
	}
	if r.ReadAt > 0 {
		settings, err := m.profiles.PrivacySettings(ctx, recipientID)
		if err != nil {
			return Sent, fmt.Errorf("read privacy settings: %w", err)
		}
		if settings.ReadReceiptsEnabled {
			return Read, nil
		}
		// Stored read masked by the recipient's current opt-out.
	}
	if r.DeliveredAt > 0 {
		return Delivered, nil
	}
	return Sent, nil
}

func (m *Machine) publish(kind, chatID, messageID, senderID, recipientID string, at int64) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload: bus.MessageEvent{
			ChatID:      chatID,
			MessageID:   messageID,
			SenderID:    senderID,
			RecipientID: recipientID,
			At:          at,
		},
	})
}

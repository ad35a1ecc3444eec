// Package unread maintains the per-(user, chat) unread counter.
package unread

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

// Counter updates unread counts through the store's transactional
// read-modify-write. Increments from concurrent senders and a reset
// from the owner opening the chat serialize through the transaction;
// none are silently lost, and the stored value stays in [0, 999].
type Counter struct {
	db       *store.DB
	bus      *bus.Bus
	logger   *zap.Logger
	attempts int
}

// NewCounter creates a counter with the given transaction retry bound.
func NewCounter(db *store.DB, b *bus.Bus, logger *zap.Logger, attempts int) *Counter {
	return &Counter{db: db, bus: b, logger: logger, attempts: attempts}
}

// Increment adds delta (usually 1) to the user's counter for the chat
// and returns the committed value.
func (c *Counter) Increment(userID, chatID string, delta int) (int, error) {
	count, err := c.db.IncrementUnread(userID, chatID, delta, c.attempts)
	if err != nil {
		return 0, err
	}
	c.publish(userID, chatID, count)
	return count, nil
}

// Reset zeroes the counter; the owner opened the chat.
func (c *Counter) Reset(userID, chatID string) error {
	count, err := c.db.ResetUnread(userID, chatID, c.attempts)
	if err != nil {
		return err
	}
	c.publish(userID, chatID, count)
	return nil
}

// Get returns the committed counter value.
func (c *Counter) Get(userID, chatID string) (int, error) {
	return c.db.GetUnread(userID, chatID)
}

func (c *Counter) publish(userID, chatID string, count int) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{
		Kind:      bus.KindCounterChanged,
		Timestamp: time.Now(),
		Payload:   bus.CounterEvent{UserID: userID, ChatID: chatID, Count: count},
	})
}

// Display renders a count for badges: values at the storage clamp show
// as "999+".
func Display(count int) string {
	if count >= 999 {
		return "999+"
	}
	return strconv.Itoa(count)
}

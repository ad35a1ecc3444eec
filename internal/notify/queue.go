// Package notify queues notifications for offline recipients and hands
// them to the external push service. Everything here is best-effort:
// a lost notification never blocks or corrupts delivery tracking.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

// Queue is the durable, expiring notification queue.
type Queue struct {
	db         *store.DB
	dispatcher Dispatcher
	bus        *bus.Bus
	logger     *zap.Logger
	ttl        time.Duration
	cancel     context.CancelFunc
}

// NewQueue creates a queue whose entries expire ttl after creation.
func NewQueue(db *store.DB, dispatcher Dispatcher, b *bus.Bus, logger *zap.Logger, ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Queue{db: db, dispatcher: dispatcher, bus: b, logger: logger, ttl: ttl}
}

// Enqueue stores a pending entry for an offline recipient. The entry id
// is allocated here when empty. Returns the write error for the caller
// to log; the caller never fails its own operation over it.
func (q *Queue) Enqueue(_ context.Context, e *store.NotificationEntry) error {
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	e.ExpiresAt = e.CreatedAt + q.ttl.Milliseconds()

	if err := q.db.EnqueueNotification(e); err != nil {
		return err
	}
	q.publish(bus.KindNotificationQueued, e)
	return nil
}

// Drain consumes every pending unexpired entry for the recipient and
// hands each to the push service. Expired entries are discarded, never
// delivered. Dispatch failures are logged; the entries stay consumed —
// the recipient is online and will fetch the messages themselves.
func (q *Queue) Drain(ctx context.Context, recipientID string) (int, error) {
	entries, err := q.db.DrainNotifications(recipientID, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	for i := range entries {
		e := &entries[i]
		err := q.dispatcher.Dispatch(ctx, Payload{
			RecipientID: e.RecipientID,
			ChatID:      e.ChatID,
			SenderID:    e.SenderID,
			SenderName:  e.SenderName,
			Preview:     e.Preview,
			CreatedAt:   e.CreatedAt,
		})
		if err != nil && q.logger != nil {
			q.logger.Warn("push dispatch failed during drain",
				zap.String("recipient_id", e.RecipientID),
				zap.String("entry_id", e.EntryID),
				zap.Error(err))
		}
		q.publish(bus.KindNotificationDrained, e)
	}
	return len(entries), nil
}

// StartGC begins the periodic sweep deleting expired entries.
func (q *Queue) StartGC(ctx context.Context, every time.Duration) {
	ctx, q.cancel = context.WithCancel(ctx)
	go q.gcLoop(ctx, every)
}

// StopGC stops the sweep loop.
func (q *Queue) StopGC() {
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *Queue) gcLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := q.db.DeleteExpiredNotifications(time.Now().UnixMilli())
			if err != nil {
				if q.logger != nil {
					q.logger.Error("notification gc failed", zap.Error(err))
				}
				continue
			}
			if n > 0 && q.logger != nil {
				q.logger.Info("expired notifications removed", zap.Int64("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) publish(kind string, e *store.NotificationEntry) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload: bus.NotificationEvent{
			RecipientID: e.RecipientID,
			EntryID:     e.EntryID,
			ChatID:      e.ChatID,
		},
	})
}

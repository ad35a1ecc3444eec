package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the delivery core. Subscribers filter by
// namespace prefix, e.g. "message." receives every message lifecycle
// event.
const (
	KindMessageSent      = "message.sent"
	KindMessageDelivered = "message.delivered"
	KindMessageRead      = "message.read"

	KindChatUpdated = "chat.updated"

	KindCounterChanged = "counter.changed"

	KindPresenceOnline  = "presence.online"
	KindPresenceOffline = "presence.offline"

	KindNotificationQueued  = "notification.queued"
	KindNotificationDrained = "notification.drained"

	KindTyping = "typing.update"
)

// MessageEvent is the payload for message.* events.
type MessageEvent struct {
	ChatID      string
	MessageID   string
	SenderID    string
	RecipientID string
	At          int64
}

// ChatUpdatedEvent is the payload for chat.updated.
type ChatUpdatedEvent struct {
	ChatID        string
	LastMessageID string
	LastMessageAt int64
}

// CounterEvent is the payload for counter.changed.
type CounterEvent struct {
	UserID string
	ChatID string
	Count  int
}

// PresenceEvent is the payload for presence.online / presence.offline.
type PresenceEvent struct {
	UserID     string
	SessionID  string
	LastSeenAt int64
}

// NotificationEvent is the payload for notification.* events.
type NotificationEvent struct {
	RecipientID string
	EntryID     string
	ChatID      string
}

// TypingEvent is the payload for typing.update. Never persisted.
type TypingEvent struct {
	ChatID string
	UserID string
	Typing bool
}

package store

// Message status values. The coarse status reflects the sender-facing
// view of the latest message in a chat, not the full per-recipient map.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Chat represents a one-to-one conversation. Participants are stored
// explicitly; the deterministic id is never split to recover them.
type Chat struct {
	ID                 string
	UserA              string
	UserB              string
	LastMessageID      string
	LastMessageSender  string
	LastMessagePreview string
	LastMessageAt      int64
}

// Message represents one entry in the shared message log.
type Message struct {
	ChatID    string
	ID        string
	SenderID  string
	Body      string
	MediaRef  string
	Status    string
	CreatedAt int64
}

// Receipt tracks delivery state for one (message, recipient) pair.
// DeliveredAt and ReadAt are epoch ms; zero means not yet.
type Receipt struct {
	ChatID      string
	MessageID   string
	RecipientID string
	DeliveredAt int64
	ReadAt      int64
}

// Tombstone kinds.
const (
	TombstoneDelete = "delete"
	TombstoneClear  = "clear"
)

// Tombstone is a per-user hide marker over the shared log. An empty
// MessageID scopes the marker to the whole chat.
type Tombstone struct {
	UserID    string
	ChatID    string
	MessageID string
	Kind      string
	StampedAt int64
}

// NotificationEntry is a queued notification for an offline recipient.
type NotificationEntry struct {
	RecipientID string
	EntryID     string
	ChatID      string
	SenderID    string
	SenderName  string
	Preview     string
	CreatedAt   int64
	ExpiresAt   int64
	Delivered   bool
}

// PresenceRecord is the persisted online/offline + last-seen state.
type PresenceRecord struct {
	UserID     string
	IsOnline   bool
	LastSeenAt int64
}

// PrivacySettings are owned by the account subsystem; this core only
// reads them. Missing rows read as all-enabled defaults.
type PrivacySettings struct {
	UserID               string
	ReadReceiptsEnabled  bool
	LastSeenEnabled      bool
	NotificationsEnabled bool
}

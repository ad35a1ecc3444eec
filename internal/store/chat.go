package store

import (
	"database/sql"
	"fmt"
)

// EnsureChat inserts the chat row for the given participant pair if it
// does not exist yet and returns it. Safe to call from either
// participant concurrently.
func (db *DB) EnsureChat(c *Chat) (*Chat, error) {
	ts := now()
	_, err := db.Exec(`
		INSERT INTO chats (id, user_a, user_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		c.ID, c.UserA, c.UserB, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: ensure chat: %v", ErrWriteFailed, err)
	}
	return db.GetChat(c.ID)
}

// GetChat returns a single chat by id, or ErrNotFound.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT id, user_a, user_b, last_message_id, last_message_sender, last_message_preview, last_message_at
		FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.UserA, &c.UserB, &c.LastMessageID, &c.LastMessageSender, &c.LastMessagePreview, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChatsFor returns every chat the user participates in, most
// recent activity first.
func (db *DB) ListChatsFor(userID string, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, user_a, user_b, last_message_id, last_message_sender, last_message_preview, last_message_at
		FROM chats
		WHERE user_a = ? OR user_b = ?
		ORDER BY last_message_at DESC
		LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.UserA, &c.UserB, &c.LastMessageID, &c.LastMessageSender, &c.LastMessagePreview, &c.LastMessageAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// touchLastMessage refreshes the denormalized last-message fields
// inside an existing transaction. last_message_at never decreases, so
// an out-of-order writer cannot roll the chat list backwards.
func touchLastMessage(tx *sql.Tx, m *Message, preview string) error {
	_, err := tx.Exec(`
		UPDATE chats SET
			last_message_id      = CASE WHEN ? >= last_message_at THEN ? ELSE last_message_id END,
			last_message_sender  = CASE WHEN ? >= last_message_at THEN ? ELSE last_message_sender END,
			last_message_preview = CASE WHEN ? >= last_message_at THEN ? ELSE last_message_preview END,
			last_message_at      = MAX(last_message_at, ?),
			updated_at           = ?
		WHERE id = ?`,
		m.CreatedAt, m.ID,
		m.CreatedAt, m.SenderID,
		m.CreatedAt, preview,
		m.CreatedAt, now(), m.ChatID)
	return err
}

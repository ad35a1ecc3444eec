package store

import (
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"
)

// previewLen bounds the denormalized preview carried on chats and
// queued notifications.
const previewLen = 100

// InsertMessage records a new message in the Sent state and refreshes
// the chat's denormalized last-message fields in the same transaction.
// CreatedAt is assigned here from the store clock, strictly after the
// chat's previous newest message, so creation order within a chat is
// total even when senders' clocks disagree.
func (db *DB) InsertMessage(m *Message) error {
	err := db.InTx(3, func(tx *sql.Tx) error {
		var maxCreated sql.NullInt64
		if err := tx.QueryRow(`SELECT MAX(created_at) FROM messages WHERE chat_id = ?`, m.ChatID).Scan(&maxCreated); err != nil {
			return err
		}
		m.CreatedAt = time.Now().UnixMilli()
		if maxCreated.Valid && m.CreatedAt <= maxCreated.Int64 {
			m.CreatedAt = maxCreated.Int64 + 1
		}
		m.Status = StatusSent

		if _, err := tx.Exec(`
			INSERT INTO messages (chat_id, id, sender_id, body, media_ref, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ChatID, m.ID, m.SenderID, m.Body, m.MediaRef, m.Status, m.CreatedAt); err != nil {
			return err
		}
		return touchLastMessage(tx, m, Truncate(m.Body, previewLen))
	})
	if err != nil {
		return fmt.Errorf("%w: insert message: %v", ErrWriteFailed, err)
	}
	return nil
}

// GetMessage returns one message, or ErrNotFound.
func (db *DB) GetMessage(chatID, id string) (*Message, error) {
	var m Message
	err := db.QueryRow(`
		SELECT chat_id, id, sender_id, body, media_ref, status, created_at
		FROM messages WHERE chat_id = ? AND id = ?`, chatID, id).
		Scan(&m.ChatID, &m.ID, &m.SenderID, &m.Body, &m.MediaRef, &m.Status, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages for a chat using keyset pagination by
// timestamp, newest first.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT chat_id, id, sender_id, body, media_ref, status, created_at
		FROM messages
		WHERE chat_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// UndeliveredForRecipient returns every message addressed to the user
// that has no delivery receipt yet, in creation order per chat. This
// feeds the reconnect sweep: processing in creation order keeps the
// coarse chat-level status reflecting the latest message.
func (db *DB) UndeliveredForRecipient(userID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT m.chat_id, m.id, m.sender_id, m.body, m.media_ref, m.status, m.created_at
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		LEFT JOIN receipts r ON r.message_id = m.id AND r.chat_id = m.chat_id AND r.recipient_id = ?
		WHERE (c.user_a = ? OR c.user_b = ?)
		  AND m.sender_id != ?
		  AND (r.delivered_at IS NULL)
		ORDER BY m.chat_id, m.created_at ASC`,
		userID, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// UnreadFromPeer returns messages in the chat sent by the other
// participant that the user has not read yet, in creation order.
func (db *DB) UnreadFromPeer(chatID, userID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT m.chat_id, m.id, m.sender_id, m.body, m.media_ref, m.status, m.created_at
		FROM messages m
		LEFT JOIN receipts r ON r.message_id = m.id AND r.chat_id = m.chat_id AND r.recipient_id = ?
		WHERE m.chat_id = ? AND m.sender_id != ?
		  AND (r.read_at IS NULL)
		ORDER BY m.created_at ASC`,
		userID, chatID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ChatID, &m.ID, &m.SenderID, &m.Body, &m.MediaRef, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Truncate shortens s for preview fields. The cut always lands on a
// rune boundary so previews stay valid UTF-8.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

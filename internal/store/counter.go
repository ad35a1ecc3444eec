package store

import (
	"database/sql"
	"fmt"
)

// Counter clamp bounds. The stored integer never leaves this range;
// "999+" is a presentation-layer rendering, not a stored value.
const (
	counterMin = 0
	counterMax = 999
)

// IncrementUnread adds delta to the user's unread counter for the chat
// through a read-modify-write transaction, retried on conflict up to
// attempts times. Returns the committed value. On retry exhaustion the
// counter is left at its last-committed value and ErrWriteFailed is
// returned.
func (db *DB) IncrementUnread(userID, chatID string, delta, attempts int) (int, error) {
	return db.updateUnread(userID, chatID, attempts, func(current int) int {
		return current + delta
	})
}

// ResetUnread sets the counter to zero (the owner opened the chat).
func (db *DB) ResetUnread(userID, chatID string, attempts int) (int, error) {
	return db.updateUnread(userID, chatID, attempts, func(int) int {
		return 0
	})
}

func (db *DB) updateUnread(userID, chatID string, attempts int, apply func(int) int) (int, error) {
	var result int
	err := db.InTx(attempts, func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRow(`
			SELECT count FROM unread_counters WHERE user_id = ? AND chat_id = ?`,
			userID, chatID).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		next := apply(current)
		if next < counterMin {
			next = counterMin
		}
		if next > counterMax {
			next = counterMax
		}
		if _, err := tx.Exec(`
			INSERT INTO unread_counters (user_id, chat_id, count, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, chat_id) DO UPDATE SET
				count = excluded.count,
				updated_at = excluded.updated_at`,
			userID, chatID, next, now()); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("unread counter: %w", err)
	}
	return result, nil
}

// GetUnread returns the committed counter value; missing rows read as 0.
func (db *DB) GetUnread(userID, chatID string) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT count FROM unread_counters WHERE user_id = ? AND chat_id = ?`,
		userID, chatID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

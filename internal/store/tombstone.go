package store

import "fmt"

// StampTombstone records a per-user hide marker. Re-stamping moves the
// timestamp forward, never back. The underlying chat/message rows are
// never touched.
func (db *DB) StampTombstone(t *Tombstone) error {
	_, err := db.Exec(`
		INSERT INTO tombstones (user_id, chat_id, message_id, kind, stamped_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, chat_id, message_id, kind) DO UPDATE SET
			stamped_at = MAX(tombstones.stamped_at, excluded.stamped_at)`,
		t.UserID, t.ChatID, t.MessageID, t.Kind, t.StampedAt)
	if err != nil {
		return fmt.Errorf("%w: stamp tombstone: %v", ErrWriteFailed, err)
	}
	return nil
}

// TombstonesFor returns every hide marker the user holds for the chat.
func (db *DB) TombstonesFor(userID, chatID string) ([]Tombstone, error) {
	rows, err := db.Query(`
		SELECT user_id, chat_id, message_id, kind, stamped_at
		FROM tombstones WHERE user_id = ? AND chat_id = ?`,
		userID, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stones []Tombstone
	for rows.Next() {
		var t Tombstone
		if err := rows.Scan(&t.UserID, &t.ChatID, &t.MessageID, &t.Kind, &t.StampedAt); err != nil {
			return nil, err
		}
		stones = append(stones, t)
	}
	return stones, rows.Err()
}

package store

import (
	"database/sql"
	"fmt"
)

// SetPresence upserts the persisted presence record. lastSeenAt only
// moves forward; a late offline write from a stale session cannot roll
// back a newer sighting.
func (db *DB) SetPresence(userID string, online bool, lastSeenAt int64) error {
	onlineInt := 0
	if online {
		onlineInt = 1
	}
	_, err := db.Exec(`
		INSERT INTO presence (user_id, is_online, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			is_online = excluded.is_online,
			last_seen_at = MAX(presence.last_seen_at, excluded.last_seen_at)`,
		userID, onlineInt, lastSeenAt)
	if err != nil {
		return fmt.Errorf("%w: set presence: %v", ErrWriteFailed, err)
	}
	return nil
}

// MarkAllOffline flips every persisted presence record to offline.
// Run at daemon startup: any record still online belongs to a session
// that died with the previous process.
func (db *DB) MarkAllOffline() error {
	_, err := db.Exec(`UPDATE presence SET is_online = 0 WHERE is_online = 1`)
	if err != nil {
		return fmt.Errorf("%w: mark all offline: %v", ErrWriteFailed, err)
	}
	return nil
}

// GetPresence returns the persisted presence record. Unknown users
// read as offline with no last-seen.
func (db *DB) GetPresence(userID string) (*PresenceRecord, error) {
	var r PresenceRecord
	var onlineInt int
	err := db.QueryRow(`
		SELECT user_id, is_online, last_seen_at FROM presence WHERE user_id = ?`,
		userID).Scan(&r.UserID, &onlineInt, &r.LastSeenAt)
	if err == sql.ErrNoRows {
		return &PresenceRecord{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	r.IsOnline = onlineInt != 0
	return &r, nil
}

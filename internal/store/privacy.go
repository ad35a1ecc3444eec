package store

import (
	"database/sql"
	"fmt"
)

// GetPrivacySettings returns the user's privacy flags. Users the
// account subsystem has not written yet read as all-enabled.
func (db *DB) GetPrivacySettings(userID string) (*PrivacySettings, error) {
	var p PrivacySettings
	var rr, ls, nt int
	err := db.QueryRow(`
		SELECT user_id, read_receipts, last_seen, notifications
		FROM privacy_settings WHERE user_id = ?`, userID).
		Scan(&p.UserID, &rr, &ls, &nt)
	if err == sql.ErrNoRows {
		return &PrivacySettings{
			UserID:               userID,
			ReadReceiptsEnabled:  true,
			LastSeenEnabled:      true,
			NotificationsEnabled: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	p.ReadReceiptsEnabled = rr != 0
	p.LastSeenEnabled = ls != 0
	p.NotificationsEnabled = nt != 0
	return &p, nil
}

// UpsertPrivacySettings writes the user's privacy flags. Only the
// account subsystem calls this; the delivery core treats settings as
// read-only input.
func (db *DB) UpsertPrivacySettings(p *PrivacySettings) error {
	b := func(v bool) int {
		if v {
			return 1
		}
		return 0
	}
	_, err := db.Exec(`
		INSERT INTO privacy_settings (user_id, read_receipts, last_seen, notifications)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			read_receipts = excluded.read_receipts,
			last_seen = excluded.last_seen,
			notifications = excluded.notifications`,
		p.UserID, b(p.ReadReceiptsEnabled), b(p.LastSeenEnabled), b(p.NotificationsEnabled))
	if err != nil {
		return fmt.Errorf("%w: upsert privacy: %v", ErrWriteFailed, err)
	}
	return nil
}

// SetBlocked records or removes a directed block from userID to blockedID.
func (db *DB) SetBlocked(userID, blockedID string, blocked bool) error {
	var err error
	if blocked {
		_, err = db.Exec(`
			INSERT INTO blocks (user_id, blocked_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(user_id, blocked_id) DO NOTHING`,
			userID, blockedID, now())
	} else {
		_, err = db.Exec(`DELETE FROM blocks WHERE user_id = ? AND blocked_id = ?`, userID, blockedID)
	}
	if err != nil {
		return fmt.Errorf("%w: set blocked: %v", ErrWriteFailed, err)
	}
	return nil
}

// HasBlock reports whether userID has blocked blockedID (one direction).
func (db *DB) HasBlock(userID, blockedID string) (bool, error) {
	var one int
	err := db.QueryRow(`
		SELECT 1 FROM blocks WHERE user_id = ? AND blocked_id = ?`,
		userID, blockedID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

package store

import (
	"database/sql"
	"fmt"
)

// EnqueueNotification appends a pending notification for an offline
// recipient. Idempotent on (recipient, entry) so a retried send cannot
// double-queue.
func (db *DB) EnqueueNotification(e *NotificationEntry) error {
	_, err := db.Exec(`
		INSERT INTO notifications (recipient_id, entry_id, chat_id, sender_id, sender_name, preview, created_at, expires_at, delivered)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(recipient_id, entry_id) DO NOTHING`,
		e.RecipientID, e.EntryID, e.ChatID, e.SenderID, e.SenderName, e.Preview, e.CreatedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: enqueue notification: %v", ErrWriteFailed, err)
	}
	return nil
}

// DrainNotifications returns and marks-consumed every undelivered,
// unexpired entry for the recipient, oldest first. Expired entries are
// deleted in the same transaction rather than delivered — a stale
// notification is worse than none. Safe to re-drive if interrupted.
func (db *DB) DrainNotifications(recipientID string, nowTs int64) ([]NotificationEntry, error) {
	var entries []NotificationEntry
	err := db.InTx(3, func(tx *sql.Tx) error {
		entries = entries[:0]
		if _, err := tx.Exec(`
			DELETE FROM notifications
			WHERE recipient_id = ? AND delivered = 0 AND expires_at <= ?`,
			recipientID, nowTs); err != nil {
			return err
		}

		rows, err := tx.Query(`
			SELECT recipient_id, entry_id, chat_id, sender_id, sender_name, preview, created_at, expires_at
			FROM notifications
			WHERE recipient_id = ? AND delivered = 0 AND expires_at > ?
			ORDER BY created_at ASC`, recipientID, nowTs)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var e NotificationEntry
			if err := rows.Scan(&e.RecipientID, &e.EntryID, &e.ChatID, &e.SenderID, &e.SenderName, &e.Preview, &e.CreatedAt, &e.ExpiresAt); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.Exec(`
			UPDATE notifications SET delivered = 1
			WHERE recipient_id = ? AND delivered = 0 AND expires_at > ?`,
			recipientID, nowTs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: drain notifications: %v", ErrWriteFailed, err)
	}
	return entries, nil
}

// DeleteExpiredNotifications garbage-collects entries whose expiry has
// passed, consumed or not. Returns the number removed.
func (db *DB) DeleteExpiredNotifications(nowTs int64) (int64, error) {
	res, err := db.Exec(`DELETE FROM notifications WHERE expires_at <= ?`, nowTs)
	if err != nil {
		return 0, fmt.Errorf("%w: gc notifications: %v", ErrWriteFailed, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PendingNotificationCount reports how many undelivered, unexpired
// entries the recipient has.
func (db *DB) PendingNotificationCount(recipientID string, nowTs int64) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = ? AND delivered = 0 AND expires_at > ?`,
		recipientID, nowTs).Scan(&n)
	return n, err
}

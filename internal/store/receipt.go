package store

import (
	"database/sql"
	"fmt"
)

func statusRank(s string) int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return 0
	}
}

// MarkDelivered stamps the delivery receipt for (message, recipient).
// Idempotent: a receipt already stamped keeps its original timestamp.
// If the message is the chat's latest, the coarse status advances to
// Delivered (never backwards). Returns true when the stamp was new.
func (db *DB) MarkDelivered(chatID, messageID, recipientID string, at int64) (bool, error) {
	var changed bool
	err := db.InTx(3, func(tx *sql.Tx) error {
		changed = false
		var existing sql.NullInt64
		err := tx.QueryRow(`
			SELECT delivered_at FROM receipts WHERE message_id = ? AND recipient_id = ?`,
			messageID, recipientID).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.Exec(`
				INSERT INTO receipts (chat_id, message_id, recipient_id, delivered_at)
				VALUES (?, ?, ?, ?)`,
				chatID, messageID, recipientID, at); err != nil {
				return err
			}
			changed = true
		case err != nil:
			return err
		case !existing.Valid:
			if _, err := tx.Exec(`
				UPDATE receipts SET delivered_at = ? WHERE message_id = ? AND recipient_id = ?`,
				at, messageID, recipientID); err != nil {
				return err
			}
			changed = true
		default:
			// Already delivered; keep the original timestamp.
			return nil
		}
		return advanceCoarseStatus(tx, chatID, messageID, StatusDelivered)
	})
	if err != nil {
		return false, fmt.Errorf("%w: mark delivered: %v", ErrWriteFailed, err)
	}
	return changed, nil
}

// MarkRead stamps the read receipt for (message, recipient), backfilling
// the delivery stamp in the same transaction if it is missing — read
// implies delivered. Idempotent. Returns true when the read stamp was new.
//
// Privacy gating happens above this layer: the caller decides whether a
// read may be recorded at all.
func (db *DB) MarkRead(chatID, messageID, recipientID string, at int64) (bool, error) {
	var changed bool
	err := db.InTx(3, func(tx *sql.Tx) error {
		changed = false
		var deliveredAt, readAt sql.NullInt64
		err := tx.QueryRow(`
			SELECT delivered_at, read_at FROM receipts WHERE message_id = ? AND recipient_id = ?`,
			messageID, recipientID).Scan(&deliveredAt, &readAt)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.Exec(`
				INSERT INTO receipts (chat_id, message_id, recipient_id, delivered_at, read_at)
				VALUES (?, ?, ?, ?, ?)`,
				chatID, messageID, recipientID, at, at); err != nil {
				return err
			}
			changed = true
		case err != nil:
			return err
		case readAt.Valid:
			// Already read; stamps never move.
			return nil
		default:
			delivered := at
			if deliveredAt.Valid {
				delivered = deliveredAt.Int64
			}
			if _, err := tx.Exec(`
				UPDATE receipts SET delivered_at = ?, read_at = ? WHERE message_id = ? AND recipient_id = ?`,
				delivered, at, messageID, recipientID); err != nil {
				return err
			}
			changed = true
		}
		return advanceCoarseStatus(tx, chatID, messageID, StatusRead)
	})
	if err != nil {
		return false, fmt.Errorf("%w: mark read: %v", ErrWriteFailed, err)
	}
	return changed, nil
}

// GetReceipt returns the receipt for (message, recipient), or
// ErrNotFound when no stamp exists yet.
func (db *DB) GetReceipt(chatID, messageID, recipientID string) (*Receipt, error) {
	var r Receipt
	var deliveredAt, readAt sql.NullInt64
	err := db.QueryRow(`
		SELECT chat_id, message_id, recipient_id, delivered_at, read_at
		FROM receipts WHERE message_id = ? AND recipient_id = ?`,
		messageID, recipientID).
		Scan(&r.ChatID, &r.MessageID, &r.RecipientID, &deliveredAt, &readAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.DeliveredAt = deliveredAt.Int64
	r.ReadAt = readAt.Int64
	return &r, nil
}

// advanceCoarseStatus moves the message's sender-facing status forward
// if (a) the message is the chat's latest and (b) the move is not a
// regression. Strictly forward-only: Sent -> Delivered -> Read.
func advanceCoarseStatus(tx *sql.Tx, chatID, messageID, to string) error {
	var lastID string
	if err := tx.QueryRow(`SELECT last_message_id FROM chats WHERE id = ?`, chatID).Scan(&lastID); err != nil {
		return err
	}
	if lastID != messageID {
		return nil
	}
	var current string
	if err := tx.QueryRow(`SELECT status FROM messages WHERE chat_id = ? AND id = ?`, chatID, messageID).Scan(&current); err != nil {
		return err
	}
	if statusRank(to) <= statusRank(current) {
		return nil
	}
	_, err := tx.Exec(`UPDATE messages SET status = ? WHERE chat_id = ? AND id = ?`, to, chatID, messageID)
	return err
}

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for the daemon-owned pingme.db.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// Sentinel errors surfaced by the store. Callers match with errors.Is.
var (
	// ErrWriteFailed means the underlying store rejected a write. The
	// mutation either committed fully or not at all.
	ErrWriteFailed = errors.New("store write failed")

	// ErrTxConflict means a read-modify-write transaction lost to a
	// concurrent writer. Retried internally up to a bound; exhaustion
	// surfaces as ErrWriteFailed.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// isBusy reports whether err is SQLite's lock-contention error, the
// signal for an optimistic retry.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// InTx runs fn inside a transaction, retrying up to attempts times on
// lock contention with jittered backoff. Every cross-cutting
// read-modify-write in this package goes through here so concurrent
// writers (a sender incrementing a counter while the recipient's
// reconnect sweep marks older messages delivered) serialize instead of
// clobbering each other.
func (db *DB) InTx(attempts int, fn func(tx *sql.Tx) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
		}
		tx, err := db.Begin()
		if err != nil {
			if isBusy(err) {
				lastErr = ErrTxConflict
				continue
			}
			return fmt.Errorf("%w: begin: %v", ErrWriteFailed, err)
		}
		err = fn(tx)
		if err == nil {
			err = tx.Commit()
		}
		if err == nil {
			return nil
		}
		_ = tx.Rollback()
		if isBusy(err) {
			lastErr = ErrTxConflict
			continue
		}
		return err
	}
	return fmt.Errorf("%w: retries exhausted: %v", ErrWriteFailed, lastErr)
}

// now returns the store's clock in epoch milliseconds. Timestamps on
// shared records are always assigned here, never by clients, so
// client clock skew cannot reorder a chat.
func now() int64 {
	return time.Now().UnixMilli()
}

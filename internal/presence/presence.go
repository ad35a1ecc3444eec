// Package presence holds the authoritative online/offline and
// last-seen record per user. A user is online while at least one
// session lease is held; releasing the last lease — explicitly or via
// the liveness channel closing underneath it — flips the record
// offline and stamps last-seen.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

// ErrCheckTimeout means a presence lookup did not complete in time.
// Callers treat it exactly like "offline": assuming online when the
// recipient is actually gone is the worse failure mode.
var ErrCheckTimeout = errors.New("presence check timed out")

// Store tracks session leases in memory and persists the
// online/last-seen record. An optional Mirror publishes transitions to
// other instances.
type Store struct {
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger
	mirror  Mirror
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]map[string]*Lease // userID -> sessionID
}

// NewStore creates a presence store. mirror may be nil; timeout bounds
// mirror lookups before failing open to offline.
func NewStore(db *store.DB, b *bus.Bus, logger *zap.Logger, mirror Mirror, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Store{
		db:       db,
		bus:      b,
		logger:   logger,
		mirror:   mirror,
		timeout:  timeout,
		sessions: make(map[string]map[string]*Lease),
	}
}

// Lease is a session-scoped online marker. Release is the
// pre-registered disconnect fallback: run it when the session's
// liveness channel closes, clean sign-off or not.
type Lease struct {
	UserID    string
	SessionID string

	store *Store
	once  sync.Once
}

// Release ends the session. Idempotent. If this was the user's last
// live session, the user goes offline and last-seen is stamped.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.store.release(l)
	})
}

// GoOnline registers a session lease for the user. The first lease for
// a user flips the record online and publishes presence.online, which
// triggers the synchronizer's reconnect sweep.
func (s *Store) GoOnline(ctx context.Context, userID, sessionID string) (*Lease, error) {
	// Persist before registering: a session the store never accepted
	// must not linger in the lease map reading online with no handle
	// left to release it.
	if err := s.db.SetPresence(userID, true, time.Now().UnixMilli()); err != nil {
		return nil, err
	}

	lease := &Lease{UserID: userID, SessionID: sessionID, store: s}
	s.mu.Lock()
	first := len(s.sessions[userID]) == 0
	if s.sessions[userID] == nil {
		s.sessions[userID] = make(map[string]*Lease)
	}
	s.sessions[userID][sessionID] = lease
	s.mu.Unlock()
	if s.mirror != nil {
		if err := s.mirror.SetOnline(ctx, userID, sessionID); err != nil && s.logger != nil {
			s.logger.Warn("presence mirror set online failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	if first {
		s.publish(bus.KindPresenceOnline, userID, sessionID, 0)
	}
	return lease, nil
}

// GoOffline is the explicit clean disconnect for a session. Equivalent
// to releasing the lease.
func (s *Store) GoOffline(userID, sessionID string) {
	s.mu.Lock()
	lease := s.sessions[userID][sessionID]
	s.mu.Unlock()
	if lease != nil {
		lease.Release()
	}
}

func (s *Store) release(l *Lease) {
	s.mu.Lock()
	delete(s.sessions[l.UserID], l.SessionID)
	last := len(s.sessions[l.UserID]) == 0
	if last {
		delete(s.sessions, l.UserID)
	}
	s.mu.Unlock()

	lastSeen := time.Now().UnixMilli()
	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.mirror.SetOffline(ctx, l.UserID, l.SessionID); err != nil && s.logger != nil {
			s.logger.Warn("presence mirror set offline failed",
				zap.String("user_id", l.UserID), zap.Error(err))
		}
		cancel()
	}
	if !last {
		return
	}
	if err := s.db.SetPresence(l.UserID, false, lastSeen); err != nil && s.logger != nil {
		s.logger.Error("presence offline write failed",
			zap.String("user_id", l.UserID), zap.Error(err))
	}
	s.publish(bus.KindPresenceOffline, l.UserID, l.SessionID, lastSeen)
}

// IsOnline reports whether the user has a live session. The answer is
// eventually consistent with true client state. A mirror lookup that
// exceeds the timeout fails open: the user is reported offline and
// ErrCheckTimeout is returned alongside so the caller can log it.
func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	local := len(s.sessions[userID]) > 0
	s.mu.Unlock()
	if local {
		return true, nil
	}
	if s.mirror == nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	online, err := s.mirror.IsOnline(ctx, userID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, ErrCheckTimeout
		}
		return false, err
	}
	return online, nil
}

// LastSeen returns the persisted presence record as the viewer may see
// it: when the user has last-seen disabled, other viewers get the
// online flag but a masked timestamp.
func (s *Store) LastSeen(viewerID, userID string, settings *store.PrivacySettings) (*store.PresenceRecord, error) {
	rec, err := s.db.GetPresence(userID)
	if err != nil {
		return nil, err
	}
	if viewerID != userID && settings != nil && !settings.LastSeenEnabled {
		rec.LastSeenAt = 0
	}
	return rec, nil
}

// Reset marks every persisted record offline. Run once at startup:
// records left online belong to sessions of a previous process.
func (s *Store) Reset() error {
	return s.db.MarkAllOffline()
}

func (s *Store) publish(kind, userID, sessionID string, lastSeen int64) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   bus.PresenceEvent{UserID: userID, SessionID: sessionID, LastSeenAt: lastSeen},
	})
}

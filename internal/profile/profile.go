// Package profile exposes the account subsystem's privacy settings and
// block relationships to the delivery core. The core only reads;
// writes happen elsewhere.
package profile

import (
	"context"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

// Source is the read-only view of a user's privacy preferences and
// block relationships.
type Source interface {
	// PrivacySettings returns the user's flags. Unknown users read as
	// all-enabled.
	PrivacySettings(ctx context.Context, userID string) (*store.PrivacySettings, error)

	// Blocked reports whether either user has blocked the other.
	Blocked(ctx context.Context, a, b string) (bool, error)
}

// StoreSource reads profile data from the local store, where the
// account subsystem mirrors it.
type StoreSource struct {
	db *store.DB
}

// NewStoreSource creates a store-backed profile source.
func NewStoreSource(db *store.DB) *StoreSource {
	return &StoreSource{db: db}
}

func (s *StoreSource) PrivacySettings(_ context.Context, userID string) (*store.PrivacySettings, error) {
	return s.db.GetPrivacySettings(userID)
}

func (s *StoreSource) Blocked(_ context.Context, a, b string) (bool, error) {
	if blocked, err := s.db.HasBlock(a, b); err != nil || blocked {
		return blocked, err
	}
	return s.db.HasBlock(b, a)
}

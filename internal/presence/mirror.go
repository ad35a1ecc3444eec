package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror replicates presence transitions to a shared medium so other
// daemon instances can answer IsOnline for users attached elsewhere.
type Mirror interface {
	SetOnline(ctx context.Context, userID, sessionID string) error
	SetOffline(ctx context.Context, userID, sessionID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// sessionTTL bounds how long a mirrored session survives without
// refresh, so a crashed instance cannot leave users online forever.
const sessionTTL = 90 * time.Second

// RedisMirror keeps one set of live session ids per user.
type RedisMirror struct {
	rdb *redis.Client
}

// NewRedisMirror creates a mirror against the given Redis address.
func NewRedisMirror(addr string) *RedisMirror {
	return &RedisMirror{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (m *RedisMirror) key(userID string) string {
	return "presence:" + userID + ":sessions"
}

func (m *RedisMirror) SetOnline(ctx context.Context, userID, sessionID string) error {
	pipe := m.rdb.TxPipeline()
	pipe.SAdd(ctx, m.key(userID), sessionID)
	pipe.Expire(ctx, m.key(userID), sessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) SetOffline(ctx context.Context, userID, sessionID string) error {
	return m.rdb.SRem(ctx, m.key(userID), sessionID).Err()
}

func (m *RedisMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := m.rdb.SCard(ctx, m.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the underlying client.
func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}

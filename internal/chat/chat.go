// Package chat defines the identity of a one-to-one conversation.
//
// The chat id is a deterministic function of the two participant ids,
// sorted so either side computes the same value. Participants are
// always carried explicitly on the record; nothing in this repo splits
// the id back apart.
package chat

import (
	"fmt"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

// PairID returns the deterministic chat id for two participants.
func PairID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// New builds the chat record for a participant pair with sorted,
// explicit participants.
func New(a, b string) *store.Chat {
	if b < a {
		a, b = b, a
	}
	return &store.Chat{ID: PairID(a, b), UserA: a, UserB: b}
}

// Peer returns the other participant of the chat, from the explicit
// participant fields.
func Peer(c *store.Chat, userID string) (string, error) {
	switch userID {
	case c.UserA:
		return c.UserB, nil
	case c.UserB:
		return c.UserA, nil
	default:
		return "", fmt.Errorf("user %s is not a participant of chat %s", userID, c.ID)
	}
}

// IsParticipant reports whether the user belongs to the chat.
func IsParticipant(c *store.Chat, userID string) bool {
	return userID == c.UserA || userID == c.UserB
}

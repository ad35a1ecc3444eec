package chat

import "testing"

func TestPairIDOrderIndependent(t *testing.T) {
	if PairID("alice", "bob") != PairID("bob", "alice") {
		t.Error("PairID must be order independent")
	}
	if PairID("alice", "bob") != "alice:bob" {
		t.Errorf("PairID = %q, want alice:bob", PairID("alice", "bob"))
	}
}

func TestPeer(t *testing.T) {
	c := New("bob", "alice")
	if c.UserA != "alice" || c.UserB != "bob" {
		t.Errorf("participants not sorted: %+v", c)
	}

	peer, err := Peer(c, "alice")
	if err != nil || peer != "bob" {
		t.Errorf("Peer(alice) = %q, %v; want bob", peer, err)
	}
	peer, err = Peer(c, "bob")
	if err != nil || peer != "alice" {
		t.Errorf("Peer(bob) = %q, %v; want alice", peer, err)
	}
	if _, err := Peer(c, "mallory"); err == nil {
		t.Error("Peer for non-participant should error")
	}
}

func TestIsParticipant(t *testing.T) {
	c := New("alice", "bob")
	if !IsParticipant(c, "alice") || !IsParticipant(c, "bob") {
		t.Error("participants not recognized")
	}
	if IsParticipant(c, "mallory") {
		t.Error("non-participant recognized")
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testClient(userID string) *Client {
	return &Client{
		userID:    userID,
		sessionID: "s-" + userID,
		send:      make(chan []byte, 16),
	}
}

func recvFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatal(err)
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return Frame{}
}

func TestHubRoutesMessageEventsToBothParticipants(t *testing.T) {
	db := testDB(t)
	if _, err := db.EnsureChat(&store.Chat{ID: "alice:bob", UserA: "alice", UserB: "bob"}); err != nil {
		t.Fatal(err)
	}

	h := NewHub(db, bus.New(), nil)
	alice := testClient("alice")
	bob := testClient("bob")
	h.Register(alice)
	h.Register(bob)

	h.route(bus.Event{
		Kind:      bus.KindMessageDelivered,
		Timestamp: time.Now(),
		Payload:   bus.MessageEvent{ChatID: "alice:bob", MessageID: "m1", RecipientID: "bob"},
	})

	for _, c := range []*Client{alice, bob} {
		f := recvFrame(t, c)
		if f.Kind != bus.KindMessageDelivered {
			t.Fatalf("kind = %q, want %q", f.Kind, bus.KindMessageDelivered)
		}
	}
}

func TestHubRoutesCounterEventToOwnerOnly(t *testing.T) {
	db := testDB(t)
	h := NewHub(db, bus.New(), nil)
	alice := testClient("alice")
	bob := testClient("bob")
	h.Register(alice)
	h.Register(bob)

	h.route(bus.Event{
		Kind:      bus.KindCounterChanged,
		Timestamp: time.Now(),
		Payload:   bus.CounterEvent{UserID: "bob", ChatID: "alice:bob", Count: 3},
	})

	f := recvFrame(t, bob)
	if f.Kind != bus.KindCounterChanged {
		t.Fatalf("kind = %q, want %q", f.Kind, bus.KindCounterChanged)
	}
	select {
	case <-alice.send:
		t.Fatal("counter event leaked to another user")
	default:
	}
}

func TestHubDeliversViaBusSubscription(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	h := NewHub(db, b, nil)
	h.Run(context.Background())
	defer h.Stop()

	carol := testClient("carol")
	h.Register(carol)

	b.Publish(bus.Event{
		Kind:      bus.KindNotificationQueued,
		Timestamp: time.Now(),
		Payload:   bus.NotificationEvent{RecipientID: "carol", EntryID: "n1", ChatID: "bob:carol"},
	})

	f := recvFrame(t, carol)
	if f.Kind != bus.KindNotificationQueued {
		t.Fatalf("kind = %q, want %q", f.Kind, bus.KindNotificationQueued)
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	db := testDB(t)
	h := NewHub(db, bus.New(), nil)
	c := testClient("dave")
	h.Register(c)
	h.Unregister(c)

	if _, open := <-c.send; open {
		t.Fatal("send channel still open after unregister")
	}

	// Routing to a departed user must not panic.
	h.route(bus.Event{
		Kind:      bus.KindCounterChanged,
		Timestamp: time.Now(),
		Payload:   bus.CounterEvent{UserID: "dave", Count: 1},
	})
}

package syncer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/chat"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/delivery"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/notify"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/presence"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/profile"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/unread"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/visibility"
)

type mockDispatcher struct {
	payloads []notify.Payload
}

func (m *mockDispatcher) Dispatch(_ context.Context, p notify.Payload) error {
	m.payloads = append(m.payloads, p)
	return nil
}

type fixture struct {
	db       *store.DB
	bus      *bus.Bus
	machine  *delivery.Machine
	presence *presence.Store
	counter  *unread.Counter
	queue    *notify.Queue
	overlay  *visibility.Overlay
	push     *mockDispatcher
	sync     *Synchronizer
}

func newFixture(t *testing.T) *fixture {
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

	b := bus.New()
	profiles := profile.NewStoreSource(db)
	push := &mockDispatcher{}
	f := &fixture{
		db:       db,
		bus:      b,
		machine:  delivery.NewMachine(db, profiles, b, nil),
		presence: presence.NewStore(db, b, nil, nil, time.Second),
		counter:  unread.NewCounter(db, b, nil, 5),
		queue:    notify.NewQueue(db, push, b, nil, time.Hour),
		overlay:  visibility.NewOverlay(db, profiles, nil),
		push:     push,
	}
	f.sync = New(db, f.machine, f.presence, f.counter, f.queue, f.overlay, profiles, push, b, nil)
	return f
}

// Scenario: A sends to B while B is offline, then B comes online.
func TestSendToOfflineRecipientThenReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", SenderName: "Alice", RecipientID: "bob", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	stored, err := f.db.GetMessage(msg.ChatID, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != store.StatusSent {
		t.Errorf("status = %q, want sent while recipient offline", stored.Status)
	}
	pending, err := f.db.PendingNotificationCount("bob", time.Now().UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 {
		t.Errorf("pending notifications = %d, want 1", pending)
	}

	if err := f.sync.OnUserCameOnline(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	stored, _ = f.db.GetMessage(msg.ChatID, msg.ID)
	if stored.Status != store.StatusDelivered {
		t.Errorf("status after reconnect = %q, want delivered", stored.Status)
	}
	pending, _ = f.db.PendingNotificationCount("bob", time.Now().UnixMilli())
	if pending != 0 {
		t.Errorf("pending after drain = %d, want 0", pending)
	}
}

func TestSendToOnlineRecipientDeliversImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lease, err := f.presence.GoOnline(ctx, "bob", "sess1")
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()

	msg, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "bob", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	stored, _ := f.db.GetMessage(msg.ChatID, msg.ID)
	if stored.Status != store.StatusDelivered {
		t.Errorf("status = %q, want delivered for online recipient", stored.Status)
	}
	pending, _ := f.db.PendingNotificationCount("bob", time.Now().UnixMilli())
	if pending != 0 {
		t.Errorf("pending = %d, want 0 (no queueing for online recipient)", pending)
	}
}

// Scenario: burst of sends while offline, then the owner opens the chat.
func TestUnreadBurstThenOpenChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := chat.PairID("alice", "bob")

	for _, body := range []string{"one", "two", "three"} {
		if _, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "bob", Body: body}); err != nil {
			t.Fatal(err)
		}
	}

	count, err := f.counter.Get("bob", chatID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	if err := f.sync.OnChatOpened(ctx, "bob", chatID); err != nil {
		t.Fatal(err)
	}

	count, _ = f.counter.Get("bob", chatID)
	if count != 0 {
		t.Errorf("count after open = %d, want 0", count)
	}

	msgs, err := f.db.ListMessages(chatID, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range msgs {
		r, err := f.db.GetReceipt(chatID, m.ID, "bob")
		if err != nil {
			t.Fatalf("message %s has no receipt: %v", m.ID, err)
		}
		if r.ReadAt == 0 {
			t.Errorf("message %s not read after open", m.ID)
		}
	}
}

// Scenario: recipient with read receipts disabled reads the chat; the
// sender sees Delivered, never Read.
func TestOpenChatWithReadReceiptsDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := chat.PairID("alice", "bob")

	if err := f.db.UpsertPrivacySettings(&store.PrivacySettings{
		UserID: "bob", ReadReceiptsEnabled: false, LastSeenEnabled: true, NotificationsEnabled: true,
	}); err != nil {
		t.Fatal(err)
	}

	msg, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "bob", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.sync.OnChatOpened(ctx, "bob", chatID); err != nil {
		t.Fatal(err)
	}

	st, err := f.machine.StatusFor(ctx, msg, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if st != delivery.Delivered {
		t.Errorf("sender view = %q, want delivered (read masked)", st)
	}
}

func TestReconnectSweepProcessesCreationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := chat.PairID("alice", "bob")

	var last *store.Message
	for _, body := range []string{"one", "two", "three"} {
		m, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "bob", Body: body})
		if err != nil {
			t.Fatal(err)
		}
		last = m
	}

	if err := f.sync.OnUserCameOnline(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	// The coarse chat-level status must reflect the latest message.
	stored, err := f.db.GetMessage(chatID, last.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != store.StatusDelivered {
		t.Errorf("latest message coarse status = %q, want delivered", stored.Status)
	}
}

func TestStartSweepsOnPresenceEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "bob", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	f.sync.Start(ctx)
	defer f.sync.Stop()

	lease, err := f.presence.GoOnline(ctx, "bob", "sess1")
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()

	deadline := time.After(2 * time.Second)
	for {
		stored, err := f.db.GetMessage(msg.ChatID, msg.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status == store.StatusDelivered {
			return
		}
		select {
		case <-deadline:
			t.Fatal("message not delivered after presence.online event")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestSendBetweenBlockedPairIsSuppressed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := chat.PairID("alice", "bob")

	if err := f.db.SetBlocked("bob", "alice", true); err != nil {
		t.Fatal(err)
	}

	msg, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "bob", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	// Message rests in the shared log, but nothing reaches bob.
	if _, err := f.db.GetMessage(msg.ChatID, msg.ID); err != nil {
		t.Fatal(err)
	}
	count, _ := f.counter.Get("bob", chatID)
	if count != 0 {
		t.Errorf("count = %d, want 0 for blocked pair", count)
	}
	pending, _ := f.db.PendingNotificationCount("bob", time.Now().UnixMilli())
	if pending != 0 {
		t.Errorf("pending = %d, want 0 for blocked pair", pending)
	}
	if len(f.push.payloads) != 0 {
		t.Errorf("push dispatched %d payloads for blocked pair, want 0", len(f.push.payloads))
	}
}

func TestPushDispatchGatedByNotificationSetting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.db.UpsertPrivacySettings(&store.PrivacySettings{
		UserID: "bob", ReadReceiptsEnabled: true, LastSeenEnabled: true, NotificationsEnabled: false,
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "bob", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(f.push.payloads) != 0 {
		t.Errorf("push dispatched %d payloads, want 0 with notifications disabled", len(f.push.payloads))
	}

	if _, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "carol", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if len(f.push.payloads) != 1 {
		t.Errorf("push dispatched %d payloads, want 1 for default settings", len(f.push.payloads))
	}
}

func TestOnChatOpenedSkipsHiddenMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chatID := chat.PairID("alice", "bob")

	msg, err := f.sync.OnSend(ctx, SendInput{SenderID: "alice", RecipientID: "bob", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.overlay.DeleteChatForUser("bob", chatID); err != nil {
		t.Fatal(err)
	}

	if err := f.sync.OnChatOpened(ctx, "bob", chatID); err != nil {
		t.Fatal(err)
	}

	// A message bob cannot see must not gain a read stamp.
	r, err := f.db.GetReceipt(chatID, msg.ID, "bob")
	if err == nil && r.ReadAt != 0 {
		t.Error("hidden message must not be marked read")
	}
}

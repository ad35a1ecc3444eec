package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindPresenceOnline, Timestamp: time.Now(), Payload: PresenceEvent{UserID: "u1"}})

	select {
	case evt := <-ch:
		if evt.Kind != KindPresenceOnline {
			t.Errorf("got kind %q, want %q", evt.Kind, KindPresenceOnline)
		}
		if p, ok := evt.Payload.(PresenceEvent); !ok || p.UserID != "u1" {
			t.Errorf("payload = %v, want PresenceEvent for u1", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindPresenceOnline})
	b.Publish(Event{Kind: KindMessageDelivered})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageDelivered {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMessageDelivered)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the presence event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	unsub()

	b.Publish(Event{Kind: KindMessageSent})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestEmitStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("typing.", 1)
	defer unsub()

	before := time.Now()
	b.Emit(KindTyping, TypingEvent{ChatID: "a:b", UserID: "a", Typing: true})

	select {
	case evt := <-ch:
		if evt.Timestamp.Before(before) {
			t.Errorf("timestamp %v predates emit", evt.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("counter.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: KindCounterChanged, Payload: CounterEvent{Count: 1}})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: KindCounterChanged, Payload: CounterEvent{Count: 2}})

	evt := <-ch
	if c, ok := evt.Payload.(CounterEvent); !ok || c.Count != 1 {
		t.Errorf("got %v, want first counter event", evt.Payload)
	}
}

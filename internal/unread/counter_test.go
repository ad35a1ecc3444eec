package unread

import (
	"path/filepath"
	"sync"
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

func TestIncrementAndReset(t *testing.T) {
	db := testDB(t)
	c := NewCounter(db, nil, nil, 5)

	for i := 1; i <= 3; i++ {
		count, err := c.Increment("bob", "alice:bob", 1)
		if err != nil {
			t.Fatal(err)
		}
		if count != i {
			t.Errorf("count = %d, want %d", count, i)
		}
	}

	if err := c.Reset("bob", "alice:bob"); err != nil {
		t.Fatal(err)
	}
	count, err := c.Get("bob", "alice:bob")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count after reset = %d, want 0", count)
	}
}

func TestBurstThenResetYieldsZero(t *testing.T) {
	db := testDB(t)
	c := NewCounter(db, nil, nil, 20)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Increment("bob", "alice:bob", 1); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	count, err := c.Get("bob", "alice:bob")
	if err != nil {
		t.Fatal(err)
	}
	if count != n {
		t.Errorf("count = %d, want %d", count, n)
	}

	if err := c.Reset("bob", "alice:bob"); err != nil {
		t.Fatal(err)
	}
	count, _ = c.Get("bob", "alice:bob")
	if count != 0 {
		t.Errorf("count = %d, want exactly 0 after reset", count)
	}
}

func TestCounterPublishesEvents(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	c := NewCounter(db, b, nil, 5)

	ch, unsub := b.Subscribe("counter.", 10)
	defer unsub()

	if _, err := c.Increment("bob", "alice:bob", 1); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		p, ok := evt.Payload.(bus.CounterEvent)
		if !ok || p.Count != 1 || p.UserID != "bob" {
			t.Errorf("payload = %v, want count 1 for bob", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for counter event")
	}
}

func TestDisplaySentinel(t *testing.T) {
	if Display(5) != "5" {
		t.Errorf("Display(5) = %q", Display(5))
	}
	if Display(999) != "999+" {
		t.Errorf("Display(999) = %q, want 999+", Display(999))
	}
}

package daemon

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/auth"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/config"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/delivery"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/httpapi"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/notify"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/presence"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/profile"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/store"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/syncer"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/unread"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/visibility"
)

func TestModuleGraph(t *testing.T) {
	cfg := &config.Config{
		Node:       "test",
		ListenAddr: "127.0.0.1:0",
		DataDir:    t.TempDir(),
		JWTSecret:  "test-secret",
	}
	if err := fx.ValidateApp(Module(cfg)); err != nil {
		t.Fatalf("dependency graph invalid: %v", err)
	}
}

func TestServerServesHealth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	logger := zap.NewNop()
	b := bus.New()
	profiles := profile.NewStoreSource(db)
	machine := delivery.NewMachine(db, profiles, b, logger)
	pres := presence.NewStore(db, b, logger, nil, time.Second)
	counter := unread.NewCounter(db, b, logger, 3)
	queue := notify.NewQueue(db, notify.NopDispatcher{}, b, logger, 24*time.Hour)
	overlay := visibility.NewOverlay(db, profiles, logger)
	sync := syncer.New(db, machine, pres, counter, queue, overlay, profiles, notify.NopDispatcher{}, b, logger)
	tokens := auth.NewTokens("test-secret", time.Hour)
	api := httpapi.New(db, sync, machine, pres, counter, overlay, tokens, nil, logger)

	srv := NewServer(&config.Config{ListenAddr: addr}, api, logger)
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	var resp *http.Response
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/healthz")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health check never came up: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/auth"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/bus"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/delivery"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/presence"
	"github.com/Souvik-Babai-Roy/PingMe-sub000/internal/profile"
)

func testGateway(t *testing.T) (*Gateway, *auth.Tokens) {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	logger := zap.NewNop()

	h := NewHub(db, b, logger)
	h.Run(context.Background())
	t.Cleanup(h.Stop)

	pres := presence.NewStore(db, b, logger, nil, time.Second)
	machine := delivery.NewMachine(db, profile.NewStoreSource(db), b, logger)
	tokens := auth.NewTokens("test-secret", time.Hour)
	return New(h, nil, machine, pres, tokens, b, logger), tokens
}

func TestServeWSAttachesDeviceBeforeGoingOnline(t *testing.T) {
	gw, tokens := testGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(gw.ServeWS))
	defer srv.Close()

	raw, err := tokens.Generate("alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + raw
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// The device must already be attached when its own online
	// transition is published, so that frame is the first it reads.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		t.Fatal(err)
	}
	if f.Kind != bus.KindPresenceOnline {
		t.Fatalf("first frame kind = %q, want %q", f.Kind, bus.KindPresenceOnline)
	}
}

func TestServeWSRejectsMissingToken(t *testing.T) {
	gw, _ := testGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(gw.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %+v, want 401", resp)
	}
	resp.Body.Close()
}

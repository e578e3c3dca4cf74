package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gemkitchen.ai/internal/persistence/sessionstore"
	"gemkitchen.ai/internal/protocol"
	"gemkitchen.ai/internal/sim/tuning"
)

func newTestServer(t *testing.T, store Store) (*Server, string) {
	t.Helper()
	tune := tuning.Defaults()
	tune.TickRateHz = 50
	tune.DropSettleMs = 0
	srv, err := NewServer(Options{Catalogs: loadCatalogs(t), Tuning: tune, Store: store, Metrics: NewMetrics(nil)})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readType(t *testing.T, conn *websocket.Conn, typ string, v any) {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type != typ {
			continue
		}
		if err := json.Unmarshal(b, v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return
	}
}

func hello(mapID string) protocol.HelloMsg {
	return protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, MapID: mapID, Seed: 42}
}

func TestServer_UnknownMapRejected(t *testing.T) {
	_, url := newTestServer(t, nil)
	conn := dial(t, url)
	send(t, conn, hello("nope"))

	var ack protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &ack)
	if ack.Accepted || ack.Code != protocol.ErrMapNotFound {
		t.Fatalf("ack: %+v", ack)
	}
}

func TestServer_HandshakeAndActs(t *testing.T) {
	srv, url := newTestServer(t, nil)
	conn := dial(t, url)
	send(t, conn, hello("1"))

	var welcome protocol.WelcomeMsg
	readType(t, conn, protocol.TypeWelcome, &welcome)
	if welcome.SessionID == "" || welcome.MapID != "1" || welcome.Params.GridCols != 5 || welcome.Catalogs.TuningDigest == "" {
		t.Fatalf("welcome: %+v", welcome)
	}

	names := map[string]bool{}
	for i := 0; i < 3; i++ {
		var c protocol.CatalogMsg
		readType(t, conn, protocol.TypeCatalog, &c)
		names[c.Name] = true
	}
	if !names["tool_formulas"] || !names["item_formulas"] || !names["prices"] {
		t.Fatalf("catalogs: %v", names)
	}

	var st protocol.StateMsg
	readType(t, conn, protocol.TypeState, &st)
	if len(st.Orders) != 2 || st.Inventory.Capacity != 4 || len(st.Plates) != 2 {
		t.Fatalf("state: orders=%v inv=%+v plates=%v", st.Orders, st.Inventory, st.Plates)
	}

	if infos := srv.Sessions(); len(infos) != 1 || infos[0].SessionID != welcome.SessionID {
		t.Fatalf("sessions: %+v", infos)
	}

	send(t, conn, map[string]any{"type": "ACT", "id": "bad", "kind": "path"})
	var ack protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &ack)
	if ack.AckFor != "bad" || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("malformed ack: %+v", ack)
	}

	send(t, conn, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "z", Kind: protocol.ActPause})
	readType(t, conn, protocol.TypeAck, &ack)
	if ack.AckFor != "z" || !ack.Accepted {
		t.Fatalf("pause ack: %+v", ack)
	}
	readType(t, conn, protocol.TypeState, &st)
	if !st.Paused {
		t.Fatalf("expected paused state")
	}
}

func TestServer_ResumeFromDisconnectSnapshot(t *testing.T) {
	store := sessionstore.New(sessionstore.Options{DataDir: t.TempDir()})
	_, url := newTestServer(t, store)

	conn := dial(t, url)
	send(t, conn, hello("2"))
	var welcome protocol.WelcomeMsg
	readType(t, conn, protocol.TypeWelcome, &welcome)
	send(t, conn, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "z", Kind: protocol.ActPause})
	var ack protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &ack)
	_ = conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := store.LatestSnapshot(welcome.SessionID); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no snapshot after disconnect")
		}
		time.Sleep(20 * time.Millisecond)
	}

	conn2 := dial(t, url)
	h := hello("2")
	h.ResumeSession = welcome.SessionID
	send(t, conn2, h)
	var again protocol.WelcomeMsg
	readType(t, conn2, protocol.TypeWelcome, &again)
	if !again.Resumed || again.SessionID != welcome.SessionID {
		t.Fatalf("resume welcome: %+v", again)
	}
	var st protocol.StateMsg
	readType(t, conn2, protocol.TypeState, &st)
	if !st.Paused || st.Seq == 0 {
		t.Fatalf("resumed state: paused=%v seq=%d", st.Paused, st.Seq)
	}
}

func TestServer_ShutdownSnapshotsLiveSessions(t *testing.T) {
	store := sessionstore.New(sessionstore.Options{DataDir: t.TempDir()})
	srv, url := newTestServer(t, store)

	conn := dial(t, url)
	send(t, conn, hello("1"))
	var welcome protocol.WelcomeMsg
	readType(t, conn, protocol.TypeWelcome, &welcome)
	send(t, conn, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, ID: "z", Kind: protocol.ActPause})
	var ack protocol.AckMsg
	readType(t, conn, protocol.TypeAck, &ack)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// Shutdown returns only after the handler saved its snapshot.
	if _, ok := store.LatestSnapshot(welcome.SessionID); !ok {
		t.Fatalf("no snapshot after shutdown")
	}
	if n := len(srv.Sessions()); n != 0 {
		t.Fatalf("live sessions after shutdown: %d", n)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("client saw %v, want going-away close", err)
			}
			break
		}
	}

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatalf("dial accepted after shutdown")
	} else if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("dial after shutdown: %v", err)
	}
}

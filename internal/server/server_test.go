package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"osupulse/bridge/internal/logging"
)

// stubSource hands out canned payloads with a tick counter baked in, so
// ordering is observable on the wire.
type stubSource struct {
	tick       uint64
	background string
}

func (s *stubSource) Serialize() ([]byte, []byte, error) {
	native, err := json.Marshal(map[string]any{"schema": "native", "tick": s.tick})
	if err != nil {
		return nil, nil, err
	}
	gosu, err := json.Marshal(map[string]any{
		"menu":     map[string]any{"tick": s.tick},
		"gameplay": map[string]any{"tick": s.tick},
	})
	if err != nil {
		return nil, nil, err
	}
	return native, gosu, nil
}

func (s *stubSource) BackgroundPath() string { return s.background }

func (s *stubSource) Ticks() uint64 { return s.tick }

func newTestServer(t *testing.T, source *stubSource) (*Broker, *httptest.Server) {
	t.Helper()
	broker := New(source, logging.NewTestLogger())
	srv := httptest.NewServer(broker.Handler())
	t.Cleanup(srv.Close)
	return broker, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("expected text frame, got %d", msgType)
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	return doc
}

func waitForSubscribers(t *testing.T, broker *Broker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		native, gosu := broker.SubscriberCounts()
		if native+gosu == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	native, gosu := broker.SubscriberCounts()
	t.Fatalf("subscriber count = %d, want %d", native+gosu, want)
}

// Scenario F: two native subscribers and one gosu subscriber each receive
// their schema; closing one drops it silently.
func TestFanoutSchemas(t *testing.T) {
	source := &stubSource{tick: 1}
	broker, srv := newTestServer(t, source)

	native1 := dial(t, srv, "/rws")
	native2 := dial(t, srv, "/rws")
	gosu := dial(t, srv, "/ws")
	waitForSubscribers(t, broker, 3)

	broker.Fanout()

	doc1 := readJSON(t, native1)
	doc2 := readJSON(t, native2)
	if doc1["schema"] != "native" || doc2["schema"] != "native" {
		t.Fatalf("native subscribers got wrong schema: %v / %v", doc1, doc2)
	}
	if doc1["tick"] != doc2["tick"] {
		t.Fatalf("native subscribers diverged: %v vs %v", doc1["tick"], doc2["tick"])
	}

	gosuDoc := readJSON(t, gosu)
	if _, ok := gosuDoc["menu"]; !ok {
		t.Fatalf("gosu subscriber should receive menu/gameplay shape, got %v", gosuDoc)
	}
	if _, ok := gosuDoc["gameplay"]; !ok {
		t.Fatalf("gosu payload missing gameplay: %v", gosuDoc)
	}

	// Closing the gosu subscriber removes it without disturbing the rest.
	gosu.Close()
	waitForSubscribers(t, broker, 2)

	source.tick = 2
	broker.Fanout()
	if doc := readJSON(t, native1); doc["tick"] != float64(2) {
		t.Fatalf("expected tick 2 after fanout, got %v", doc["tick"])
	}
}

// Tick→broadcast ordering: frames arrive in the order they were fanned out.
func TestFanoutOrdering(t *testing.T) {
	source := &stubSource{tick: 1}
	broker, srv := newTestServer(t, source)

	conn := dial(t, srv, "/rws")
	waitForSubscribers(t, broker, 1)

	broker.Fanout()
	source.tick = 2
	broker.Fanout()

	first := readJSON(t, conn)
	second := readJSON(t, conn)
	if first["tick"] != float64(1) || second["tick"] != float64(2) {
		t.Fatalf("frames out of order: %v then %v", first["tick"], second["tick"])
	}
}

func TestSongsRoute(t *testing.T) {
	dir := t.TempDir()
	background := filepath.Join(dir, "bg.png")
	if err := os.WriteFile(background, []byte("image-bytes"), 0o644); err != nil {
		t.Fatalf("write background: %v", err)
	}
	source := &stubSource{background: background}
	_, srv := newTestServer(t, source)

	resp, err := http.Get(srv.URL + "/Songs/whatever")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// Wrong prefix.
	resp2, err := http.Get(srv.URL + "/other/path")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp2.StatusCode)
	}

	// Missing file.
	source.background = filepath.Join(dir, "missing.png")
	resp3, err := http.Get(srv.URL + "/Songs/whatever")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp3.StatusCode)
	}
}

func TestHealthAndStats(t *testing.T) {
	source := &stubSource{tick: 7}
	broker, srv := newTestServer(t, source)
	broker.SetAttached(true)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if health["status"] != "ok" || health["attached"] != true {
		t.Fatalf("unexpected health payload: %v", health)
	}

	broker.Fanout()
	resp2, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp2.Body.Close()
	var stats map[string]any
	if err := json.NewDecoder(resp2.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["ticks"] != float64(7) {
		t.Fatalf("ticks = %v, want 7", stats["ticks"])
	}
	if stats["broadcasts"] != float64(1) {
		t.Fatalf("broadcasts = %v, want 1", stats["broadcasts"])
	}
}

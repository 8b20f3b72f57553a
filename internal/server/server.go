// Package server is the local broadcast surface: it upgrades overlay clients
// to WebSockets, fans the latest snapshot out once per reading-loop tick and
// serves the current beatmap background over plain HTTP.
package server

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"osupulse/bridge/internal/logging"
)

const (
	writeWait = 10 * time.Second
	// sendBuffer bounds per-client queueing; a subscriber that cannot drain
	// it is dropped rather than buffered further.
	sendBuffer = 8
)

// Kind selects which serialization schema a subscriber receives.
type Kind int

const (
	// KindGosu is the historical compat schema served on /ws.
	KindGosu Kind = iota
	// KindNative is the flattened snapshot schema served on /rws.
	KindNative
)

// SnapshotSource supplies the serialized snapshot and its auxiliary views.
// The tracker implements it; tests substitute a stub.
type SnapshotSource interface {
	// Serialize renders the snapshot once per schema under one shared lock.
	Serialize() (native, gosu []byte, err error)
	// BackgroundPath is the absolute path of the current background image.
	BackgroundPath() string
	// Ticks is the number of completed reading-loop iterations.
	Ticks() uint64
}

// Client is one connected WebSocket subscriber.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	kind Kind
	log  *logging.Logger
}

// Broker owns the subscriber set and the HTTP surface.
type Broker struct {
	source SnapshotSource
	log    *logging.Logger

	mu      sync.Mutex
	clients map[*Client]bool

	broadcasts uint64
	attached   atomic.Bool
	startedAt  time.Time

	upgrader websocket.Upgrader
}

// New constructs a broker bound to a snapshot source.
func New(source SnapshotSource, log *logging.Logger) *Broker {
	if log == nil {
		log = logging.L()
	}
	return &Broker{
		source:    source,
		log:       log,
		clients:   make(map[*Client]bool),
		startedAt: time.Now(),
		// Overlay clients are local files or trusted tools; every origin
		// is accepted, matching the tool's loopback-only listener.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// SetAttached records whether the supervisor currently holds a live
// attachment, surfaced through /healthz.
func (b *Broker) SetAttached(attached bool) {
	b.attached.Store(attached)
}

// Handler builds the route table.
func (b *Broker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		b.serveWS(w, r, KindGosu)
	})
	mux.HandleFunc("/rws", func(w http.ResponseWriter, r *http.Request) {
		b.serveWS(w, r, KindNative)
	})
	mux.HandleFunc("/healthz", b.serveHealth)
	mux.HandleFunc("/api/stats", b.serveStats)
	mux.HandleFunc("/", b.serveSongs)
	return mux
}

// Run serves the broadcast surface until the listener fails.
func (b *Broker) Run(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	b.log.Info("broadcast surface listening", logging.String("addr", addr))
	server := &http.Server{Handler: b.Handler()}
	return server.Serve(listener)
}

func (b *Broker) serveWS(w http.ResponseWriter, r *http.Request, kind Kind) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error("websocket upgrade failed", logging.Error(err))
		return
	}
	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		kind: kind,
		log:  b.log.With(logging.String("remote_addr", r.RemoteAddr)),
	}

	b.mu.Lock()
	b.clients[client] = true
	b.mu.Unlock()
	client.log.Info("subscriber connected", logging.Int("kind", int(kind)))

	// Reader pump: inbound frames are discarded, but a close (or any read
	// error) removes the subscriber.
	go func() {
		defer func() {
			b.deregister(client)
			_ = client.conn.Close()
		}()
		for {
			if _, _, err := client.conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					client.log.Debug("subscriber read error", logging.Error(err))
				}
				return
			}
		}
	}()

	// Writer pump: frames are pushed in tick order; any write error drops
	// the subscriber with a best-effort close.
	go func() {
		defer func() { _ = client.conn.Close() }()
		for msg := range client.send {
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				client.log.Debug("subscriber write error", logging.Error(err))
				b.deregister(client)
				_ = client.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
		}
		_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
	}()
}

func (b *Broker) deregister(client *Client) {
	b.mu.Lock()
	if _, exists := b.clients[client]; exists {
		delete(b.clients, client)
		close(client.send)
	}
	b.mu.Unlock()
}

// Fanout serializes the snapshot once per schema and pushes a text frame to
// every subscriber. It is called from the reader thread after each tick and
// never blocks on a subscriber: a full queue drops the client.
func (b *Broker) Fanout() {
	native, gosu, err := b.source.Serialize()
	if err != nil {
		b.log.Error("snapshot serialization failed", logging.Error(err))
		return
	}
	b.Broadcast(native, gosu)
}

// Broadcast pushes already-serialized payloads, one per schema, to every
// subscriber.
func (b *Broker) Broadcast(native, gosu []byte) {
	// Pushes are non-blocking, so the subscriber lock is held only for the
	// iteration itself; closing the channel under the lock keeps it
	// ordered against concurrent deregistration.
	b.mu.Lock()
	b.broadcasts++
	for client := range b.clients {
		payload := gosu
		if client.kind == KindNative {
			payload = native
		}
		select {
		case client.send <- payload:
		default:
			client.log.Warn("dropping saturated subscriber")
			delete(b.clients, client)
			close(client.send)
			go client.conn.Close()
		}
	}
	b.mu.Unlock()
}

// SubscriberCounts reports connected subscribers per schema.
func (b *Broker) SubscriberCounts() (native, gosu int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		if client.kind == KindNative {
			native++
		} else {
			gosu++
		}
	}
	return native, gosu
}

func (b *Broker) serveHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !b.attached.Load() {
		status = "detached"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   status,
		"attached": b.attached.Load(),
		"uptime_s": int64(time.Since(b.startedAt).Seconds()),
	})
}

func (b *Broker) serveStats(w http.ResponseWriter, _ *http.Request) {
	native, gosu := b.SubscriberCounts()
	b.mu.Lock()
	broadcasts := b.broadcasts
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"subscribers_native": native,
		"subscribers_gosu":   gosu,
		"broadcasts":         broadcasts,
		"ticks":              b.source.Ticks(),
	})
}

// serveSongs returns the current beatmap's background image. Only paths
// under /Songs are served, and only the file the snapshot currently points
// at; anything else is a 400.
func (b *Broker) serveSongs(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/Songs") {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	background := b.source.BackgroundPath()
	if background == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	data, err := os.ReadFile(background)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

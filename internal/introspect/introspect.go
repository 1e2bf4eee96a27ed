// Package introspect is an optional live monitor: a websocket endpoint that
// streams per-tick scheduler/table stats to a connected client.
package introspect

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame is one tick's worth of stats, broadcast as JSON to every connected
// client.
type Frame struct {
	WorldID    string        `json:"world_id"`
	Tick       uint64        `json:"tick"`
	DeltaTime  float64       `json:"delta_time"`
	TickTime   time.Duration `json:"tick_time_ns"`
	TableCount int           `json:"table_count"`
	Systems    []SystemStat  `json:"systems"`
}

// SystemStat summarizes one system's state for a Frame.
type SystemStat struct {
	Name           string  `json:"name"`
	Enabled        bool    `json:"enabled"`
	ActiveTables   int     `json:"active_tables"`
	InactiveTables int     `json:"inactive_tables"`
	TimeSpent      float64 `json:"time_spent_sec"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Monitor accepts websocket connections and fans out Frames broadcast via
// Publish. A world with introspection disabled never constructs one.
type Monitor struct {
	id string

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New returns a Monitor identified by a fresh instance id.
func New() *Monitor {
	return &Monitor{
		id:      uuid.NewString(),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ID returns this monitor's (and by extension its world's) instance id.
func (m *Monitor) ID() string { return m.id }

// Handler upgrades incoming requests to websocket connections and registers
// them to receive Publish broadcasts until they disconnect.
func (m *Monitor) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.mu.Unlock()

	go m.drainClient(conn)
}

// drainClient discards inbound messages (the protocol is broadcast-only)
// until the client disconnects, then unregisters it.
func (m *Monitor) drainClient(conn *websocket.Conn) {
	defer func() {
		m.mu.Lock()
		delete(m.clients, conn)
		m.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publish broadcasts frame to every connected client, dropping any client
// whose write fails.
func (m *Monitor) Publish(frame Frame) {
	frame.WorldID = m.id
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}

// ListenAndServe starts an HTTP server exposing the monitor at /ws on addr.
// The server runs in a background goroutine; ListenAndServe returns the
// *http.Server at once so the caller can Shutdown it.
func (m *Monitor) ListenAndServe(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.Handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go srv.ListenAndServe()
	return srv
}

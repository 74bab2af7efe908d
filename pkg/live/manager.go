// Package live implements the Live Event Endpoint (spec.md §4.I): clients
// connect over WebSocket, declare a filter once at connect time (project
// id, parent task id, event type allow-list, stats-only flag), receive an
// immediate snapshot, and then a filtered, server-to-client-only stream of
// Monitoring Events until they disconnect.
//
// Grounded on the teacher's pkg/events.ConnectionManager for the
// connection-registry/write-timeout/drop-on-send-failure shape, simplified
// from its channel-subscription and Postgres LISTEN/UNLISTEN design: this
// endpoint's filter is declared once at connect (not renegotiated by
// client messages mid-connection, per spec.md §4.I), and the pub/sub
// transport is Redis, where subscribing a single pattern for every
// project channel (pkg/live/subscriber.go) is cheap enough that the
// teacher's per-channel LISTEN/UNLISTEN reference counting has no
// equivalent need here.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

// pingInterval is the keep-alive cadence named in spec.md §4.I.
const pingInterval = 30 * time.Second

// Filter is the subscription a client declares once at connect time
// (spec.md §4.I).
type Filter struct {
	ProjectID    string
	ParentTaskID string
	EventTypes   map[models.EventType]bool // nil/empty means "every type"
	StatsOnly    bool
}

func (f Filter) matches(e models.Event) bool {
	if f.StatsOnly {
		return e.EventType == models.EventStatsSnapshot || e.EventType == models.EventQueueDepthUpdate
	}
	if f.ProjectID != "" && e.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if f.ParentTaskID != "" && e.ParentTaskID != f.ParentTaskID {
		return false
	}
	if len(f.EventTypes) > 0 && !f.EventTypes[e.EventType] {
		return false
	}
	return true
}

// Snapshot is the one-time message sent immediately after connect
// (spec.md §4.I "queue depths + online worker count").
type Snapshot struct {
	Queue         map[string]int `json:"queue"`
	OnlineWorkers int            `json:"online_workers"`
}

// SnapshotFunc computes a fresh Snapshot for a newly connected client.
type SnapshotFunc func(ctx context.Context) (Snapshot, error)

type connection struct {
	id     string
	conn   *websocket.Conn
	filter Filter
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager tracks every connected client and fans out Monitoring Events to
// whichever of them match its filter.
type Manager struct {
	mu           sync.RWMutex
	connections  map[string]*connection
	writeTimeout time.Duration
	log          *slog.Logger
}

// NewManager constructs an empty Manager.
func NewManager(writeTimeout time.Duration, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Manager{connections: make(map[string]*connection), writeTimeout: writeTimeout, log: log}
}

// ServeWS upgrades the HTTP request to a WebSocket, parses the client's
// filter from its query string, and blocks for the lifetime of the
// connection. snapshot is called once per connection to build the
// connect-time snapshot event.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request, snapshot SnapshotFunc) error {
	filter := parseFilter(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return err
	}

	snap, err := snapshot(r.Context())
	if err != nil {
		m.log.Warn("live: snapshot failed", "error", err)
	}

	m.HandleConnection(r.Context(), conn, filter, snap)
	return nil
}

// HandleConnection registers conn, sends the connect-time snapshot,
// starts its keep-alive ping loop, and blocks on its read loop (the
// endpoint is server-to-client only; any client message is ignored) until
// the connection closes.
func (m *Manager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, filter Filter, snapshot Snapshot) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: uuid.NewString(), conn: conn, filter: filter, ctx: ctx, cancel: cancel}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]any{
		"type":           "snapshot",
		"queue":          snapshot.Queue,
		"online_workers": snapshot.OnlineWorkers,
	})

	go m.pingLoop(c)

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast sends event to every connection whose filter matches it,
// dropping (cancelling) any connection whose send fails (spec.md §4.I).
func (m *Manager) Broadcast(event models.Event) {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if !c.filter.matches(event) {
			continue
		}
		if err := m.sendJSON(c, event); err != nil {
			m.log.Warn("live: send failed, dropping client", "connection_id", c.id, "error", err)
			c.cancel()
		}
	}
}

// ActiveConnections reports how many clients are currently connected.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *Manager) pingLoop(c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (m *Manager) sendJSON(c *connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}

func (m *Manager) register(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.id] = c
}

func (m *Manager) unregister(c *connection) {
	m.mu.Lock()
	delete(m.connections, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func parseFilter(r *http.Request) Filter {
	q := r.URL.Query()
	f := Filter{
		ProjectID:    q.Get("project_id"),
		ParentTaskID: q.Get("task_id"),
		StatsOnly:    q.Get("stats_only") == "true",
	}
	if raw := q.Get("types"); raw != "" {
		f.EventTypes = make(map[models.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				f.EventTypes[models.EventType(t)] = true
			}
		}
	}
	return f
}

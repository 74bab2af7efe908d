package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-research/nexus-orchestrator/pkg/models"
)

func TestFilter_Matches(t *testing.T) {
	cases := []struct {
		name   string
		filter Filter
		event  models.Event
		want   bool
	}{
		{"empty filter matches anything", Filter{}, models.Event{EventType: models.EventTaskStarted}, true},
		{"project mismatch excluded", Filter{ProjectID: "p1"}, models.Event{ProjectID: "p2"}, false},
		{"project match included", Filter{ProjectID: "p1"}, models.Event{ProjectID: "p1"}, true},
		{"parent task mismatch excluded", Filter{ParentTaskID: "t1"}, models.Event{ParentTaskID: "t2"}, false},
		{"event type allow-list excludes others", Filter{EventTypes: map[models.EventType]bool{models.EventTaskCompleted: true}}, models.Event{EventType: models.EventTaskFailed}, false},
		{"event type allow-list includes match", Filter{EventTypes: map[models.EventType]bool{models.EventTaskCompleted: true}}, models.Event{EventType: models.EventTaskCompleted}, true},
		{"stats-only admits stats snapshot", Filter{StatsOnly: true}, models.Event{EventType: models.EventStatsSnapshot}, true},
		{"stats-only admits queue depth", Filter{StatsOnly: true}, models.Event{EventType: models.EventQueueDepthUpdate}, true},
		{"stats-only excludes everything else", Filter{StatsOnly: true}, models.Event{EventType: models.EventTaskStarted}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.matches(tc.event))
		})
	}
}

func TestParseFilter_ParsesQueryParams(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/events?project_id=p1&task_id=t1&stats_only=true&types=task_completed,task_failed", nil)
	require.NoError(t, err)

	f := parseFilter(r)
	assert.Equal(t, "p1", f.ProjectID)
	assert.Equal(t, "t1", f.ParentTaskID)
	assert.True(t, f.StatsOnly)
	assert.True(t, f.EventTypes[models.EventTaskCompleted])
	assert.True(t, f.EventTypes[models.EventTaskFailed])
}

// newTestServer wires a Manager behind an httptest server, mirroring the
// teacher's pkg/events integration test harness (see
// codeready-toolchain-tarsy/pkg/events/integration_test.go).
func newTestServer(t *testing.T, snapshot Snapshot) (*Manager, *httptest.Server) {
	t.Helper()
	m := NewManager(2*time.Second, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = m.ServeWS(w, r, func(context.Context) (Snapshot, error) { return snapshot, nil })
	}))
	t.Cleanup(server.Close)
	return m, server
}

func connectWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):] + "/events" + query
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestServeWS_SendsSnapshotOnConnect(t *testing.T) {
	_, server := newTestServer(t, Snapshot{Queue: map[string]int{"high": 1}, OnlineWorkers: 3})
	conn := connectWS(t, server, "")

	msg := readJSON(t, conn)
	assert.Equal(t, "snapshot", msg["type"])
	assert.EqualValues(t, 3, msg["online_workers"])
}

func TestBroadcast_DeliversOnlyToMatchingFilter(t *testing.T) {
	m, server := newTestServer(t, Snapshot{})

	matching := connectWS(t, server, "?project_id=proj-1")
	nonMatching := connectWS(t, server, "?project_id=proj-2")

	_ = readJSON(t, matching)    // snapshot
	_ = readJSON(t, nonMatching) // snapshot

	require.Eventually(t, func() bool { return m.ActiveConnections() == 2 }, time.Second, 10*time.Millisecond)

	m.Broadcast(models.Event{EventType: models.EventTaskCompleted, ProjectID: "proj-1", TaskID: "t1"})

	msg := readJSON(t, matching)
	assert.Equal(t, "task_completed", msg["EventType"])
	assert.Equal(t, "t1", msg["TaskID"])

	readCtx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, _, err := nonMatching.Read(readCtx)
	assert.Error(t, err, "non-matching connection should not receive the event")
}

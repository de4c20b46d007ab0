package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pomosync/go/internal/session"
)

// serverSideConn returns the server end of a fresh WebSocket pair
func serverSideConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil
	}
}

// registerBare registers a connection with no pumps so its Send buffer is
// only drained by the test
func registerBare(t *testing.T, cm *ConnectionManager, id string) *Connection {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	conn := &Connection{
		ID:          id,
		Conn:        serverSideConn(t),
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: time.Now(),
	}
	cm.registerConnection(conn)
	return conn
}

func TestConnectionManager_SlowConnectionClosedOthersDelivered(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.SendBufferSize = 1
	cm := NewConnectionManager(cfg)

	slow := registerBare(t, cm, "slow")
	fast := registerBare(t, cm, "fast")

	first := session.TimerUpdateEvent(session.TimerState{Mode: session.ModeWork, TimeRemaining: 10, IsRunning: true})
	second := session.TimerUpdateEvent(session.TimerState{Mode: session.ModeWork, TimeRemaining: 9, IsRunning: true})

	cm.handleBroadcast(BroadcastMessage{Event: first})
	require.Len(t, fast.Send, 1)
	<-fast.Send

	cm.handleBroadcast(BroadcastMessage{Event: second})

	assert.Equal(t, 1, cm.ConnectionCount())
	cm.mu.RLock()
	_, slowRegistered := cm.connections[slow.ID]
	_, fastRegistered := cm.connections[fast.ID]
	cm.mu.RUnlock()
	assert.False(t, slowRegistered, "slow connection should be unregistered")
	assert.True(t, fastRegistered)

	select {
	case data := <-fast.Send:
		assert.Contains(t, string(data), `"timeRemaining":9`)
	default:
		t.Fatal("fast connection missed the second broadcast")
	}

	// The slow connection's Send is closed once its buffered event is drained
	<-slow.Send
	_, open := <-slow.Send
	assert.False(t, open)
	assert.Error(t, slow.ctx.Err(), "slow connection context should be cancelled")
}

func TestConnectionManager_TargetedSendReachesOnlyTarget(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	a := registerBare(t, cm, "a")
	b := registerBare(t, cm, "b")

	cm.handleBroadcast(BroadcastMessage{Event: session.UsersUpdateEvent(nil), ConnID: "b"})

	assert.Len(t, a.Send, 0)
	assert.Len(t, b.Send, 1)
}

func TestConnectionManager_FullQueueCountsDrops(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.BroadcastBuffer = 2
	cm := NewConnectionManager(cfg)

	// Nothing drains the queue without Start
	for i := 0; i < 5; i++ {
		cm.Broadcast(session.UsersUpdateEvent(nil))
	}

	stats := cm.GetConnectionStats()
	assert.Equal(t, 2, stats["queued_messages"])
	assert.Equal(t, uint64(3), stats["dropped_messages"])
}

func TestConnectionManager_StatsListConnections(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	registerBare(t, cm, "a")
	c := registerBare(t, cm, "b")
	c.touch()

	stats := cm.GetConnectionStats()
	conns, ok := stats["connections"].([]ConnectionInfo)
	require.True(t, ok)
	require.Len(t, conns, 2)
	assert.Equal(t, 2, stats["total_connections"])

	for _, info := range conns {
		assert.False(t, info.ConnectedAt.IsZero())
		if info.ID == "b" {
			assert.False(t, info.LastPing.IsZero())
		}
	}
}

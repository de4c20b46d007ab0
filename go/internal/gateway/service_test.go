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
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pomosync/go/internal/session"
)

type testGateway struct {
	service *Service
	server  *httptest.Server
	clock   *clockwork.FakeClock
	ctx     context.Context
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	fc := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.EngineConfig = session.Config{
		Durations:    session.Durations{Work: 3, Break: 2},
		TickInterval: time.Second,
		Clock:        fc,
	}

	svc, err := NewService(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Start(ctx)
	}()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))

	return &testGateway{service: svc, server: srv, clock: fc, ctx: ctx}
}

// dial opens a client and consumes its catch-up messages
func (g *testGateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Equal(t, session.EventTypeTimerUpdate, readEvent(t, conn).Type)
	require.Equal(t, session.EventTypeUsersUpdate, readEvent(t, conn).Type)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) session.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev session.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func send(t *testing.T, conn *websocket.Conn, eventType session.EventType, data interface{}) {
	t.Helper()
	ev := session.Event{Type: eventType}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		ev.Data = raw
	}
	require.NoError(t, conn.WriteJSON(ev))
}

func timerOf(t *testing.T, ev session.Event) session.TimerState {
	t.Helper()
	require.Equal(t, session.EventTypeTimerUpdate, ev.Type)
	var state session.TimerState
	require.NoError(t, json.Unmarshal(ev.Data, &state))
	return state
}

func usersOf(t *testing.T, ev session.Event) []session.Participant {
	t.Helper()
	require.Equal(t, session.EventTypeUsersUpdate, ev.Type)
	var users []session.Participant
	require.NoError(t, json.Unmarshal(ev.Data, &users))
	return users
}

func errorOf(t *testing.T, ev session.Event) session.ErrorPayload {
	t.Helper()
	require.Equal(t, session.EventTypeError, ev.Type)
	var payload session.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	return payload
}

func TestGateway_CatchUpOnConnect(t *testing.T) {
	g := newTestGateway(t)
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, session.TimerState{Mode: session.ModeWork, TimeRemaining: 3}, timerOf(t, readEvent(t, conn)))
	assert.Empty(t, usersOf(t, readEvent(t, conn)))
}

func TestGateway_JoinIsBroadcast(t *testing.T) {
	g := newTestGateway(t)
	alice := g.dial(t)
	bob := g.dial(t)

	send(t, alice, session.EventTypeJoin, session.JoinPayload{Name: "Alice", Task: "Write spec"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		users := usersOf(t, readEvent(t, conn))
		require.Len(t, users, 1)
		assert.Equal(t, "Alice", users[0].Name)
		assert.Equal(t, "Write spec", users[0].Task)
		assert.NotEmpty(t, users[0].ID)
	}

	send(t, alice, session.EventTypeUpdateTask, "Review spec")
	assert.Equal(t, "Review spec", usersOf(t, readEvent(t, bob))[0].Task)
}

func TestGateway_TimerControlAndTicks(t *testing.T) {
	g := newTestGateway(t)
	alice := g.dial(t)
	bob := g.dial(t)

	send(t, alice, session.EventTypeStartTimer, nil)
	assert.True(t, timerOf(t, readEvent(t, bob)).IsRunning)
	readEvent(t, alice)

	g.clock.Advance(time.Second)
	assert.Equal(t, session.TimerState{Mode: session.ModeWork, TimeRemaining: 2, IsRunning: true}, timerOf(t, readEvent(t, bob)))
	assert.Equal(t, session.TimerState{Mode: session.ModeWork, TimeRemaining: 2, IsRunning: true}, timerOf(t, readEvent(t, alice)))

	send(t, bob, session.EventTypeSwitchMode, "break")
	assert.Equal(t, session.TimerState{Mode: session.ModeBreak, TimeRemaining: 2}, timerOf(t, readEvent(t, alice)))

	send(t, bob, session.EventTypeResetTimer, nil)
	assert.Equal(t, session.TimerState{Mode: session.ModeWork, TimeRemaining: 3}, timerOf(t, readEvent(t, alice)))
}

func TestGateway_ValidationErrorGoesToSenderOnly(t *testing.T) {
	g := newTestGateway(t)
	alice := g.dial(t)
	bob := g.dial(t)

	send(t, alice, session.EventTypeSwitchMode, "lunch")
	assert.Equal(t, session.ErrorCodeValidation, errorOf(t, readEvent(t, alice)).Code)

	send(t, alice, session.EventTypeJoin, session.JoinPayload{Name: "   "})
	assert.Equal(t, session.ErrorCodeValidation, errorOf(t, readEvent(t, alice)).Code)

	// Bob's next message is the pause, so neither rejection reached him
	send(t, alice, session.EventTypePauseTimer, nil)
	assert.False(t, timerOf(t, readEvent(t, bob)).IsRunning)
}

func TestGateway_BadRequests(t *testing.T) {
	g := newTestGateway(t)
	alice := g.dial(t)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, session.ErrorCodeBadRequest, errorOf(t, readEvent(t, alice)).Code)

	send(t, alice, session.EventType("updateGoal"), "ship it")
	assert.Equal(t, session.ErrorCodeBadRequest, errorOf(t, readEvent(t, alice)).Code)

	send(t, alice, session.EventTypeJoin, nil)
	assert.Equal(t, session.ErrorCodeBadRequest, errorOf(t, readEvent(t, alice)).Code)

	send(t, alice, session.EventTypeSwitchMode, 42)
	assert.Equal(t, session.ErrorCodeBadRequest, errorOf(t, readEvent(t, alice)).Code)
}

func TestGateway_DisconnectLeavesRoster(t *testing.T) {
	g := newTestGateway(t)
	alice := g.dial(t)
	bob := g.dial(t)

	send(t, alice, session.EventTypeJoin, session.JoinPayload{Name: "Alice"})
	require.Len(t, usersOf(t, readEvent(t, bob)), 1)

	require.NoError(t, alice.Close())

	assert.Empty(t, usersOf(t, readEvent(t, bob)))
	assert.Eventually(t, func() bool {
		return g.service.connectionManager.ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_StateEndpoint(t *testing.T) {
	g := newTestGateway(t)
	alice := g.dial(t)
	send(t, alice, session.EventTypeJoin, session.JoinPayload{Name: "Alice", Task: "Write spec"})
	readEvent(t, alice)

	resp, err := http.Get(g.server.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap session.StateSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, session.TimerState{Mode: session.ModeWork, TimeRemaining: 3}, snap.Timer)
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "Alice", snap.Users[0].Name)

	post, err := http.Post(g.server.URL+"/api/state", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestGateway_StatsEndpoint(t *testing.T) {
	g := newTestGateway(t)
	g.dial(t)
	g.dial(t)

	resp, err := http.Get(g.server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, float64(2), stats["total_connections"])
	assert.Equal(t, float64(0), stats["dropped_messages"])
	conns, ok := stats["connections"].([]interface{})
	require.True(t, ok)
	require.Len(t, conns, 2)
	first := conns[0].(map[string]interface{})
	assert.NotEmpty(t, first["id"])
	assert.NotEmpty(t, first["connected_at"])
	assert.NotEmpty(t, first["last_ping"])

	svcStats := g.service.GetStats()
	assert.Equal(t, false, svcStats["mirror_enabled"])
}

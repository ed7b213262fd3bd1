package ws

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type acks struct {
	mu   sync.Mutex
	seen [][2]int
}

func (a *acks) Continue(oldUserID, newUserID int) {
	a.mu.Lock()
	a.seen = append(a.seen, [2]int{oldUserID, newUserID})
	a.mu.Unlock()
}

func (a *acks) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

func newHub(t *testing.T) (*Hub, *acks, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil, nil)
	a := &acks{}
	hub.SetSwitchContinuer(a.Continue)
	r := gin.New()
	r.GET("/stream", hub.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, a, "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func dial(t *testing.T, hub *Hub, url string) *websocket.Conn {
	t.Helper()
	before := len(hub.Clients())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	hello := read(t, conn)
	require.Equal(t, "hello", hello.Type)
	require.Eventually(t, func() bool { return len(hub.Clients()) == before+1 }, time.Second, 5*time.Millisecond)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// roundTrip makes sure every frame sent before it was handled
func roundTrip(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	for {
		if read(t, conn).Type == "pong" {
			return
		}
	}
}

func TestBroadcastsReachClients(t *testing.T) {
	hub, _, url := newHub(t)
	a := dial(t, hub, url)
	b := dial(t, hub, url)

	hub.BroadcastUserEvent("usual.event.USER_STARTED", 100)
	for _, conn := range []*websocket.Conn{a, b} {
		msg := read(t, conn)
		assert.Equal(t, "user", msg.Type)
		assert.Equal(t, "usual.event.USER_STARTED", msg.Event)
		require.NotNil(t, msg.UserID)
		assert.Equal(t, 100, *msg.UserID)
	}

	hub.OnMissionMovedToFront(7)
	msg := read(t, a)
	assert.Equal(t, "mission", msg.Type)
	assert.Equal(t, "moved_to_front", msg.Event)
	assert.Equal(t, 7, *msg.MissionID)
}

func TestUnknownFrames(t *testing.T) {
	hub, _, url := newHub(t)
	conn := dial(t, hub, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "error", read(t, conn).Type)
	require.NoError(t, conn.WriteJSON(Message{Type: "launch"}))
	assert.Equal(t, "unknown message type", read(t, conn).Error)
	require.NoError(t, conn.WriteJSON(Message{Type: "continue_switch"}))
	assert.Equal(t, "error", read(t, conn).Type)
}

func TestSwitchWithoutObserversContinuesAtOnce(t *testing.T) {
	hub, a, url := newHub(t)
	dial(t, hub, url)

	hub.OnUserSwitch(0, 100)
	assert.Equal(t, 1, a.Count())
}

func TestSwitchWaitsForObservers(t *testing.T) {
	hub, a, url := newHub(t)
	first := dial(t, hub, url)
	second := dial(t, hub, url)
	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.WriteJSON(Message{Type: "observe_switch"}))
		roundTrip(t, conn)
	}

	hub.OnUserSwitch(100, 101)
	sw := read(t, first)
	assert.Equal(t, "user_switch", sw.Type)
	assert.Equal(t, 101, *sw.NewUserID)
	assert.Equal(t, 0, a.Count())

	stale := Message{Type: "continue_switch", OldUserID: intp(0), NewUserID: intp(101)}
	require.NoError(t, first.WriteJSON(stale))
	ack := Message{Type: "continue_switch", OldUserID: intp(100), NewUserID: intp(101)}
	require.NoError(t, first.WriteJSON(ack))
	roundTrip(t, first)
	assert.Equal(t, 0, a.Count())

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return a.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

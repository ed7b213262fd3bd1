package ws

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/mission"
	"github.com/openharmony/aafwk-standard-sub013/internal/domain/user"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	maxInbound   = 4096
)

var (
	_ user.Broadcaster    = (*Hub)(nil)
	_ user.SwitchObserver = (*Hub)(nil)
	_ mission.Listener    = (*Hub)(nil)
)

// Message is one frame in either direction
type Message struct {
	Type      string `json:"type"`
	Event     string `json:"event,omitempty"`
	UserID    *int   `json:"user_id,omitempty"`
	OldUserID *int   `json:"old_user_id,omitempty"`
	NewUserID *int   `json:"new_user_id,omitempty"`
	MissionID *int   `json:"mission_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func intp(v int) *int { return &v }

// Hub streams user and mission events to websocket clients. It is the
// manager's user broadcaster, a mission listener and a user switch
// observer: clients that send "observe_switch" must answer every
// "user_switch" frame with "continue_switch" before the switch completes.
type Hub struct {
	log     *logging.Logger
	metrics *monitoring.Metrics

	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[string]*client
	closed   bool
	cont     func(oldUserID, newUserID int)
	switchAt *pendingSwitch
}

type pendingSwitch struct {
	oldUser, newUser int
	waiting          map[string]bool
}

// NewHub creates an empty hub
func NewHub(log *logging.Logger, metrics *monitoring.Metrics) *Hub {
	return &Hub{
		log:     logging.OrNop(log).ForComponent("ws"),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// SetSwitchContinuer sets the function acknowledging a user switch,
// normally the user controller's ContinueUserSwitch
func (h *Hub) SetSwitchContinuer(fn func(oldUserID, newUserID int)) {
	h.mu.Lock()
	h.cont = fn
	h.mu.Unlock()
}

// Clients returns the connected client ids, sorted
func (h *Hub) Clients() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ServeWS upgrades the request and serves the client until it disconnects
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	cl := &client{id: uuid.NewString(), hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[cl.id] = cl
	h.mu.Unlock()
	h.metrics.IncWSConnections()
	h.log.Debug("client connected", zap.String("client", cl.id))

	go cl.writeLoop()
	cl.enqueue(Message{Type: "hello", Event: cl.id})
	cl.readLoop()
}

// Publish sends msg to every client
func (h *Hub) Publish(msg Message) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.log.Error("encode event", zap.Error(err))
		return
	}
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		targets = append(targets, cl)
	}
	h.mu.Unlock()
	for _, cl := range targets {
		cl.push(data)
	}
	h.metrics.RecordWSMessage("out", msg.Type)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	for _, cl := range clients {
		cl.close()
	}
}

// BroadcastUserEvent implements user.Broadcaster
func (h *Hub) BroadcastUserEvent(event string, userID int) {
	h.Publish(Message{Type: "user", Event: event, UserID: intp(userID)})
}

// OnUserSwitch implements user.SwitchObserver. With no observing client
// the switch is acknowledged at once.
func (h *Hub) OnUserSwitch(oldUserID, newUserID int) {
	h.mu.Lock()
	waiting := make(map[string]bool)
	for id, cl := range h.clients {
		if cl.observer {
			waiting[id] = true
		}
	}
	h.switchAt = &pendingSwitch{oldUser: oldUserID, newUser: newUserID, waiting: waiting}
	h.mu.Unlock()

	h.Publish(Message{Type: "user_switch", OldUserID: intp(oldUserID), NewUserID: intp(newUserID)})
	if len(waiting) == 0 {
		h.acknowledge(oldUserID, newUserID)
	}
}

// OnUserSwitchDone implements user.SwitchObserver
func (h *Hub) OnUserSwitchDone(newUserID int) {
	h.mu.Lock()
	if h.switchAt != nil && h.switchAt.newUser == newUserID {
		h.switchAt = nil
	}
	h.mu.Unlock()
	h.Publish(Message{Type: "user_switch_done", NewUserID: intp(newUserID)})
}

func (h *Hub) acknowledge(oldUserID, newUserID int) {
	h.mu.Lock()
	cont := h.cont
	h.switchAt = nil
	h.mu.Unlock()
	if cont != nil {
		cont(oldUserID, newUserID)
	}
}

// clientAcked records one observing client's answer; the hub acknowledges
// the switch when the last one is in
func (h *Hub) clientAcked(id string, oldUserID, newUserID int) {
	h.mu.Lock()
	sw := h.switchAt
	if sw == nil || sw.oldUser != oldUserID || sw.newUser != newUserID || !sw.waiting[id] {
		h.mu.Unlock()
		return
	}
	delete(sw.waiting, id)
	done := len(sw.waiting) == 0
	h.mu.Unlock()
	if done {
		h.acknowledge(oldUserID, newUserID)
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl.id]
	delete(h.clients, cl.id)
	var ack *pendingSwitch
	if sw := h.switchAt; sw != nil && sw.waiting[cl.id] {
		delete(sw.waiting, cl.id)
		if len(sw.waiting) == 0 {
			ack = sw
		}
	}
	h.mu.Unlock()
	if ok {
		h.metrics.DecWSConnections()
		h.log.Debug("client disconnected", zap.String("client", cl.id))
	}
	if ack != nil {
		h.acknowledge(ack.oldUser, ack.newUser)
	}
}

func (h *Hub) mission(event string, missionID int) {
	h.Publish(Message{Type: "mission", Event: event, MissionID: intp(missionID)})
}

// OnMissionCreated implements mission.Listener
func (h *Hub) OnMissionCreated(missionID int) { h.mission("created", missionID) }

// OnMissionDestroyed implements mission.Listener
func (h *Hub) OnMissionDestroyed(missionID int) { h.mission("destroyed", missionID) }

// OnMissionSnapshotChanged implements mission.Listener
func (h *Hub) OnMissionSnapshotChanged(missionID int) { h.mission("snapshot_changed", missionID) }

// OnMissionMovedToFront implements mission.Listener
func (h *Hub) OnMissionMovedToFront(missionID int) { h.mission("moved_to_front", missionID) }

// OnMissionLabelUpdated implements mission.Listener
func (h *Hub) OnMissionLabelUpdated(missionID int) { h.mission("label_updated", missionID) }

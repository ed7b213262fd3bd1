package ws

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// observer is guarded by hub.mu
	observer bool

	once sync.Once
	mu   sync.Mutex
	shut bool
}

func (c *client) enqueue(msg Message) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return
	}
	c.push(data)
}

// push drops the client when its buffer is full
func (c *client) push(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shut {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.log.Warn("slow client dropped", zap.String("client", c.id))
		c.shut = true
		close(c.send)
	}
}

func (c *client) close() {
	c.mu.Lock()
	if !c.shut {
		c.shut = true
		close(c.send)
	}
	c.mu.Unlock()
	c.once.Do(func() { c.conn.Close() })
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.once.Do(func() { c.conn.Close() })
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()
	c.conn.SetReadLimit(maxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.enqueue(Message{Type: "error", Error: "malformed message"})
			continue
		}
		c.hub.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case "ping":
			c.enqueue(Message{Type: "pong"})
		case "observe_switch":
			c.hub.mu.Lock()
			c.observer = true
			c.hub.mu.Unlock()
		case "continue_switch":
			if msg.OldUserID == nil || msg.NewUserID == nil {
				c.enqueue(Message{Type: "error", Error: "continue_switch needs old_user_id and new_user_id"})
				continue
			}
			c.hub.clientAcked(c.id, *msg.OldUserID, *msg.NewUserID)
		default:
			c.enqueue(Message{Type: "error", Error: "unknown message type"})
		}
	}
}

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"alarm-gateway/internal/gateway"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusHub fans out every terminal SendStatusMessage to every connected
// websocket client, generalized from the teacher's WebSocketHandler (which
// fans out alert/SLA/ticket notifications the same way) down to one
// message kind.
type StatusHub struct {
	mu        sync.RWMutex
	clients   map[string]*statusClient
	broadcast chan []byte
}

type statusClient struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// wireStatus is the wire shape of a SendStatusMessage: the payload
// interface is flattened to a gateway-kind label, and the status detail is
// carried as text, rather than marshaled directly.
type wireStatus struct {
	Sequence          uint64 `json:"sequence"`
	Code              string `json:"code"`
	Status            string `json:"status"`
	Detail            string `json:"detail,omitempty"`
	AttemptCount      int    `json:"attempt_count"`
	RetryDelaySeconds int    `json:"retry_delay_seconds,omitempty"`
	GatewayKind       string `json:"gateway_kind,omitempty"`
}

// NewStatusHub constructs an empty hub; callers must run Pump in a
// goroutine before any client connects.
func NewStatusHub() *StatusHub {
	return &StatusHub{
		clients:   make(map[string]*statusClient),
		broadcast: make(chan []byte, 256),
	}
}

// Pump drains the broadcast queue and fans each message out to every
// connected client; it must run for the lifetime of the process.
func (h *StatusHub) Pump() {
	for data := range h.broadcast {
		h.mu.RLock()
		for _, client := range h.clients {
			select {
			case client.send <- data:
			default:
				h.removeLocked(client.id)
			}
		}
		h.mu.RUnlock()
	}
}

// StatusCallback adapts Broadcast to the gateway.StatusCallback contract,
// the direct wiring point passed to gateway.NewGatewaysManager.
func (h *StatusHub) StatusCallback() gateway.StatusCallback {
	return func(msg gateway.SendStatusMessage) {
		h.Broadcast(msg)
	}
}

// Broadcast marshals one status message and enqueues it for every client.
func (h *StatusHub) Broadcast(msg gateway.SendStatusMessage) {
	kind := ""
	if msg.Payload != nil {
		kind = string(msg.Payload.GatewayKind())
	}
	data, err := json.Marshal(wireStatus{
		Sequence:          msg.Sequence,
		Code:              msg.Code,
		Status:            string(msg.Status.Code),
		Detail:            msg.Status.Text,
		AttemptCount:      msg.AttemptCount,
		RetryDelaySeconds: msg.RetryDelaySeconds,
		GatewayKind:       kind,
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// HandleConnection upgrades an HTTP request to a websocket and registers
// the resulting client until it disconnects.
func (h *StatusHub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("status websocket upgrade error: %v", err)
		return
	}

	client := &statusClient{conn: conn, send: make(chan []byte, 64), id: uuid.New().String()}
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	go client.writePump()
	go client.readPump(h)
}

func (h *StatusHub) removeLocked(id string) {
	if client, ok := h.clients[id]; ok {
		close(client.send)
		delete(h.clients, id)
	}
}

func (h *StatusHub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (c *statusClient) readPump(h *StatusHub) {
	defer func() {
		h.remove(c.id)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *statusClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	clientSendSize = 64
)

type driverReader interface {
	Driver(id string) (domain.DriverState, bool)
}

// hubMessage is what renderers receive: the notification plus the
// current snapshot of every driver it names.
type hubMessage struct {
	Notification domain.Notification  `json:"notification"`
	Drivers      []domain.DriverState `json:"drivers,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts engine notifications to websocket clients. A client
// that cannot keep up is disconnected rather than slowing the others.
type Hub struct {
	in      <-chan domain.Notification
	drivers driverReader

	mu       sync.Mutex
	clients  map[*wsClient]struct{}
	upgrader websocket.Upgrader
}

func NewHub(in <-chan domain.Notification, drivers driverReader) *Hub {
	return &Hub{
		in:      in,
		drivers: drivers,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case n, ok := <-h.in:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(n)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	cl := &wsClient{conn: conn, send: make(chan []byte, clientSendSize)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go h.writePump(cl)
	go h.readPump(cl)
}

func (h *Hub) broadcast(n domain.Notification) {
	msg := hubMessage{Notification: n}
	for _, id := range n.ChangedDriverIDs {
		if st, ok := h.drivers.Driver(id); ok {
			msg.Drivers = append(msg.Drivers, st)
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("websocket marshal failed: %v", err)
		metrics.SinkFailures.WithLabelValues("websocket").Inc()
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- payload:
		default:
			metrics.ChannelDrops.WithLabelValues("ws_client").Inc()
			h.removeLocked(cl)
		}
	}
}

func (h *Hub) remove(cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(cl)
}

func (h *Hub) removeLocked(cl *wsClient) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.removeLocked(cl)
	}
}

func (h *Hub) readPump(cl *wsClient) {
	defer func() {
		h.remove(cl)
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(512)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
